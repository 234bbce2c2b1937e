package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"recording-pipeline/dto"
	"recording-pipeline/service"
)

type RecordingHandler struct {
	recordings service.RecordingService
	uploads    service.UploadService
	archives   service.ArchiveService
}

func NewRecordingHandler(recordings service.RecordingService, uploads service.UploadService, archives service.ArchiveService) *RecordingHandler {
	return &RecordingHandler{recordings: recordings, uploads: uploads, archives: archives}
}

func (h *RecordingHandler) Register(r gin.IRouter) {
	g := r.Group("/recordings")
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("/:id/chunks", h.AppendChunk)
	g.GET("/:id/video", h.WatchLink)
	g.GET("/:id/transcript", h.Transcript)
	g.POST("/:id/archive", h.RequestArchive)
	g.GET("/:id/archive", h.ArchiveStatus)
}

func (h *RecordingHandler) Create(c *gin.Context) {
	var req dto.CreateRecordingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}
	rec, err := h.recordings.Create(c.Request.Context(), req.CaseReference)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(rec))
}

func (h *RecordingHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	items, err := h.recordings.List(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(gin.H{"recordings": items}))
}

func (h *RecordingHandler) Get(c *gin.Context) {
	id, ok := recordingID(c)
	if !ok {
		return
	}
	status, err := h.recordings.Status(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(status))
}

// AppendChunk accepts multipart fields part_number, is_recording_complete
// and an optional video_part file.
func (h *RecordingHandler) AppendChunk(c *gin.Context) {
	id, ok := recordingID(c)
	if !ok {
		return
	}

	partNumber, err := strconv.Atoi(c.PostForm("part_number"))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, dto.NewErrorResponse("part_number must be an integer", "INVALID_CHUNK"))
		return
	}
	isFinal, _ := strconv.ParseBool(strings.TrimSpace(c.DefaultPostForm("is_recording_complete", "false")))

	req := service.ChunkRequest{RecordingID: id, PartNumber: partNumber, IsFinal: isFinal, Size: -1}
	file, header, err := c.Request.FormFile("video_part")
	switch {
	case err == nil:
		defer file.Close()
		req.Chunk = file
		req.Size = header.Size
	case errors.Is(err, http.ErrMissingFile):
	default:
		c.JSON(http.StatusUnprocessableEntity, dto.NewErrorResponse("video_part could not be read", "INVALID_CHUNK"))
		return
	}

	res, err := h.uploads.AppendChunk(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *RecordingHandler) WatchLink(c *gin.Context) {
	id, ok := recordingID(c)
	if !ok {
		return
	}
	link, err := h.recordings.WatchLink(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(link))
}

func (h *RecordingHandler) Transcript(c *gin.Context) {
	id, ok := recordingID(c)
	if !ok {
		return
	}
	text, err := h.recordings.Transcript(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", "inline; filename=\""+id.String()+".srt\"")
	c.Data(http.StatusOK, "application/x-subrip; charset=utf-8", []byte(text))
}

func (h *RecordingHandler) RequestArchive(c *gin.Context) {
	id, ok := recordingID(c)
	if !ok {
		return
	}
	res, err := h.archives.Request(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusAccepted
	if res.DownloadURL != "" {
		status = http.StatusOK
	}
	c.JSON(status, dto.NewSuccessResponse(res))
}

func (h *RecordingHandler) ArchiveStatus(c *gin.Context) {
	id, ok := recordingID(c)
	if !ok {
		return
	}
	res, err := h.recordings.ArchiveStatus(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(res))
}

func recordingID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse("invalid recording id", "INVALID_REQUEST"))
		return uuid.Nil, false
	}
	return id, true
}

// writeError maps service error markers to a status and code.
func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL_ERROR"
	switch {
	case errors.Is(err, service.ErrClientInput):
		status, code = http.StatusUnprocessableEntity, "INVALID_CHUNK"
	case errors.Is(err, service.ErrIntegrity):
		status, code = http.StatusUnprocessableEntity, "DATA_INTEGRITY"
	case errors.Is(err, service.ErrBusy):
		status, code = http.StatusConflict, "SESSION_BUSY"
	case errors.Is(err, service.ErrConflict):
		status, code = http.StatusConflict, "CONFLICT"
	case errors.Is(err, service.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, service.ErrServerIO):
		code = "SERVER_IO_ERROR"
	}

	logger := zerolog.Ctx(c.Request.Context())
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(status, dto.NewErrorResponse("internal error", code))
		return
	}
	logger.Warn().Err(err).Str("path", c.FullPath()).Int("status", status).Msg("request rejected")
	c.JSON(status, dto.NewErrorResponse(err.Error(), code))
}
