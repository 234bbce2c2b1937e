package constant

type JobStatus string

const (
	JobStatusNone       JobStatus = ""
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCompleted  JobStatus = "completed"
)

// InFlight reports whether a job holding this status is queued or running.
func (s JobStatus) InFlight() bool {
	return s == JobStatusPending || s == JobStatusProcessing
}

type JobType string

const (
	JobTypeTranscode  JobType = "transcode"
	JobTypeTranscribe JobType = "transcribe"
	JobTypeArchive    JobType = "archive"
)

func (t JobType) String() string {
	return string(t)
}

// Stage is the last durable point a recording reached in the pipeline.
type Stage string

const (
	StageCreated     Stage = "created"
	StageUploaded    Stage = "uploaded"
	StageTranscoded  Stage = "transcoded"
	StageTranscribed Stage = "transcribed"
)

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
	EnvironmentDevelop    Environment = "develop"
)

func (e Environment) String() string {
	return string(e)
}

type QueueDriver string

const (
	QueueDriverRabbitMQ QueueDriver = "rabbitmq"
	QueueDriverAsynq    QueueDriver = "asynq"
)

type StorageDriver string

const (
	StorageDriverMinIO StorageDriver = "minio"
	StorageDriverS3    StorageDriver = "s3"
	StorageDriverLocal StorageDriver = "local"
)

type LockBackend string

const (
	LockBackendFile  LockBackend = "file"
	LockBackendRedis LockBackend = "redis"
)
