// Package archive bundles video parts with an integrity manifest.
package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zip"
	"recording-pipeline/pkg/fileutil"
)

type ManifestEntry struct {
	Filename  string
	SHA256    string
	SizeBytes int64
}

type Manifest struct {
	Title         string
	RecordingID   string
	CaseReference string
	GeneratedAt   time.Time
	Entries       []ManifestEntry
}

var rule = strings.Repeat("=", 80)

// String renders the manifest as the plain-text integrity file.
func (m Manifest) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s\n", m.Title, rule)
	fmt.Fprintf(&b, "Oitiva UUID: %s\n", m.RecordingID)
	fmt.Fprintf(&b, "Inquérito: %s\n", m.CaseReference)
	fmt.Fprintf(&b, "Data de Geração: %s\n", m.GeneratedAt.Format("02/01/2006 15:04:05"))
	fmt.Fprintf(&b, "Total de Partes: %d\n", len(m.Entries))
	fmt.Fprintf(&b, "%s\n\n", rule)
	for _, e := range m.Entries {
		fmt.Fprintf(&b, "Arquivo: %s\n", e.Filename)
		fmt.Fprintf(&b, "Hash SHA-256: %s\n", e.SHA256)
		fmt.Fprintf(&b, "Tamanho: %s\n\n", humanize.IBytes(uint64(e.SizeBytes)))
	}
	return b.String()
}

// HashParts computes a manifest entry for each file, in the given order.
func HashParts(paths []string) ([]ManifestEntry, error) {
	entries := make([]ManifestEntry, 0, len(paths))
	for _, p := range paths {
		sum, size, err := fileutil.HashFile(p)
		if err != nil {
			return nil, fmt.Errorf("hash %s: %w", filepath.Base(p), err)
		}
		entries = append(entries, ManifestEntry{Filename: filepath.Base(p), SHA256: sum, SizeBytes: size})
	}
	return entries, nil
}

// WriteZip writes parts (stored, already compressed video) plus the manifest
// text as manifestName into zipPath.
func WriteZip(zipPath string, parts []string, manifestName string, manifest Manifest) error {
	out, err := os.Create(zipPath)
	if err != nil {
		return err
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, p := range parts {
		if err := addFile(zw, p); err != nil {
			zw.Close()
			return fmt.Errorf("add %s: %w", filepath.Base(p), err)
		}
	}

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     manifestName,
		Method:   zip.Deflate,
		Modified: manifest.GeneratedAt,
	})
	if err != nil {
		zw.Close()
		return err
	}
	if _, err := io.WriteString(w, manifest.String()); err != nil {
		zw.Close()
		return err
	}

	if err := zw.Close(); err != nil {
		return err
	}
	return out.Close()
}

func addFile(zw *zip.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = filepath.Base(path)
	header.Method = zip.Store

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}
