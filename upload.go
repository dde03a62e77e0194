package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxVoiceBytes caps voice uploads at 10 MiB.
const maxVoiceBytes = 10 << 20

// allowedVoiceTypes maps accepted MIME types to the extension used for
// the stored file when the original filename has none.
var allowedVoiceTypes = map[string]string{
	"audio/mpeg":  ".mp3",
	"audio/mp3":   ".mp3",
	"audio/wav":   ".wav",
	"audio/x-wav": ".wav",
	"audio/ogg":   ".ogg",
	"audio/webm":  ".webm",
	"audio/mp4":   ".m4a",
	"audio/x-m4a": ".m4a",
	"audio/aac":   ".aac",
}

// AttachmentStager stores voice payloads content-addressably on disk and
// hands back the generated filename token a message can reference.
type AttachmentStager struct {
	dir string
}

func NewAttachmentStager(dir string) (*AttachmentStager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &AttachmentStager{dir: dir}, nil
}

func (s *AttachmentStager) Dir() string {
	return s.dir
}

// Store validates and writes a voice payload, returning its metadata.
// The MIME allow-list and size cap are enforced before anything touches
// disk. declaredSize may be -1 if the caller does not know it upfront.
func (s *AttachmentStager) Store(r io.Reader, declaredSize int64, mimetype, originalName string) (*StoredFile, error) {
	if _, ok := allowedVoiceTypes[mimetype]; !ok {
		return nil, ErrUnsupportedMediaType
	}
	if declaredSize > maxVoiceBytes {
		return nil, ErrPayloadTooLarge
	}

	// Read one byte past the cap so an undeclared oversize payload is
	// caught before the file is created.
	data, err := io.ReadAll(io.LimitReader(r, maxVoiceBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	if int64(len(data)) > maxVoiceBytes {
		return nil, ErrPayloadTooLarge
	}

	token := s.generateToken(mimetype, originalName)
	path := filepath.Join(s.dir, token)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write attachment: %w", err)
	}

	return &StoredFile{
		Filename:     token,
		OriginalName: originalName,
		MimeType:     mimetype,
		Size:         int64(len(data)),
		Path:         path,
		URL:          "/uploads/" + token,
	}, nil
}

func (s *AttachmentStager) generateToken(mimetype, originalName string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	if ext == "" {
		ext = allowedVoiceTypes[mimetype]
	}
	return fmt.Sprintf("voice-%s-%d%s", uuid.NewString(), time.Now().UnixMilli(), ext)
}

// Resolve maps a filename token to its on-disk path, rejecting anything
// that would escape the upload directory.
func (s *AttachmentStager) Resolve(token string) (string, error) {
	if token == "" || token != filepath.Base(token) || strings.HasPrefix(token, ".") {
		return "", fmt.Errorf("invalid attachment reference")
	}
	return filepath.Join(s.dir, token), nil
}

// Stat reports the size of a stored attachment, or an error if the
// token does not correspond to a stored file.
func (s *AttachmentStager) Stat(token string) (int64, error) {
	path, err := s.Resolve(token)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return 0, fmt.Errorf("attachment not found: %s", token)
	}
	return info.Size(), nil
}
