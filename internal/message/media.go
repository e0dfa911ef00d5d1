package message

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zapdesk/zapdesk/internal/config"
	"github.com/zapdesk/zapdesk/internal/retry"
	"github.com/zapdesk/zapdesk/internal/wap"
)

// Media is a stored attachment reference.
type Media struct {
	URL      string
	MimeType string
	FileName string
}

// FileStore persists attachment bytes and returns a serving reference.
type FileStore interface {
	Save(ctx context.Context, tenantID, filename string, data []byte) (string, error)
}

// Fetcher downloads message attachments with bounded retry and stores
// them under collision-free names.
type Fetcher struct {
	files  FileStore
	policy retry.Policy
	logger *slog.Logger
}

// NewFetcher creates a media fetcher.
func NewFetcher(log *slog.Logger, cfg config.WhatsAppConfig, files FileStore) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	attempts := cfg.MediaRetryLimit
	if attempts <= 0 {
		attempts = 10
	}
	return &Fetcher{
		files: files,
		policy: retry.Policy{
			MaxAttempts: attempts,
			Backoff:     retry.Linear(time.Second, 2),
		},
		logger: log.With(slog.String("service", "media")),
	}
}

// Fetch downloads the attachment of a raw message and stores it. On
// exhausted retries the error surfaces to the caller, which records the
// message without attachment bytes.
func (f *Fetcher) Fetch(ctx context.Context, client wap.Client, tenantID string, raw wap.RawMessage) (Media, error) {
	var data []byte
	err := retry.Do(ctx, f.policy, func(ctx context.Context) error {
		var err error
		data, err = client.DownloadAttachment(ctx, raw)
		return err
	})
	if err != nil {
		return Media{}, fmt.Errorf("download attachment %s: %w", raw.ID, err)
	}

	filename := uniqueFilename(raw.Content.FileName, raw.Content.MimeType)
	url, err := f.files.Save(ctx, tenantID, filename, data)
	if err != nil {
		return Media{}, fmt.Errorf("store attachment %s: %w", raw.ID, err)
	}
	f.logger.Debug("attachment stored",
		slog.String("tenant_id", tenantID),
		slog.String("filename", filename),
		slog.Int("bytes", len(data)),
	)
	return Media{URL: url, MimeType: raw.Content.MimeType, FileName: filename}, nil
}

// uniqueFilename appends a short random token plus a timestamp so the
// same document re-sent twice never collides in storage.
func uniqueFilename(original, mimeType string) string {
	ext := filepath.Ext(original)
	base := strings.TrimSuffix(filepath.Base(original), ext)
	if base == "" || base == "." {
		base = "file"
	}
	if ext == "" {
		if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
			ext = exts[0]
		} else {
			ext = ".bin"
		}
	}
	token := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("%s-%s-%d%s", sanitize(base), token, time.Now().UnixMilli(), ext)
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, name)
}

// LocalFileStore writes attachments under a per-tenant directory on disk
// and serves them from the /media route.
type LocalFileStore struct {
	dir string
}

// NewLocalFileStore creates a disk-backed file store rooted at dir.
func NewLocalFileStore(cfg config.MediaConfig) *LocalFileStore {
	return &LocalFileStore{dir: cfg.Dir}
}

func (s *LocalFileStore) Save(ctx context.Context, tenantID, filename string, data []byte) (string, error) {
	dir := filepath.Join(s.dir, tenantID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, filename), data, 0o644); err != nil {
		return "", fmt.Errorf("write attachment: %w", err)
	}
	return "/media/" + tenantID + "/" + filename, nil
}
