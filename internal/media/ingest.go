// Package media classifies uploaded files and stores them in the object
// store behind the CDN.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ayush/scrollable/internal/apperr"
	"github.com/ayush/scrollable/internal/models"
	"github.com/ayush/scrollable/internal/store"
)

// FileStore defines the interface for object storage.
type FileStore interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string, meta map[string]string) error
	Metadata(ctx context.Context, key string) (map[string]string, error)
	Remove(ctx context.Context, key string) error
}

// Object metadata keys.
const (
	MetaOwner          = "owner"
	MetaResourceType   = "resource-type"
	MetaTransformation = "transformation"
)

// Delivery transformations applied by the CDN, keyed by media type.
const (
	ImageTransform = "c_limit,w_1080,h_1080,q_auto"
	VideoTransform = "q_auto"
)

const (
	msgUnsupported  = "Only image and video files are allowed!"
	msgUploadFailed = "Failed to upload file"
)

type Options struct {
	PublicURL string
	Bucket    string
	Folder    string
	Timeout   time.Duration
}

type Ingestor struct {
	files FileStore
	opts  Options
	log   logrus.FieldLogger
}

func NewIngestor(files FileStore, opts Options, log logrus.FieldLogger) *Ingestor {
	if opts.Folder == "" {
		opts.Folder = "scrollable"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	return &Ingestor{files: files, opts: opts, log: log.WithField("component", "media")}
}

func normalizeMime(raw string) string {
	m := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.Index(m, ";"); i >= 0 {
		m = strings.TrimSpace(m[:i])
	}
	return m
}

// Classify resolves the effective MIME type. The declared type wins unless
// it is missing or generic, in which case the content is sniffed.
func Classify(data []byte, declared string) (string, models.MediaType, error) {
	mime := normalizeMime(declared)
	if mime == "" || mime == "application/octet-stream" {
		mime = normalizeMime(mimetype.Detect(data).String())
	}
	switch {
	case strings.HasPrefix(mime, "video/"):
		return mime, models.MediaVideo, nil
	case strings.HasPrefix(mime, "image/"):
		return mime, models.MediaImage, nil
	default:
		return mime, "", apperr.Validation(msgUnsupported)
	}
}

// Transform returns the delivery profile for t.
func Transform(t models.MediaType) string {
	if t == models.MediaVideo {
		return VideoTransform
	}
	return ImageTransform
}

func extension(filename, mime string) string {
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		return ext
	}
	if m := mimetype.Lookup(mime); m != nil {
		return m.Extension()
	}
	return ""
}

// Upload validates data and stores it on behalf of ownerID. Rejection
// happens before the object store is contacted.
func (in *Ingestor) Upload(ctx context.Context, ownerID string, data []byte, filename, declared string) (*models.Upload, error) {
	mime, kind, err := Classify(data, declared)
	if err != nil {
		return nil, err
	}

	key := in.opts.Folder + "/" + uuid.NewString() + extension(filename, mime)
	meta := map[string]string{
		MetaOwner:          ownerID,
		MetaResourceType:   string(kind),
		MetaTransformation: Transform(kind),
	}

	ctx, cancel := context.WithTimeout(ctx, in.opts.Timeout)
	defer cancel()
	if err := in.files.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), mime, meta); err != nil {
		return nil, apperr.Wrap(apperr.KindUploadFailed, msgUploadFailed, err)
	}

	in.log.WithFields(logrus.Fields{
		"key":   key,
		"owner": ownerID,
		"type":  kind,
		"bytes": len(data),
	}).Info("media stored")
	return &models.Upload{URL: in.URL(key), Type: kind, PublicID: key}, nil
}

// URL is where the CDN serves key.
func (in *Ingestor) URL(key string) string {
	base := strings.TrimRight(in.opts.PublicURL, "/")
	if in.opts.Bucket != "" {
		return fmt.Sprintf("%s/%s/%s", base, in.opts.Bucket, key)
	}
	return base + "/" + key
}

// metaValue looks key up case-insensitively; S3 backends canonicalize
// metadata names.
func metaValue(meta map[string]string, key string) string {
	for k, v := range meta {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// Release removes the object behind mediaURL when this ingestor stored it
// for requesterID. URLs pointing elsewhere and objects uploaded by someone
// else are left alone.
func (in *Ingestor) Release(ctx context.Context, mediaURL, requesterID string) error {
	prefix := in.URL(in.opts.Folder + "/")
	if requesterID == "" || !strings.HasPrefix(mediaURL, prefix) {
		return nil
	}
	key := in.opts.Folder + "/" + strings.TrimPrefix(mediaURL, prefix)

	meta, err := in.files.Metadata(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", key, err)
	}
	if owner := metaValue(meta, MetaOwner); owner != requesterID {
		in.log.WithFields(logrus.Fields{"key": key, "owner": owner, "requester": requesterID}).
			Debug("media kept, not owned by requester")
		return nil
	}
	if err := in.files.Remove(ctx, key); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}
