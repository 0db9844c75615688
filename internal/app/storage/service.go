package storage

import (
	"context"
	"errors"
	"time"

	"groupchat/internal/app/store"
)

// ErrArchiveDisabled is returned by lookups when no bucket is configured.
var ErrArchiveDisabled = errors.New("room archive is not configured")

// ServiceConfig holds the configuration required to connect to the storage service.
type ServiceConfig struct {
	S3BucketName      string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// Archiver keeps transcripts of deleted rooms.
type Archiver interface {
	// ArchiveRoom uploads the transcript of room and returns its object key.
	// An empty key with a nil error means archiving is disabled.
	ArchiveRoom(ctx context.Context, room string, msgs []store.Message) (string, error)

	// PresignDownload generates a pre-signed URL for downloading an archived transcript.
	PresignDownload(ctx context.Context, key string, duration time.Duration) (string, error)
}

// NewArchiver is the factory function for Archiver.
// A config without a bucket yields an archiver that does nothing.
func NewArchiver(cfg ServiceConfig) (Archiver, error) {
	if cfg.S3BucketName == "" {
		return NopArchiver{}, nil
	}
	return newS3Client(cfg)
}

// NopArchiver discards transcripts.
type NopArchiver struct{}

func (NopArchiver) ArchiveRoom(context.Context, string, []store.Message) (string, error) {
	return "", nil
}

func (NopArchiver) PresignDownload(context.Context, string, time.Duration) (string, error) {
	return "", ErrArchiveDisabled
}
