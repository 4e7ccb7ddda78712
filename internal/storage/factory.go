package storage

import (
	"context"
	"fmt"

	"melodia/internal/domain"
)

// Backend is the minimal capability scan.Backend and the streaming engine
// need: walk a root, resolve a MediaPath to a filesystem path.
type Backend interface {
	Walk(ctx context.Context, root domain.MediaPath, visit func(domain.FileMeta) error) error
	LocalPath(path domain.MediaPath) (string, error)
}

// Config selects and configures one backend by protocol prefix.
type Config struct {
	Protocol string // "local", "smb", "s3"
	LocalRoot string
	SMBShare  string
	S3        S3Config
}

// New resolves a Config into the matching Backend implementation.
func New(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Protocol {
	case "", "local":
		return NewLocal(cfg.LocalRoot), nil
	case "smb":
		return NewSMB(cfg.SMBShare), nil
	case "s3":
		return NewS3(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage protocol %q", cfg.Protocol)
	}
}
