// Package storage implements the pluggable backend capability storage
// (local filesystem, S3-compatible via minio-go) that the scan engine and
// streaming engine read through, keyed by MediaPath.Protocol.
package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"melodia/internal/domain"
)

// Local is the filesystem backend: MediaPath.Protocol "local", Path an
// absolute filesystem path rooted under Root.
type Local struct {
	Root string
}

func NewLocal(root string) *Local {
	return &Local{Root: root}
}

func (l *Local) Walk(ctx context.Context, root domain.MediaPath, visit func(domain.FileMeta) error) error {
	return filepath.WalkDir(root.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries, keep walking
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root.Path {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		meta := domain.FileMeta{
			Path:    domain.MediaPath{Protocol: "local", Path: path},
			DirPath: domain.MediaPath{Protocol: "local", Path: filepath.Dir(path)},
			Size:    info.Size(),
			Suffix:  suffixOf(path),
			Mtime:   info.ModTime().UTC(),
			Atime:   accessTime(info),
			Ctime:   info.ModTime().UTC(),
		}
		return visit(meta)
	})
}

func (l *Local) LocalPath(path domain.MediaPath) (string, error) {
	if path.Protocol != "local" {
		return "", fmt.Errorf("local backend cannot resolve protocol %q", path.Protocol)
	}
	return path.Path, nil
}

func (l *Local) Exists(path domain.MediaPath) bool {
	_, err := os.Stat(path.Path)
	return err == nil
}

func suffixOf(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// accessTime falls back to mtime on platforms where the Stat_t access time
// isn't easily reached without syscall-specific types; local scans only use
// mtime for change detection in practice.
func accessTime(info fs.FileInfo) time.Time {
	return info.ModTime().UTC()
}
