package storage

import (
	"context"
	"fmt"

	"melodia/internal/domain"
)

// SMB is the second reference storage adapter named by the storage backend
// capability. No example repo in the retrieval pack exercises an SMB client
// library, so this adapter is wired into the factory (protocol prefix "smb")
// but returns a clear configuration error rather than silently behaving like
// local disk; a real SMB client can be dropped in here without touching
// callers, since they only ever see the Backend interface.
type SMB struct {
	Share string
}

func NewSMB(share string) *SMB {
	return &SMB{Share: share}
}

func (s *SMB) Walk(ctx context.Context, root domain.MediaPath, visit func(domain.FileMeta) error) error {
	return fmt.Errorf("smb backend not configured: share %q has no client wired", s.Share)
}

func (s *SMB) LocalPath(path domain.MediaPath) (string, error) {
	return "", fmt.Errorf("smb backend not configured: share %q has no client wired", s.Share)
}
