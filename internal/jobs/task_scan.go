package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"melodia/internal/scan"
)

type ScanPayload struct {
	FullScan bool `json:"full_scan"`
}

// ScanHandler runs one scan.Engine pass per dispatched task, used for
// admin-triggered rescans that shouldn't block the HTTP request handling
// them.
type ScanHandler struct {
	engine *scan.Engine
	log    *slog.Logger
}

func NewScanHandler(engine *scan.Engine, log *slog.Logger) *ScanHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ScanHandler{engine: engine, log: log}
}

func (h *ScanHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p ScanPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal scan payload: %w", err)
	}
	result, err := h.engine.Run(ctx, p.FullScan)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	h.log.Info("dispatched scan complete", "found", result.FilesFound, "removed", result.FilesRemoved)
	return nil
}

var _ asynq.Handler = (*ScanHandler)(nil)
