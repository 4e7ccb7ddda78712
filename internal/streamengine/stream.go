// Package streamengine decides whether a requested audio file can be
// served as-is or needs transcoding, and serves the resulting bytes,
// cache-first. Grounded on original_source's StreamMedia
// (decide_transcoding/get_stream_data) and on the teacher's
// internal/streaming range-request handler for the raw-file path.
package streamengine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"melodia/internal/domain"
)

// Backend resolves a MediaPath to a local, os.Open-able path — the same
// capability scan.Engine uses, so both packages can share one storage
// backend instance.
type Backend interface {
	LocalPath(path domain.MediaPath) (string, error)
}

// Config carries the server-side transcoding defaults; zero value is
// usable (falls back to the source format/bitrate, i.e. never transcodes
// unless the caller explicitly requests a different format or bitrate).
type Config struct {
	DefaultFormat      string
	DefaultBitRateKbps int
	CacheEnabled       bool
}

// Request is one stream fetch's parameters.
type Request struct {
	AudioFileID           int64
	MaxBitRateKbps        int
	Format                string // "", "auto", "raw", or an explicit target suffix
	EstimateContentLength bool
}

// Info is the subset of AudioFile technical data the transcode decision
// and raw-file path need.
type Info struct {
	Path            string
	Size            int64
	Suffix          string
	BitRateKbps     int
	DurationSeconds int
	ContentType     string
}

// Decision is the outcome of weighing a Request against an Info.
type Decision struct {
	NeedsTranscoding  bool
	TargetFormat      string
	TargetBitRateKbps int
	ContentType       string
	CacheKey          string
	EstimatedSize     int64
}

// StreamData is the fetched/transcoded payload ready to write to a
// response.
type StreamData struct {
	Data        []byte
	ContentType string
	Size        int64
	FromCache   bool
}

// Cache is the narrow blob-cache capability streamengine needs; satisfied
// by *hls.Cache (get/put by opaque key, bytes in, bytes out).
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, data []byte, ext string) error
}

type Engine struct {
	repo       domain.AudioFileRepository
	backend    Backend
	cache      Cache
	transcoder Transcoder
	cfg        Config
	log        *slog.Logger
}

func NewEngine(repo domain.AudioFileRepository, backend Backend, cache Cache, transcoder Transcoder, cfg Config, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{repo: repo, backend: backend, cache: cache, transcoder: transcoder, cfg: cfg, log: log}
}

// MimeTypeFromSuffix maps a container suffix to its streaming MIME type.
func MimeTypeFromSuffix(suffix string) string {
	switch strings.ToLower(suffix) {
	case "mp3":
		return "audio/mpeg"
	case "flac":
		return "audio/flac"
	case "ogg", "oga":
		return "audio/ogg"
	case "opus":
		return "audio/opus"
	case "m4a", "aac":
		return "audio/mp4"
	case "wav":
		return "audio/wav"
	case "wma":
		return "audio/x-ms-wma"
	case "aiff", "aif":
		return "audio/aiff"
	case "ape":
		return "audio/ape"
	case "dsf":
		return "audio/dsf"
	case "dff":
		return "audio/dff"
	case "wv":
		return "audio/wavpack"
	default:
		return "application/octet-stream"
	}
}

// GetInfo loads the AudioFile aggregate and resolves its on-disk path.
func (e *Engine) GetInfo(ctx context.Context, audioFileID int64) (*Info, error) {
	af, err := e.repo.FindByID(audioFileID)
	if err != nil {
		return nil, err
	}
	path, err := e.backend.LocalPath(af.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	return &Info{
		Path:            path,
		Size:            af.Size,
		Suffix:          af.Suffix,
		BitRateKbps:     af.Technical.BitRateKbps,
		DurationSeconds: af.Technical.DurationSeconds,
		ContentType:     MimeTypeFromSuffix(af.Suffix),
	}, nil
}

func rawCacheKey(id int64, suffix string) string {
	return fmt.Sprintf("raw:%d:%s", id, strings.ToLower(suffix))
}

func transcodedCacheKey(id int64, format string, bitRateKbps int) string {
	return fmt.Sprintf("tc:%d:%s:%d", id, strings.ToLower(format), bitRateKbps)
}

// Decide applies the teacher domain's transcoding policy: raw format
// bypasses transcoding outright; a lossy source never transcodes up to a
// lossless target (no quality to gain, only size to lose); lossless
// targets keep the source bitrate untouched; otherwise a requested bitrate
// below the source, or a different target format, triggers transcoding.
func (e *Engine) Decide(req Request, info *Info) Decision {
	if strings.EqualFold(req.Format, "raw") {
		return Decision{
			NeedsTranscoding:  false,
			TargetFormat:      info.Suffix,
			TargetBitRateKbps: info.BitRateKbps,
			ContentType:       info.ContentType,
			CacheKey:          rawCacheKey(req.AudioFileID, info.Suffix),
			EstimatedSize:     info.Size,
		}
	}

	isAutoOrEmpty := req.Format == "" || strings.EqualFold(req.Format, "auto")
	targetFormat := info.Suffix
	if isAutoOrEmpty {
		if e.cfg.DefaultFormat != "" {
			targetFormat = e.cfg.DefaultFormat
		}
	} else {
		targetFormat = req.Format
	}

	sourceIsLossless := domain.IsLosslessSuffix(info.Suffix)
	targetIsLossless := domain.IsLosslessSuffix(targetFormat)

	if !sourceIsLossless && targetIsLossless {
		return Decision{
			NeedsTranscoding:  false,
			TargetFormat:      info.Suffix,
			TargetBitRateKbps: info.BitRateKbps,
			ContentType:       info.ContentType,
			CacheKey:          rawCacheKey(req.AudioFileID, info.Suffix),
			EstimatedSize:     info.Size,
		}
	}

	var targetBitRate int
	switch {
	case targetIsLossless:
		targetBitRate = info.BitRateKbps
	case req.MaxBitRateKbps > 0 && req.MaxBitRateKbps < info.BitRateKbps:
		targetBitRate = req.MaxBitRateKbps
	case sourceIsLossless && e.cfg.DefaultBitRateKbps > 0:
		targetBitRate = e.cfg.DefaultBitRateKbps
	default:
		targetBitRate = info.BitRateKbps
	}

	formatChanged := !strings.EqualFold(targetFormat, info.Suffix)
	bitrateReduced := !targetIsLossless && targetBitRate < info.BitRateKbps
	needsTranscoding := formatChanged || bitrateReduced

	if !needsTranscoding {
		return Decision{
			NeedsTranscoding:  false,
			TargetFormat:      info.Suffix,
			TargetBitRateKbps: info.BitRateKbps,
			ContentType:       info.ContentType,
			CacheKey:          rawCacheKey(req.AudioFileID, info.Suffix),
			EstimatedSize:     info.Size,
		}
	}

	// bitrate (kbps) * duration (s) / 8 = bytes, plus 10% container overhead.
	estimated := int64(targetBitRate) * int64(info.DurationSeconds) * 1000 / 8
	estimated = estimated * 11 / 10

	return Decision{
		NeedsTranscoding:  true,
		TargetFormat:      targetFormat,
		TargetBitRateKbps: targetBitRate,
		ContentType:       MimeTypeFromSuffix(targetFormat),
		CacheKey:          transcodedCacheKey(req.AudioFileID, targetFormat, targetBitRate),
		EstimatedSize:     estimated,
	}
}

// GetStreamData resolves a request to bytes, checking cache first and
// populating it on a miss.
func (e *Engine) GetStreamData(ctx context.Context, req Request, info *Info) (*StreamData, error) {
	decision := e.Decide(req, info)

	if e.cfg.CacheEnabled && e.cache != nil {
		if data, ok := e.cache.Get(decision.CacheKey); ok {
			e.log.Debug("stream cache hit", "key", decision.CacheKey)
			return &StreamData{Data: data, ContentType: decision.ContentType, Size: int64(len(data)), FromCache: true}, nil
		}
	}

	var data []byte
	var err error
	if decision.NeedsTranscoding {
		data, err = e.transcodeAll(ctx, info, decision)
	} else {
		data, err = readRawFile(info.Path)
	}
	if err != nil {
		return nil, err
	}

	if e.cfg.CacheEnabled && e.cache != nil {
		if err := e.cache.Put(decision.CacheKey, data, "."+decision.TargetFormat); err != nil {
			e.log.Warn("failed to cache stream data", "key", decision.CacheKey, "error", err)
		}
	}

	return &StreamData{Data: data, ContentType: decision.ContentType, Size: int64(len(data)), FromCache: false}, nil
}
