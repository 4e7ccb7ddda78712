// Package coverart resolves a cover art request to image bytes: check the
// cache, gather candidate image paths in priority order, decode/rescale/
// re-encode on a miss, and fall back to a placeholder when nothing is
// found. Grounded on spec step §4.9 directly (original_source's
// application crate has no dedicated cover-art query to mirror) and on the
// teacher's resize/cache idiom from llehouerou-waves's internal/ui/albumart
// (nfnt/resize.Thumbnail) and internal/services/hls.Cache (disk-backed
// blob cache by opaque key).
package coverart

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/nfnt/resize"

	"melodia/internal/domain"
)

// wildcardPriority is the filesystem-candidate search order from spec
// step 3, applied in this exact priority: earlier patterns win when more
// than one file matches in the same directory.
var wildcardPriority = []string{"cover.*", "folder.*", "front.*", "album.*", "albumart.*", "*"}

// Backend resolves a MediaPath to a local, readable path.
type Backend interface {
	LocalPath(path domain.MediaPath) (string, error)
}

// Cache is the narrow blob-cache capability coverart needs; satisfied by
// *hls.Cache, the same type streamengine reuses for transcoded audio.
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, data []byte, ext string) error
}

// Request names the entity a cover is wanted for and the target edge size
// in pixels (0 keeps the source size).
type Request struct {
	AudioFileID int64
	SizePx      int
}

// Image is the resolved, ready-to-serve cover.
type Image struct {
	Data        []byte
	ContentType string
	FromCache   bool
}

type Engine struct {
	audioFileRepo domain.AudioFileRepository
	coverArtRepo  domain.CoverArtRepository
	backend       Backend
	cache         Cache
	placeholder   []byte
	log           *slog.Logger
}

func NewEngine(audioFileRepo domain.AudioFileRepository, coverArtRepo domain.CoverArtRepository, backend Backend, cache Cache, placeholder []byte, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{audioFileRepo: audioFileRepo, coverArtRepo: coverArtRepo, backend: backend, cache: cache, placeholder: placeholder, log: log}
}

func cacheKey(audioFileID int64, sizePx int) string {
	return fmt.Sprintf("cover:%d:%d", audioFileID, sizePx)
}

// GetCoverArt resolves req to image bytes: cache hit returns immediately;
// otherwise the candidate search runs (CoverArt rows bound to the audio
// file first, then filesystem wildcards in its directory, in priority
// order), the winner is decoded/rescaled/re-encoded, cached, and returned.
// An entity with no cover anywhere serves the configured placeholder.
func (e *Engine) GetCoverArt(ctx context.Context, req Request) (*Image, error) {
	key := cacheKey(req.AudioFileID, req.SizePx)

	if e.cache != nil {
		if data, ok := e.cache.Get(key); ok {
			return &Image{Data: data, ContentType: "image/jpeg", FromCache: true}, nil
		}
	}

	raw, err := e.findCandidate(req.AudioFileID)
	if err != nil || raw == nil {
		if e.placeholder != nil {
			return &Image{Data: e.placeholder, ContentType: "image/jpeg"}, nil
		}
		return nil, fmt.Errorf("no cover art found for audio file %d", req.AudioFileID)
	}

	encoded, err := rescaleAndEncode(raw, req.SizePx)
	if err != nil {
		e.log.Warn("failed to rescale cover art, serving placeholder", "audio_file_id", req.AudioFileID, "error", err)
		if e.placeholder != nil {
			return &Image{Data: e.placeholder, ContentType: "image/jpeg"}, nil
		}
		return nil, err
	}

	if e.cache != nil {
		if err := e.cache.Put(key, encoded, ".jpg"); err != nil {
			e.log.Warn("failed to cache cover art", "key", key, "error", err)
		}
	}

	return &Image{Data: encoded, ContentType: "image/jpeg"}, nil
}

// findCandidate returns the winning source's raw bytes, or nil if nothing
// is found anywhere in the search order.
func (e *Engine) findCandidate(audioFileID int64) ([]byte, error) {
	if data, ok := e.embeddedOrBoundPicture(audioFileID); ok {
		return data, nil
	}
	return e.wildcardPicture(audioFileID)
}

// embeddedOrBoundPicture consults the cover_art table for rows bound to
// this audio file, picking the source with the smallest
// domain.CoverArtSource.Priority value (lower wins).
func (e *Engine) embeddedOrBoundPicture(audioFileID int64) ([]byte, bool) {
	candidates, err := e.coverArtRepo.FindByAudioFileID(audioFileID)
	if err != nil || len(candidates) == 0 {
		return nil, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Source.Priority() < candidates[j].Source.Priority()
	})

	winner := candidates[0]
	path, err := e.backend.LocalPath(winner.Path)
	if err != nil {
		return nil, false
	}
	data, err := readFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}

// wildcardPicture scans the audio file's containing directory for the
// first filename matching wildcardPriority, in that order.
func (e *Engine) wildcardPicture(audioFileID int64) ([]byte, error) {
	af, err := e.audioFileRepo.FindByID(audioFileID)
	if err != nil {
		return nil, err
	}

	dirPath := af.Path.ParentPath()
	localDir, err := e.backend.LocalPath(dirPath)
	if err != nil {
		return nil, err
	}

	for _, pattern := range wildcardPriority {
		matches, err := filepathGlob(localDir, pattern)
		if err != nil || len(matches) == 0 {
			continue
		}
		sort.Strings(matches)
		data, err := readFile(matches[0])
		if err == nil {
			return data, nil
		}
	}
	return nil, nil
}

// rescaleAndEncode decodes raw, resizes to sizePx on the long edge
// (0 keeps the source size), and re-encodes as JPEG — the one output
// format streamed to every client regardless of source container.
func rescaleAndEncode(raw []byte, sizePx int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode cover art: %w", err)
	}

	if sizePx > 0 {
		img = resize.Thumbnail(uint(sizePx), uint(sizePx), img, resize.Lanczos3)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encode cover art: %w", err)
	}
	return buf.Bytes(), nil
}

// ETagForKey derives a weak validator from the cache key so handlers can
// set Cache-Control/ETag without re-reading the image.
func ETagForKey(audioFileID int64, sizePx int) string {
	return `"` + strconv.FormatInt(audioFileID, 10) + "-" + strconv.Itoa(sizePx) + `"`
}

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func filepathGlob(dir, pattern string) ([]string, error) {
	return filepath.Glob(filepath.Join(dir, pattern))
}
