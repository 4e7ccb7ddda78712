package streamengine

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Handler exposes Engine over HTTP range requests. Range parsing and
// conditional-request handling are adapted from internal/streaming/
// stream.go (itself now retired along with the services generation it
// depended on) onto Engine's transcode-aware decision instead of a plain
// file read.
type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

type byteRange struct {
	start, end int64
}

// StreamAudioFile serves GET /audio-files/:id/stream. Query params: format
// (raw|auto|<suffix>), max_bit_rate (kbps).
func (h *Handler) StreamAudioFile(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid audio file id"})
		return
	}

	info, err := h.engine.GetInfo(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "audio file not found"})
		return
	}

	req := Request{
		AudioFileID: id,
		Format:      c.Query("format"),
	}
	if mbr := c.Query("max_bit_rate"); mbr != "" {
		if v, err := strconv.Atoi(mbr); err == nil {
			req.MaxBitRateKbps = v
		}
	}

	decision := h.engine.Decide(req, info)

	if !decision.NeedsTranscoding {
		h.serveRawWithRange(c, info)
		return
	}

	h.serveTranscoded(c, info, decision)
}

// serveRawWithRange serves the source file directly, honoring Range
// requests so seeking in a player doesn't require refetching the whole
// file.
func (h *Handler) serveRawWithRange(c *gin.Context, info *Info) {
	file, err := os.Open(info.Path)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "audio file not found on disk"})
		return
	}
	defer file.Close()

	fileInfo, err := file.Stat()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to stat audio file"})
		return
	}
	lastModified := fileInfo.ModTime()

	c.Header("Content-Type", info.ContentType)
	c.Header("Accept-Ranges", "bytes")
	c.Header("Last-Modified", lastModified.Format(http.TimeFormat))
	c.Header("Cache-Control", "public, max-age=31536000")

	if checkNotModified(c, lastModified) {
		c.Status(http.StatusNotModified)
		return
	}

	rangeHeader := c.GetHeader("Range")
	if rangeHeader == "" {
		c.Header("Content-Length", strconv.FormatInt(info.Size, 10))
		c.Status(http.StatusOK)
		io.Copy(c.Writer, file)
		return
	}

	ranges, err := parseRangeHeader(rangeHeader, info.Size)
	if err != nil || len(ranges) != 1 {
		c.Header("Content-Range", fmt.Sprintf("bytes */%d", info.Size))
		c.Status(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	r := ranges[0]
	contentLength := r.end - r.start + 1

	c.Header("Content-Range", fmt.Sprintf("bytes %d-%d/%d", r.start, r.end, info.Size))
	c.Header("Content-Length", strconv.FormatInt(contentLength, 10))
	c.Status(http.StatusPartialContent)

	if _, err := file.Seek(r.start, io.SeekStart); err != nil {
		return
	}
	io.CopyN(c.Writer, file, contentLength)
}

// serveTranscoded streams a transcoded response. Range requests aren't
// honored here — ffmpeg output length isn't known up front, and a
// byte-range over a freshly transcoded stream has no stable mapping back
// to seconds without a second pass — so the whole stream is sent once and
// cached for the next request.
func (h *Handler) serveTranscoded(c *gin.Context, info *Info, decision Decision) {
	c.Header("Content-Type", decision.ContentType)
	if decision.EstimatedSize > 0 {
		c.Header("X-Estimated-Content-Length", strconv.FormatInt(decision.EstimatedSize, 10))
	}

	if h.engine.cfg.CacheEnabled && h.engine.cache != nil {
		if data, ok := h.engine.cache.Get(decision.CacheKey); ok {
			c.Header("Content-Length", strconv.FormatInt(int64(len(data)), 10))
			c.Status(http.StatusOK)
			c.Writer.Write(data)
			return
		}
	}

	stream, err := h.engine.CreateTranscodeStream(c.Request.Context(), info, decision)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer stream.Close()

	c.Status(http.StatusOK)
	io.Copy(c.Writer, stream)
}

func checkNotModified(c *gin.Context, lastModified time.Time) bool {
	if modSince := c.GetHeader("If-Modified-Since"); modSince != "" {
		if t, err := time.Parse(http.TimeFormat, modSince); err == nil {
			if lastModified.Truncate(time.Second).Equal(t.Truncate(time.Second)) || lastModified.Before(t) {
				return true
			}
		}
	}
	if unmodSince := c.GetHeader("If-Unmodified-Since"); unmodSince != "" {
		if t, err := time.Parse(http.TimeFormat, unmodSince); err == nil {
			if lastModified.After(t) {
				c.Status(http.StatusPreconditionFailed)
				return true
			}
		}
	}
	return false
}

func parseRangeHeader(rangeHeader string, fileSize int64) ([]byteRange, error) {
	if !strings.HasPrefix(rangeHeader, "bytes=") {
		return nil, fmt.Errorf("unsupported range unit")
	}

	spec := strings.TrimPrefix(rangeHeader, "bytes=")
	parts := strings.Split(spec, ",")

	var ranges []byteRange
	for _, r := range parts {
		r = strings.TrimSpace(r)

		switch {
		case strings.HasPrefix(r, "-"):
			suffixLen, err := strconv.ParseInt(r[1:], 10, 64)
			if err != nil || suffixLen <= 0 || suffixLen > fileSize {
				return nil, fmt.Errorf("invalid suffix range")
			}
			start := fileSize - suffixLen
			if start < 0 {
				start = 0
			}
			ranges = append(ranges, byteRange{start: start, end: fileSize - 1})

		case strings.HasSuffix(r, "-"):
			start, err := strconv.ParseInt(r[:len(r)-1], 10, 64)
			if err != nil || start < 0 || start >= fileSize {
				return nil, fmt.Errorf("invalid prefix range")
			}
			ranges = append(ranges, byteRange{start: start, end: fileSize - 1})

		default:
			bounds := strings.Split(r, "-")
			if len(bounds) != 2 {
				return nil, fmt.Errorf("invalid range format")
			}
			start, err := strconv.ParseInt(bounds[0], 10, 64)
			if err != nil || start < 0 {
				return nil, fmt.Errorf("invalid range start")
			}
			end, err := strconv.ParseInt(bounds[1], 10, 64)
			if err != nil || end < start || end >= fileSize {
				return nil, fmt.Errorf("invalid range end")
			}
			ranges = append(ranges, byteRange{start: start, end: end})
		}
	}

	if len(ranges) == 0 {
		return nil, fmt.Errorf("no valid ranges")
	}
	return ranges, nil
}
