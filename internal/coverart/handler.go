package coverart

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler exposes Engine over HTTP.
type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// GetCoverArt serves GET /audio-files/:id/cover-art?size=<px>. Responses
// are cache-control far-future with an ETag derived from the cache key,
// since a given (id, size) pair's bytes never change once written.
func (h *Handler) GetCoverArt(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid audio file id"})
		return
	}

	sizePx := 0
	if s := c.Query("size"); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			sizePx = v
		}
	}

	etag := ETagForKey(id, sizePx)
	if match := c.GetHeader("If-None-Match"); match == etag {
		c.Status(http.StatusNotModified)
		return
	}

	img, err := h.engine.GetCoverArt(c.Request.Context(), Request{AudioFileID: id, SizePx: sizePx})
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.Header("ETag", etag)
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.Data(http.StatusOK, img.ContentType, img.Data)
}
