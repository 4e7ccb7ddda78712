package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"melodia/internal/domain"
	"melodia/internal/playback"
)

// PlaybackHandler exposes playback.Service over HTTP: player transitions,
// the saved play queue, and annotations. Identity comes from the same
// X-User-Id header the playlist handler trusts.
type PlaybackHandler struct {
	service *playback.Service
}

func NewPlaybackHandler(service *playback.Service) *PlaybackHandler {
	return &PlaybackHandler{service: service}
}

type playItemRequest struct {
	ItemID int64 `json:"itemId" binding:"required"`
}

type saveQueueRequest struct {
	Items      []int64 `json:"items"`
	Current    *int64  `json:"current"`
	PositionMs int64   `json:"positionMs"`
	ChangedBy  string  `json:"changedBy"`
}

type rateRequest struct {
	ItemKind int   `json:"itemKind"`
	ItemID   int64 `json:"itemId" binding:"required"`
	Rating   int   `json:"rating"`
}

type scrobbleRequest struct {
	AudioFileID int64 `json:"audioFileId" binding:"required"`
	Submission  bool  `json:"submission"`
}

func (h *PlaybackHandler) Play(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}
	var req playItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.service.Play(userID, req.ItemID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *PlaybackHandler) Pause(c *gin.Context) {
	h.transition(c, h.service.Pause)
}

func (h *PlaybackHandler) Resume(c *gin.Context) {
	h.transition(c, h.service.Resume)
}

func (h *PlaybackHandler) Stop(c *gin.Context) {
	h.transition(c, h.service.Stop)
}

func (h *PlaybackHandler) Heartbeat(c *gin.Context) {
	h.transition(c, h.service.Heartbeat)
}

func (h *PlaybackHandler) transition(c *gin.Context, fn func(int64) (*domain.Player, error)) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}
	p, err := fn(userID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *PlaybackHandler) SaveQueue(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}
	var req saveQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	q, err := h.service.SaveQueue(userID, req.Items, req.Current, req.PositionMs, req.ChangedBy)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *PlaybackHandler) GetQueue(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}
	q, err := h.service.GetQueue(userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *PlaybackHandler) Star(c *gin.Context) {
	h.setStar(c, true)
}

func (h *PlaybackHandler) Unstar(c *gin.Context) {
	h.setStar(c, false)
}

func (h *PlaybackHandler) setStar(c *gin.Context, star bool) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}
	var req rateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var err error
	if star {
		err = h.service.Star(userID, domain.AnnotationItemKind(req.ItemKind), req.ItemID)
	} else {
		err = h.service.Unstar(userID, domain.AnnotationItemKind(req.ItemKind), req.ItemID)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PlaybackHandler) Rate(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}
	var req rateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.Rate(userID, domain.AnnotationItemKind(req.ItemKind), req.ItemID, req.Rating); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PlaybackHandler) Scrobble(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}
	var req scrobbleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.Scrobble(userID, req.AudioFileID, req.Submission); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
