package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"melodia/internal/playlist"
)

// PlaylistHandler exposes playlist.Service over HTTP. Identity comes from
// an X-User-Id header rather than a bearer token: token format and password
// hashing are explicitly out of scope here, so the handler trusts whatever
// upstream gateway/reverse proxy authenticates the caller and forwards the
// resolved user id.
type PlaylistHandler struct {
	service *playlist.Service
}

func NewPlaylistHandler(service *playlist.Service) *PlaylistHandler {
	return &PlaylistHandler{service: service}
}

type createPlaylistRequest struct {
	Name string `json:"name" binding:"required"`
}

type renamePlaylistRequest struct {
	Name    string `json:"name" binding:"required"`
	Comment string `json:"comment"`
	Public  bool   `json:"public"`
}

type addEntriesRequest struct {
	AudioFileIDs []int64 `json:"audioFileIds" binding:"required"`
}

type removeEntriesRequest struct {
	Indexes []int `json:"indexes" binding:"required"`
}

func requesterID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.GetHeader("X-User-Id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid X-User-Id header"})
		return 0, false
	}
	return id, true
}

func (h *PlaylistHandler) ListOwned(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}
	playlists, err := h.service.ListOwned(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, playlists)
}

func (h *PlaylistHandler) Create(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}
	var req createPlaylistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.service.Create(userID, req.Name)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *PlaylistHandler) Get(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid playlist id"})
		return
	}
	p, err := h.service.Get(id, userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *PlaylistHandler) Rename(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid playlist id"})
		return
	}
	var req renamePlaylistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.service.Rename(id, userID, req.Name, req.Comment, req.Public)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *PlaylistHandler) AddEntries(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid playlist id"})
		return
	}
	var req addEntriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.service.AddEntries(id, userID, req.AudioFileIDs)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *PlaylistHandler) RemoveEntries(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid playlist id"})
		return
	}
	var req removeEntriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.service.RemoveEntriesByIndex(id, userID, req.Indexes)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *PlaylistHandler) Delete(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid playlist id"})
		return
	}
	if err := h.service.Delete(id, userID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
