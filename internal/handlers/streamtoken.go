package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"melodia/internal/streamtoken"
)

// StreamTokenHandler issues short-lived signed tokens scoping a caller to
// one audio file's stream or cover-art bytes.
type StreamTokenHandler struct {
	signer *streamtoken.Signer
}

func NewStreamTokenHandler(signer *streamtoken.Signer) *StreamTokenHandler {
	return &StreamTokenHandler{signer: signer}
}

func (h *StreamTokenHandler) Issue(c *gin.Context) {
	if _, ok := requesterID(c); !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid audio file id"})
		return
	}
	purpose := c.Query("purpose")
	if purpose != streamtoken.PurposeStream && purpose != streamtoken.PurposeCoverArt {
		c.JSON(http.StatusBadRequest, gin.H{"error": "purpose must be stream or cover-art"})
		return
	}
	token, expiresAt, err := h.signer.Issue(id, purpose)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "expiresAt": expiresAt})
}

// RequireToken returns middleware gating a /audio-files/:id/... route on a
// ?token= query param scoped to purpose and the route's :id.
func RequireToken(signer *streamtoken.Signer, purpose string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid audio file id"})
			return
		}
		token := c.Query("token")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		if err := signer.Verify(token, purpose, id); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}
