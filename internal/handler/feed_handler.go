package handler

import (
	"encoding/json"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/hakwonhub/hakwon-api/internal/models"
	"github.com/hakwonhub/hakwon-api/internal/service"
	appErrors "github.com/hakwonhub/hakwon-api/pkg/errors"
	"github.com/hakwonhub/hakwon-api/pkg/response"
)

// FeedHandler streams enrollment lifecycle events over server-sent events.
type FeedHandler struct {
	feed *service.FeedService
}

// NewFeedHandler constructs FeedHandler.
func NewFeedHandler(feed *service.FeedService) *FeedHandler {
	return &FeedHandler{feed: feed}
}

// Stream godoc
// @Summary Stream enrollment events (SSE)
// @Description Admins receive every event; students receive only their own.
// @Tags Feed
// @Produce text/event-stream
// @Success 200
// @Security BearerAuth
// @Router /feed [get]
func (h *FeedHandler) Stream(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	studentID := ""
	if claims.Role == models.RoleStudent {
		studentID = claims.SubjectID
	}

	events, cancel, err := h.feed.Subscribe(c.Request.Context(), studentID)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open feed"))
		return
	}
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case event, ok := <-events:
			if !ok {
				return false
			}
			payload, err := json.Marshal(event)
			if err != nil {
				return true
			}
			c.SSEvent(event.Type, string(payload))
			return true
		}
	})
}
