package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hakwonhub/hakwon-api/internal/models"
	"github.com/hakwonhub/hakwon-api/internal/service"
	appErrors "github.com/hakwonhub/hakwon-api/pkg/errors"
	"github.com/hakwonhub/hakwon-api/pkg/response"
)

// NotificationHandler exposes per-student notification endpoints.
type NotificationHandler struct {
	notifications *service.NotificationService
}

// NewNotificationHandler constructs NotificationHandler.
func NewNotificationHandler(notifications *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// studentScope resolves which student's notifications are in play: students
// always get their own, admins pass ?studentId.
func (h *NotificationHandler) studentScope(c *gin.Context) (string, error) {
	claims := claimsFromContext(c)
	if claims == nil {
		return "", appErrors.ErrUnauthorized
	}
	if claims.Role == models.RoleStudent {
		return claims.SubjectID, nil
	}
	studentID := c.Query("studentId")
	if studentID == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "studentId query parameter is required")
	}
	return studentID, nil
}

// List godoc
// @Summary List the student's notifications
// @Tags Notifications
// @Produce json
// @Param studentId query string false "Student key (admins only)"
// @Param unread query bool false "Only unread"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	studentID, err := h.studentScope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	unreadOnly := false
	if unread := c.Query("unread"); unread != "" {
		if value, parseErr := strconv.ParseBool(unread); parseErr == nil {
			unreadOnly = value
		}
	}

	notifications, err := h.notifications.ListForStudent(c.Request.Context(), studentID, unreadOnly)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, notifications, nil)
}

// MarkRead godoc
// @Summary Mark one notification read
// @Tags Notifications
// @Produce json
// @Param id path string true "Notification ID"
// @Success 204
// @Security BearerAuth
// @Router /notifications/{id}/read [put]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	studentID, err := h.studentScope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.notifications.MarkRead(c.Request.Context(), c.Param("id"), studentID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// MarkAllRead godoc
// @Summary Mark every unread notification read
// @Tags Notifications
// @Produce json
// @Success 204
// @Security BearerAuth
// @Router /notifications/read-all [put]
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	studentID, err := h.studentScope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.notifications.MarkAllRead(c.Request.Context(), studentID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
