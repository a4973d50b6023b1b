package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hakwonhub/hakwon-api/internal/service"
	appErrors "github.com/hakwonhub/hakwon-api/pkg/errors"
	"github.com/hakwonhub/hakwon-api/pkg/response"
)

// AttendanceHandler exposes attendance endpoints.
type AttendanceHandler struct {
	attendance *service.AttendanceService
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance *service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

// Mark godoc
// @Summary Record attendance for a course and date
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body service.MarkAttendanceRequest true "Date and marks"
// @Success 204
// @Security BearerAuth
// @Router /courses/{id}/attendance [post]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	var req service.MarkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.attendance.Mark(c.Request.Context(), c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Roster godoc
// @Summary List attendance for a course on a date
// @Tags Attendance
// @Produce json
// @Param id path string true "Course ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id}/attendance [get]
func (h *AttendanceHandler) Roster(c *gin.Context) {
	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be formatted YYYY-MM-DD"))
		return
	}
	records, err := h.attendance.Roster(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Summary godoc
// @Summary Summarize one student's attendance within a course
// @Tags Attendance
// @Produce json
// @Param id path string true "Course ID"
// @Param studentId path string true "Student key"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id}/attendance/{studentId} [get]
func (h *AttendanceHandler) Summary(c *gin.Context) {
	summary, err := h.attendance.Summary(c.Request.Context(), c.Param("id"), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
