package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hakwonhub/hakwon-api/internal/service"
	appErrors "github.com/hakwonhub/hakwon-api/pkg/errors"
	"github.com/hakwonhub/hakwon-api/pkg/response"
)

// SeasonHandler exposes season management endpoints.
type SeasonHandler struct {
	seasons *service.SeasonService
}

// NewSeasonHandler constructs SeasonHandler.
func NewSeasonHandler(seasons *service.SeasonService) *SeasonHandler {
	return &SeasonHandler{seasons: seasons}
}

// List godoc
// @Summary List seasons
// @Tags Seasons
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /seasons [get]
func (h *SeasonHandler) List(c *gin.Context) {
	seasons, err := h.seasons.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, seasons, nil)
}

// GetActive godoc
// @Summary Get the active season
// @Tags Seasons
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /seasons/active [get]
func (h *SeasonHandler) GetActive(c *gin.Context) {
	season, err := h.seasons.GetActive(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, season, nil)
}

// Get godoc
// @Summary Get one season
// @Tags Seasons
// @Produce json
// @Param id path string true "Season ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /seasons/{id} [get]
func (h *SeasonHandler) Get(c *gin.Context) {
	season, err := h.seasons.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, season, nil)
}

// Create godoc
// @Summary Create a season
// @Tags Seasons
// @Accept json
// @Produce json
// @Param payload body service.SeasonRequest true "Season payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /seasons [post]
func (h *SeasonHandler) Create(c *gin.Context) {
	var req service.SeasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	season, err := h.seasons.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, season)
}

// Update godoc
// @Summary Rename a season
// @Tags Seasons
// @Accept json
// @Produce json
// @Param id path string true "Season ID"
// @Param payload body service.SeasonRequest true "Season payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /seasons/{id} [put]
func (h *SeasonHandler) Update(c *gin.Context) {
	var req service.SeasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	season, err := h.seasons.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, season, nil)
}

// Activate godoc
// @Summary Make a season the single active term
// @Tags Seasons
// @Produce json
// @Param id path string true "Season ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /seasons/{id}/activate [put]
func (h *SeasonHandler) Activate(c *gin.Context) {
	season, err := h.seasons.Activate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, season, nil)
}

// Delete godoc
// @Summary Delete an inactive season
// @Tags Seasons
// @Produce json
// @Param id path string true "Season ID"
// @Success 204
// @Security BearerAuth
// @Router /seasons/{id} [delete]
func (h *SeasonHandler) Delete(c *gin.Context) {
	if err := h.seasons.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
