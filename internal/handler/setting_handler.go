package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/classmark/attendance-api/internal/models"
	appErrors "github.com/classmark/attendance-api/pkg/errors"
	"github.com/classmark/attendance-api/pkg/response"
)

type settingService interface {
	Get(ctx context.Context, key string) (*models.Setting, error)
	Update(ctx context.Context, claims *models.JWTClaims, key, value string) (*models.Setting, error)
}

// SettingHandler wires HTTP endpoints to the setting service.
type SettingHandler struct {
	service settingService
}

// NewSettingHandler creates a new handler.
func NewSettingHandler(svc settingService) *SettingHandler {
	return &SettingHandler{service: svc}
}

// Get godoc
// @Summary Get a site setting
// @Description Returns the current value for a known setting key
// @Tags Settings
// @Produce json
// @Param key path string true "Setting key"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /settings/{key} [get]
func (h *SettingHandler) Get(c *gin.Context) {
	setting, err := h.service.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, setting, nil)
}

// Update godoc
// @Summary Update a site setting
// @Description Writes a known setting key. Admin only.
// @Tags Settings
// @Accept json
// @Produce json
// @Param key path string true "Setting key"
// @Param payload body object true "Setting value"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /settings/{key} [put]
func (h *SettingHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		Value string `json:"value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "setting value required"))
		return
	}

	setting, err := h.service.Update(c.Request.Context(), claims, c.Param("key"), payload.Value)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, setting, nil)
}
