package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classmark/attendance-api/internal/middleware"
	"github.com/classmark/attendance-api/internal/models"
	appErrors "github.com/classmark/attendance-api/pkg/errors"
)

type settingServiceMock struct {
	setting   *models.Setting
	getErr    error
	updateErr error
	lastKey   string
	lastValue string
}

func (m *settingServiceMock) Get(ctx context.Context, key string) (*models.Setting, error) {
	m.lastKey = key
	return m.setting, m.getErr
}

func (m *settingServiceMock) Update(ctx context.Context, claims *models.JWTClaims, key, value string) (*models.Setting, error) {
	m.lastKey = key
	m.lastValue = value
	return m.setting, m.updateErr
}

func TestSettingHandlerGet(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &settingServiceMock{setting: &models.Setting{Key: models.SettingKeyTagFieldID, Value: "f1"}}
	h := NewSettingHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/settings/"+models.SettingKeyTagFieldID, nil)
	c.Params = gin.Params{{Key: "key", Value: models.SettingKeyTagFieldID}}

	h.Get(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.SettingKeyTagFieldID, mockSvc.lastKey)
}

func TestSettingHandlerUpdate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &settingServiceMock{setting: &models.Setting{Key: models.SettingKeyTagFieldID, Value: "f2"}}
	h := NewSettingHandler(mockSvc)

	payload, _ := json.Marshal(map[string]string{"value": "f2"})
	c, w := newGinContext(http.MethodPut, "/settings/"+models.SettingKeyTagFieldID, payload)
	c.Params = gin.Params{{Key: "key", Value: models.SettingKeyTagFieldID}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})

	h.Update(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "f2", mockSvc.lastValue)
}

func TestSettingHandlerUpdateForbidden(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &settingServiceMock{updateErr: appErrors.Clone(appErrors.ErrForbidden, "only admins can change settings")}
	h := NewSettingHandler(mockSvc)

	payload, _ := json.Marshal(map[string]string{"value": "f2"})
	c, w := newGinContext(http.MethodPut, "/settings/"+models.SettingKeyTagFieldID, payload)
	c.Params = gin.Params{{Key: "key", Value: models.SettingKeyTagFieldID}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u1", Role: models.RoleTeacher})

	h.Update(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}
