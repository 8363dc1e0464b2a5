package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/classmark/attendance-api/internal/models"
	appErrors "github.com/classmark/attendance-api/pkg/errors"
)

type mockSettingRepo struct {
	settings map[string]*models.Setting
	upserts  []*models.Setting
}

func (m *mockSettingRepo) Get(ctx context.Context, key string) (*models.Setting, error) {
	setting, ok := m.settings[key]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return setting, nil
}

func (m *mockSettingRepo) Upsert(ctx context.Context, setting *models.Setting) error {
	if m.settings == nil {
		m.settings = map[string]*models.Setting{}
	}
	m.settings[setting.Key] = setting
	m.upserts = append(m.upserts, setting)
	return nil
}

func newSettingServiceForTest(repo *mockSettingRepo, audit *mockAudit, defaults map[string]string) *SettingService {
	return NewSettingService(repo, audit, nil, time.Minute, defaults, zap.NewNop())
}

func TestSettingServiceGetFallsBackToDefault(t *testing.T) {
	svc := newSettingServiceForTest(&mockSettingRepo{}, &mockAudit{}, map[string]string{
		models.SettingKeyTagFieldID: "f-default",
	})

	setting, err := svc.Get(context.Background(), models.SettingKeyTagFieldID)
	require.NoError(t, err)
	assert.Equal(t, "f-default", setting.Value)
}

func TestSettingServiceGetUnknownKey(t *testing.T) {
	svc := newSettingServiceForTest(&mockSettingRepo{}, &mockAudit{}, nil)

	_, err := svc.Get(context.Background(), "no_such_key")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSettingServiceUpdateRequiresAdmin(t *testing.T) {
	svc := newSettingServiceForTest(&mockSettingRepo{}, &mockAudit{}, nil)

	_, err := svc.Update(context.Background(), &models.JWTClaims{UserID: "u1", Role: models.RoleTeacher},
		models.SettingKeyTagFieldID, "f1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestSettingServiceUpdateWritesAndAudits(t *testing.T) {
	repo := &mockSettingRepo{}
	audit := &mockAudit{}
	svc := newSettingServiceForTest(repo, audit, nil)

	setting, err := svc.Update(context.Background(), &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin},
		models.SettingKeyTagFieldID, "f1")
	require.NoError(t, err)
	assert.Equal(t, "f1", setting.Value)
	assert.Len(t, repo.upserts, 1)
	assert.Len(t, audit.logs, 1)
}

func TestSettingServiceTagFieldID(t *testing.T) {
	repo := &mockSettingRepo{settings: map[string]*models.Setting{
		models.SettingKeyTagFieldID: {Key: models.SettingKeyTagFieldID, Value: "f1", Type: models.SettingTypeString},
	}}
	svc := newSettingServiceForTest(repo, &mockAudit{}, nil)

	value, err := svc.TagFieldID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "f1", value)
}

func TestSettingServiceTagFieldIDDefault(t *testing.T) {
	svc := newSettingServiceForTest(&mockSettingRepo{}, &mockAudit{}, map[string]string{
		models.SettingKeyTagFieldID: "f-default",
	})

	value, err := svc.TagFieldID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "f-default", value)
}
