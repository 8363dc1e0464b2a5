package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/classmark/attendance-api/internal/models"
	appErrors "github.com/classmark/attendance-api/pkg/errors"
)

type settingRepository interface {
	Get(ctx context.Context, key string) (*models.Setting, error)
	Upsert(ctx context.Context, setting *models.Setting) error
}

// allowedSettingKeys lists the keys the settings API exposes.
var allowedSettingKeys = map[string]models.SettingType{
	models.SettingKeyTagFieldID: models.SettingTypeString,
}

// SettingService resolves and updates site-wide attendance settings.
type SettingService struct {
	repo     settingRepository
	audit    auditLogger
	cache    *CacheService
	cacheTTL time.Duration
	defaults map[string]string
	logger   *zap.Logger
}

// NewSettingService constructs the setting service. Defaults are applied when
// the settings table has no row for a key.
func NewSettingService(repo settingRepository, audit auditLogger, cache *CacheService, cacheTTL time.Duration, defaults map[string]string, logger *zap.Logger) *SettingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaults == nil {
		defaults = map[string]string{}
	}
	return &SettingService{repo: repo, audit: audit, cache: cache, cacheTTL: cacheTTL, defaults: defaults, logger: logger}
}

// Get returns a setting, falling back to configured defaults.
func (s *SettingService) Get(ctx context.Context, key string) (*models.Setting, error) {
	settingType, ok := allowedSettingKeys[key]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown setting key %q", key))
	}
	setting, err := s.repo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if value, ok := s.defaults[key]; ok {
				return &models.Setting{Key: key, Value: value, Type: settingType}, nil
			}
			return nil, appErrors.Clone(appErrors.ErrNotFound, "setting not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load setting")
	}
	return setting, nil
}

// Update writes a setting. Only admins may change site-wide settings.
func (s *SettingService) Update(ctx context.Context, claims *models.JWTClaims, key, value string) (*models.Setting, error) {
	if claims == nil || claims.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can change settings")
	}
	settingType, ok := allowedSettingKeys[key]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown setting key %q", key))
	}

	setting := &models.Setting{Key: key, Value: value, Type: settingType, UpdatedBy: &claims.UserID}
	if err := s.repo.Upsert(ctx, setting); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update setting")
	}

	if err := s.cache.Invalidate(ctx, "attendance:setting:*"); err != nil {
		s.logger.Warn("failed to invalidate setting cache", zap.String("key", key), zap.Error(err))
	}

	if s.audit != nil {
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &claims.UserID,
			Action:     models.AuditActionSettingWrite,
			Resource:   "settings",
			ResourceID: &setting.Key,
			NewValues:  []byte(fmt.Sprintf("{%q:%q}", key, value)),
		}); err != nil {
			s.logger.Warn("failed to record setting audit log", zap.Error(err))
		}
	}
	return setting, nil
}

// TagFieldID resolves the profile field id configured for tag lookups. An
// empty value means no field has been configured.
func (s *SettingService) TagFieldID(ctx context.Context) (string, error) {
	const cacheKey = "attendance:setting:tag_field_id"
	var cached string
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		return cached, nil
	}

	setting, err := s.repo.Get(ctx, models.SettingKeyTagFieldID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.defaults[models.SettingKeyTagFieldID], nil
		}
		return "", fmt.Errorf("resolve tag field id: %w", err)
	}

	if err := s.cache.Set(ctx, cacheKey, setting.Value, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache tag field id", zap.Error(err))
	}
	return setting.Value, nil
}
