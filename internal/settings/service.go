// Package settings resolves tenant-scoped key/value flags that gate the
// routing engine's automated behavior.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrNotFound indicates no stored value exists for a tenant/key pair.
var ErrNotFound = errors.New("setting not found")

// Store persists tenant settings.
type Store interface {
	Get(ctx context.Context, tenantID, key string) (string, error)
	Upsert(ctx context.Context, tenantID, key, value string) error
}

// Service reads flags with defaults applied.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a settings service.
func NewService(log *slog.Logger, store Store) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:  store,
		logger: log.With(slog.String("service", "settings")),
	}
}

// Value returns the stored value for a flag, falling back to the key's
// default when unset. Store failures other than not-found are surfaced.
func (s *Service) Value(ctx context.Context, tenantID, key string) (string, error) {
	value, err := s.store.Get(ctx, tenantID, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Default(key), nil
		}
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return Default(key), nil
	}
	return value, nil
}

// Enabled reports whether a boolean flag resolves to "enabled".
func (s *Service) Enabled(ctx context.Context, tenantID, key string) (bool, error) {
	value, err := s.Value(ctx, tenantID, key)
	if err != nil {
		return false, err
	}
	return value == ValueEnabled, nil
}

// Set stores a flag value.
func (s *Service) Set(ctx context.Context, tenantID, key, value string) error {
	if err := s.store.Upsert(ctx, tenantID, key, strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("upsert setting %s: %w", key, err)
	}
	s.logger.Info("setting updated", slog.String("tenant_id", tenantID), slog.String("key", key))
	return nil
}
