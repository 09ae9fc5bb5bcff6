package config

import (
	"context"
	"fmt"
	"os"
)

// SecretStore resolves secrets by key.
type SecretStore interface {
	Get(ctx context.Context, key string) (string, error)
	GetWithDefault(ctx context.Context, key, def string) string
}

// EnvironmentSecretStore reads secrets from environment variables.
type EnvironmentSecretStore struct{}

func NewEnvironmentSecretStore() *EnvironmentSecretStore { return &EnvironmentSecretStore{} }

func (EnvironmentSecretStore) Get(_ context.Context, key string) (string, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", fmt.Errorf("secret %s not set", key)
	}
	return v, nil
}

func (s EnvironmentSecretStore) GetWithDefault(ctx context.Context, key, def string) string {
	if v, err := s.Get(ctx, key); err == nil {
		return v
	}
	return def
}

// Secret keys read by LoadSecrets.
const (
	SecretDatabaseURL        = "SKILLUP_SECRET_DATABASE_URL"
	SecretCoursesDatabaseURL = "SKILLUP_SECRET_COURSES_DATABASE_URL"
	SecretRedisPassword      = "SKILLUP_SECRET_REDIS_PASSWORD"
	SecretAPIKeys            = "SKILLUP_SECRET_API_KEYS"
)

// LoadSecrets overlays credentials from store onto the configuration. Missing
// secrets leave the current values untouched.
func (c *Config) LoadSecrets(ctx context.Context, store SecretStore) {
	c.Storage.SQL.DSN = store.GetWithDefault(ctx, SecretDatabaseURL, c.Storage.SQL.DSN)
	c.Courses.DSN = store.GetWithDefault(ctx, SecretCoursesDatabaseURL, c.Courses.DSN)
	c.Storage.Redis.Password = store.GetWithDefault(ctx, SecretRedisPassword, c.Storage.Redis.Password)
	if keys := store.GetWithDefault(ctx, SecretAPIKeys, ""); keys != "" {
		c.Security.APIKeys = splitList([]string{keys})
	}
}
