package config

import (
	"fmt"
	"time"

	"skillup/adapters/sqlx"
)

// Profiles lists the built-in profile names.
var Profiles = []string{"development", "testing", "staging", "production"}

// profileConfig returns the defaults of a named profile.
func profileConfig(name string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.Profile = name
	switch name {
	case "development":
		cfg.Environment = EnvDevelopment
		cfg.Logging.Level = "debug"
		cfg.Logging.Format = "text"
	case "testing":
		cfg.Environment = EnvTesting
		cfg.Storage.Adapter = "memory"
		cfg.Courses.DSN = ":memory:"
		cfg.Badges.CatalogPath = ""
		cfg.Badges.Watch = false
		cfg.Engine.DispatchMode = "sync"
		cfg.Engine.ReconcileEnabled = false
		cfg.Logging.Level = "warn"
	case "staging":
		cfg.Environment = EnvStaging
		cfg.Storage.Adapter = "redis"
		cfg.Server.CORSOrigin = ""
		cfg.Engine.ReconcileInterval = time.Minute
		cfg.Security.EnableRateLimit = true
	case "production":
		cfg.Environment = EnvProduction
		cfg.Storage.Adapter = "sql"
		cfg.Storage.SQL = sqlx.DefaultConfig(sqlx.DriverPgx)
		cfg.Courses.Driver = "postgres"
		cfg.Server.CORSOrigin = ""
		cfg.Badges.Watch = false
		cfg.Logging.Level = "info"
		cfg.Security.EnableRateLimit = true
		cfg.Security.RateLimit.RequestsPerMinute = 120
		cfg.Security.RateLimit.BurstSize = 20
	default:
		return nil, fmt.Errorf("unknown profile %q (known: %v)", name, Profiles)
	}
	return cfg, nil
}

// LoadProfile loads a built-in profile; environment variables still override it.
func LoadProfile(name string) (*Config, error) {
	base, err := profileConfig(name)
	if err != nil {
		return nil, err
	}
	return load(base, "")
}
