package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SKILLUP_STORAGE_ADAPTER.
const EnvPrefix = "SKILLUP"

// envAliases are short variable names kept alongside the derived ones.
var envAliases = map[string]string{
	"environment":         "SKILLUP_ENV",
	"profile":             "SKILLUP_PROFILE",
	"server.address":      "SKILLUP_SERVER_ADDR",
	"logging.level":       "SKILLUP_LOG_LEVEL",
	"logging.format":      "SKILLUP_LOG_FORMAT",
	"security.api_keys":   "SKILLUP_API_KEYS",
	"storage.sql.dsn":     "SKILLUP_DATABASE_URL",
	"storage.redis.addr":  "SKILLUP_REDIS_ADDR",
	"badges.catalog_path": "SKILLUP_BADGE_CATALOG",
}

// newViper returns a viper instance whose defaults mirror base, so that every
// key can be overridden from the environment.
func newViper(base *Config) (*viper.Viper, error) {
	v := viper.New()
	if err := setDefaults(v, "", reflect.ValueOf(base).Elem()); err != nil {
		return nil, err
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envAliases {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// setDefaults walks a struct and registers each leaf under its mapstructure key.
func setDefaults(v *viper.Viper, prefix string, val reflect.Value) error {
	if val.Kind() != reflect.Struct {
		return fmt.Errorf("expected struct, got %s", val.Kind())
	}
	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		name := strings.Split(fieldType.Tag.Get("mapstructure"), ",")[0]
		if name == "" || name == "-" {
			continue
		}
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}

		if field.Kind() == reflect.Struct && fieldType.Type != reflect.TypeOf(time.Time{}) {
			if err := setDefaults(v, key, field); err != nil {
				return err
			}
			continue
		}
		v.SetDefault(key, field.Interface())
	}
	return nil
}

// load resolves base defaults, an optional config file and the environment.
func load(base *Config, path string) (*Config, error) {
	v, err := newViper(base)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare config: %w", err)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	// a comma-separated env value arrives as one element
	cfg.Security.APIKeys = splitList(cfg.Security.APIKeys)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
