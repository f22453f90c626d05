// Package config provides configuration loading, validation, and management
// for mattergrate. It handles reading from YAML files, environment variables,
// setting default values, and validating configuration parameters.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// AuthMode selects how the source system is authenticated. It is decided once
// at startup; the rest of the run never re-examines the mode.
type AuthMode string

const (
	// AuthModeAdminToken uses a pre-shared personal access token and skips the login call.
	AuthModeAdminToken AuthMode = "admin_token"
	// AuthModeCredentials performs an interactive login with username and password.
	AuthModeCredentials AuthMode = "credentials"
)

// MatchMode selects which source field is used for identity resolution.
type MatchMode string

const (
	MatchByUsername MatchMode = "username"
	MatchByEmail    MatchMode = "email"
)

// Config defines the application configuration parameters for all components
// of mattergrate: logging, source and target connections, importer behavior,
// and checkpoint storage.
type Config struct {
	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogJSON  bool   `mapstructure:"log_json"`

	// Source (Mattermost) settings. The base URL normally comes from the
	// channel URL given on the command line; a configured value overrides it.
	SourceBaseURL    string        `mapstructure:"source_base_url"  validate:"omitempty,url"`
	SourceAuthMode   AuthMode      `mapstructure:"source_auth_mode" validate:"oneof=admin_token credentials"`
	SourceAdminToken string        `mapstructure:"source_admin_token"`
	SourceTimeout    time.Duration `mapstructure:"source_timeout"   validate:"min=1s,max=10m"`
	SourcePageSize   int           `mapstructure:"source_page_size" validate:"min=1,max=1000"`

	// Target (Rocket.Chat) settings.
	TargetBaseURL   string        `mapstructure:"target_base_url"   validate:"required,url"`
	TargetUserID    string        `mapstructure:"target_user_id"    validate:"required"`
	TargetAuthToken string        `mapstructure:"target_auth_token" validate:"required"`
	TargetUsername  string        `mapstructure:"target_username"   validate:"required"`
	TargetTimeout   time.Duration `mapstructure:"target_timeout"    validate:"min=1s,max=10m"`

	// Importer settings.
	ImportMessageDelay  time.Duration     `mapstructure:"import_message_delay"  validate:"min=0,max=10s"`
	ImportProgressEvery int               `mapstructure:"import_progress_every" validate:"min=1"`
	ImportMatchBy       MatchMode         `mapstructure:"import_match_by"       validate:"oneof=username email"`
	ImportUserMapping   map[string]string `mapstructure:"import_user_mapping"`

	// Watch mode: re-run the incremental import on a cron schedule.
	WatchSchedule string `mapstructure:"watch_schedule"`

	DBPath string `mapstructure:"db_path"`
}

// Load reads configuration from config.yaml and MATTERGRATE_* environment
// variables, sets default values for optional fields, and validates the
// result. If the config file doesn't exist, defaults and environment
// variables are used alone.
func Load(path string) (*Config, error) {
	slog.Debug("loading configuration", "path", path)

	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("MATTERGRATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about. The
	// credential keys have no defaults, so bind them explicitly or
	// env-only values never reach Unmarshal.
	for _, key := range []string{
		"source_base_url",
		"source_admin_token",
		"target_base_url",
		"target_user_id",
		"target_auth_token",
		"target_username",
		"watch_schedule",
	} {
		v.BindEnv(key) //nolint:errcheck
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		slog.Info("configuration file not found, using defaults", "path", path)
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	if config.SourceAuthMode == AuthModeAdminToken && config.SourceAdminToken == "" {
		return nil, fmt.Errorf("source_auth_mode is %q but source_admin_token is not set", AuthModeAdminToken)
	}

	slog.Info("configuration loaded",
		"log_level", config.LogLevel,
		"source_auth_mode", config.SourceAuthMode,
		"target_base_url", config.TargetBaseURL,
		"db_path", config.DBPath)

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)

	v.SetDefault("source_auth_mode", string(AuthModeCredentials))
	v.SetDefault("source_timeout", 30*time.Second)
	v.SetDefault("source_page_size", 200)

	v.SetDefault("target_timeout", 30*time.Second)

	v.SetDefault("import_message_delay", 100*time.Millisecond)
	v.SetDefault("import_progress_every", 50)
	v.SetDefault("import_match_by", string(MatchByUsername))

	v.SetDefault("db_path", "mattergrate.db")
}
