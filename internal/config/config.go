package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Backend kinds accepted by Config.Backend.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendREST     = "rest"
)

// Config holds application configuration.
type Config struct {
	// AutoTagging enables the tag classifier on create. Nil means "not set" so
	// that a repo config can turn it off over a global true.
	AutoTagging *bool `json:"auto_tagging,omitempty"`

	// ExitDelayMs is how long a removed prompt stays in the list (flagged
	// pending-removal) before it leaves it.
	ExitDelayMs int `json:"exit_delay_ms,omitempty"`

	// UndoWindowMs is how long a removed prompt can be restored before the
	// backend delete is issued.
	UndoWindowMs int `json:"undo_window_ms,omitempty"`

	// NewFlagMs is how long the "new" presentation flag stays set.
	NewFlagMs int `json:"new_flag_ms,omitempty"`

	// PersistTimeoutMs bounds each background backend call.
	PersistTimeoutMs int `json:"persist_timeout_ms,omitempty"`

	// Backend selects the persistence collaborator: "sqlite" (default), "postgres" or "rest".
	Backend string `json:"backend,omitempty"`

	// DatabaseURL is the Postgres connection string when Backend is "postgres".
	DatabaseURL string `json:"database_url,omitempty"`

	// APIURL is the base URL of a Stream API server when Backend is "rest".
	APIURL string `json:"api_url,omitempty"`

	// APIBind and APIPort control where `stream serve` listens.
	APIBind string `json:"api_bind,omitempty"`
	APIPort int    `json:"api_port,omitempty"`

	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string `json:"cors_origins,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized (reduces "database is locked" errors).
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DryRunModel is the Gemini model used by the rack dry run.
	DryRunModel string `json:"dryrun_model,omitempty"`

	// LogMode is "dev" (console) or "prod" (JSON).
	LogMode string `json:"log_mode,omitempty"`

	// LogFile, when set, sends logs to a rotating file instead of stderr.
	LogFile string `json:"log_file,omitempty"`

	// IntakeDir is the drop folder watched by `stream watch`.
	IntakeDir string `json:"intake_dir,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes disables every MCP tool of a type ("prompt", "rack",
	// "stack", "color").
	DisabledTypes []string `json:"disabled_types,omitempty"`

	// APIKey is the dry-run key. Never read from file; see ApplyEnv.
	APIKey string `json:"-"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	autoTagging := false
	return &Config{
		AutoTagging:      &autoTagging,
		ExitDelayMs:      400,
		UndoWindowMs:     6000,
		NewFlagMs:        2000,
		PersistTimeoutMs: 30000,
		Backend:          BackendSQLite,
		APIURL:           "http://localhost:8000",
		APIBind:          "127.0.0.1",
		APIPort:          8000,
		CORSOrigins:      []string{"http://localhost:3000"},
		DryRunModel:      "gemini-2.5-flash",
		LogMode:          "dev",
	}
}

// AutoTaggingEnabled reports the effective auto-tagging setting.
func (c *Config) AutoTaggingEnabled() bool {
	return c.AutoTagging != nil && *c.AutoTagging
}

// ExitDelay returns ExitDelayMs as a duration.
func (c *Config) ExitDelay() time.Duration {
	return time.Duration(c.ExitDelayMs) * time.Millisecond
}

// UndoWindow returns UndoWindowMs as a duration.
func (c *Config) UndoWindow() time.Duration {
	return time.Duration(c.UndoWindowMs) * time.Millisecond
}

// NewFlagFor returns NewFlagMs as a duration.
func (c *Config) NewFlagFor() time.Duration {
	return time.Duration(c.NewFlagMs) * time.Millisecond
}

// PersistTimeout returns PersistTimeoutMs as a duration.
func (c *Config) PersistTimeout() time.Duration {
	return time.Duration(c.PersistTimeoutMs) * time.Millisecond
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.stream.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.stream) and repo (.stream) directories.
// Repo config is found by walking upward from startDir to find the nearest .stream/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .stream/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".stream", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// ApplyEnv overlays environment variables that must never live in a config file.
// STREAM_API_KEY wins over GEMINI_API_KEY; STREAM_DATABASE_URL overrides database_url.
func (c *Config) ApplyEnv() {
	if key := strings.TrimSpace(os.Getenv("STREAM_API_KEY")); key != "" {
		c.APIKey = key
	} else if key := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); key != "" {
		c.APIKey = key
	}
	if url := strings.TrimSpace(os.Getenv("STREAM_DATABASE_URL")); url != "" {
		c.DatabaseURL = url
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Pointers: overlay wins if set
	result.AutoTagging = base.AutoTagging
	if overlay.AutoTagging != nil {
		v := *overlay.AutoTagging
		result.AutoTagging = &v
	}

	// Scalars: overlay wins if non-zero, else base
	result.ExitDelayMs = pickInt(overlay.ExitDelayMs, base.ExitDelayMs)
	result.UndoWindowMs = pickInt(overlay.UndoWindowMs, base.UndoWindowMs)
	result.NewFlagMs = pickInt(overlay.NewFlagMs, base.NewFlagMs)
	result.PersistTimeoutMs = pickInt(overlay.PersistTimeoutMs, base.PersistTimeoutMs)
	result.APIPort = pickInt(overlay.APIPort, base.APIPort)
	result.DBMaxOpenConns = pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = pickInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	result.Backend = pickString(overlay.Backend, base.Backend)
	result.DatabaseURL = pickString(overlay.DatabaseURL, base.DatabaseURL)
	result.APIURL = pickString(overlay.APIURL, base.APIURL)
	result.APIBind = pickString(overlay.APIBind, base.APIBind)
	result.DryRunModel = pickString(overlay.DryRunModel, base.DryRunModel)
	result.LogMode = pickString(overlay.LogMode, base.LogMode)
	result.LogFile = pickString(overlay.LogFile, base.LogFile)
	result.IntakeDir = pickString(overlay.IntakeDir, base.IntakeDir)
	result.APIKey = pickString(overlay.APIKey, base.APIKey)

	// Arrays: merge and deduplicate
	result.CORSOrigins = mergeStringSlice(base.CORSOrigins, overlay.CORSOrigins)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

func pickString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
