package sqlpatch

import (
	"fmt"
	"os"
	"regexp"
	"sync"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// Process-wide settings. Both are overridable per call through Options and
// scoped-overridable through the restore function the setters return.
// Concurrent scoped overrides from independent goroutines must be serialized
// by the caller; the engine itself runs each call against a snapshot.
var settings = struct {
	mu                     sync.Mutex
	safeMode               bool
	replaceNewPatchAliases bool
}{
	replaceNewPatchAliases: true,
}

// SafeMode reports whether selectors search the sanitized view of the SQL
// instead of the raw text. Off by default.
func SafeMode() bool {
	settings.mu.Lock()
	defer settings.mu.Unlock()
	return settings.safeMode
}

// SetSafeMode sets safe mode globally and returns a restore function for
// scoped use:
//
//	defer sqlpatch.SetSafeMode(true)()
//
// The restore function reinstates the previous value on every exit path,
// including panics, when deferred.
func SetSafeMode(on bool) (restore func()) {
	settings.mu.Lock()
	defer settings.mu.Unlock()
	prev := settings.safeMode
	settings.safeMode = on
	return func() {
		settings.mu.Lock()
		defer settings.mu.Unlock()
		settings.safeMode = prev
	}
}

// ReplaceNewPatchAliases reports whether qualified column references are
// rewritten when a patched expression's name cannot serve as a VALUES alias.
// On by default.
func ReplaceNewPatchAliases() bool {
	settings.mu.Lock()
	defer settings.mu.Unlock()
	return settings.replaceNewPatchAliases
}

// SetReplaceNewPatchAliases sets the alias rewriting behavior globally and
// returns a restore function for scoped use, like SetSafeMode.
func SetReplaceNewPatchAliases(on bool) (restore func()) {
	settings.mu.Lock()
	defer settings.mu.Unlock()
	prev := settings.replaceNewPatchAliases
	settings.replaceNewPatchAliases = on
	return func() {
		settings.mu.Lock()
		defer settings.mu.Unlock()
		settings.replaceNewPatchAliases = prev
	}
}

// Config represents the sqlpatch configuration file.
type Config struct {
	SafeMode               bool                `yaml:"safe_mode"`
	ReplaceNewPatchAliases *bool               `yaml:"replace_new_patch_aliases"` // nil means default (on)
	Databases              map[string]Database `yaml:"databases"`
}

// Database represents a database connection entry for the exec command.
type Database struct {
	Driver     string `yaml:"driver"`
	Connection string `yaml:"connection"`
}

// DefaultConfigPath is the config file looked up when none is specified.
const DefaultConfigPath = "sqlpatch.yaml"

// LoadConfig reads a configuration file, layering .env files first and
// expanding ${VAR} references in connection strings. A missing file yields
// the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	if fileExists(".env") {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	if configPath == "" {
		configPath = DefaultConfigPath
	}

	if !fileExists(configPath) {
		return defaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.UnmarshalWithOptions(data, &config, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	for name, db := range config.Databases {
		db.Connection = expandEnvVars(db.Connection)
		config.Databases[name] = db
	}
	return &config, nil
}

func defaultConfig() *Config {
	return &Config{}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Apply installs the file configuration as the process-wide settings,
// returning a restore function that reinstates the previous values.
func (c *Config) Apply() (restore func()) {
	restoreSafe := SetSafeMode(c.SafeMode)
	replace := true
	if c.ReplaceNewPatchAliases != nil {
		replace = *c.ReplaceNewPatchAliases
	}
	restoreReplace := SetReplaceNewPatchAliases(replace)
	return func() {
		restoreReplace()
		restoreSafe()
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars expands environment variables in the format ${VAR} or $VAR.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)
		if name[1] != "" {
			return os.Getenv(name[1])
		}
		return os.Getenv(name[2])
	})
}
