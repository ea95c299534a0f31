package am

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/teranos/pwcmeta/errors"
)

// ProjectConfigName is the file searched for from the working directory upward.
const ProjectConfigName = "am.toml"

var globalConfig *Config
var viperInstance *viper.Viper

// explicitConfig, when set, replaces the system/user/project search.
var explicitConfig string

// Load reads the pwcmeta configuration using Viper
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v, err := initViper()
	if err != nil {
		return nil, err
	}

	config, err := LoadWithViper(v)
	if err != nil {
		return nil, err
	}

	globalConfig = config
	return globalConfig, nil
}

// GetViper returns the Viper instance for advanced configuration access
func GetViper() (*viper.Viper, error) {
	return initViper()
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path, with defaults
// underneath and environment variables on top.
func LoadFromFile(configPath string) (*Config, error) {
	v := newViper()
	if err := mergeFile(v, configPath); err != nil {
		return nil, err
	}
	return LoadWithViper(v)
}

// UseConfigFile makes subsequent Load calls read only the given file.
// An empty path restores the default search.
func UseConfigFile(path string) {
	explicitConfig = path
	Reset()
}

// Reset clears the cached configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viperInstance = nil
}

// initViper initializes Viper with configuration sources and defaults
func initViper() (*viper.Viper, error) {
	if viperInstance != nil {
		return viperInstance, nil
	}

	// .env is optional; values already in the environment win
	_ = godotenv.Load()

	v := newViper()

	if explicitConfig != "" {
		if err := mergeFile(v, explicitConfig); err != nil {
			return nil, err
		}
	} else {
		// Precedence (lowest to highest): system < user < project < env vars
		for _, path := range ConfigPaths() {
			if _, err := os.Stat(path); err != nil {
				continue
			}
			if err := mergeFile(v, path); err != nil {
				return nil, err
			}
		}
	}

	viperInstance = v
	return v, nil
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix("PWCMETA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	BindSensitiveEnvVars(v)
	SetDefaults(v)
	return v
}

// mergeFile merges a TOML file beneath environment overrides.
func mergeFile(v *viper.Viper, path string) error {
	fileViper := viper.New()
	fileViper.SetConfigFile(path)
	fileViper.SetConfigType("toml")
	if err := fileViper.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "failed to read config file %s", path)
	}
	if err := v.MergeConfigMap(fileViper.AllSettings()); err != nil {
		return errors.Wrapf(err, "failed to merge config file %s", path)
	}
	return nil
}

// ConfigPaths returns candidate configuration files in precedence order
// (lowest first). Files that do not exist are skipped by Load.
func ConfigPaths() []string {
	if explicitConfig != "" {
		return []string{explicitConfig}
	}

	paths := []string{"/etc/pwcmeta/config.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".pwcmeta", ProjectConfigName))
	}
	if project := findProjectConfig(); project != "" {
		paths = append(paths, project)
	}
	return paths
}

// findProjectConfig walks up from the working directory looking for am.toml
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		candidate := filepath.Join(dir, ProjectConfigName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// Get returns a configuration value using dot notation
func Get(key string) (interface{}, error) {
	v, err := initViper()
	if err != nil {
		return nil, err
	}
	if !v.IsSet(key) {
		return nil, errors.Mark(errors.Newf("unknown configuration key %q", key), errors.ErrNotFound)
	}
	return v.Get(key), nil
}
