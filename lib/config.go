package zclone

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
)

const (
	DefaultLogFilename   = "zclone.log"
	DefaultLogMaxSizeMB  = 5
	DefaultLogMaxBackups = 2
)

// Content of the configuration file
type Config struct {
	LogFile       string `toml:"log_file"`
	LogMaxSizeMB  int    `toml:"log_max_size_mb"`
	LogMaxBackups int    `toml:"log_max_backups"`

	// Default options, overridden by the command line ones
	Options map[string]string `toml:"options"`

	// Named option sets, pulled with Preset=<name>
	Presets map[string]map[string]string `toml:"presets"`
}

// Defaults for a run as root or as a normal user
func DefaultConfig(root bool, home string) *Config {
	logDir := "/var/log"
	if !root {
		logDir = home
	}

	return &Config{
		LogFile:       filepath.Join(logDir, DefaultLogFilename),
		LogMaxSizeMB:  DefaultLogMaxSizeMB,
		LogMaxBackups: DefaultLogMaxBackups,
	}
}

// Path of the configuration file for a run as root or as a normal user
func DefaultConfigPath(root bool, home string) string {
	if root {
		return filepath.Join("/etc", "zclone", "config.toml")
	}
	return filepath.Join(home, ".config", "zclone", "config.toml")
}

// Decode a configuration on top of defaults
func ReadConfig(r io.Reader, defaults *Config) (*Config, error) {
	cfg := *defaults
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Read the configuration file at path ; a missing file gives the defaults
func ReadConfigFile(path string, defaults *Config) (*Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return defaults, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	cfg, err := ReadConfig(f, defaults)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func sortedPairs(m map[string]string) []KeyValuePair {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	res := make([]KeyValuePair, 0, len(m))
	for _, k := range keys {
		if key := optionKey(k); key != "" {
			res = append(res, KeyValuePair{key, m[k]})
		}
	}
	return res
}

// Option pairs of the options table, in key order
func (c *Config) OptionPairs() []KeyValuePair {
	return sortedPairs(c.Options)
}

// Presets as option pairs, in key order
func (c *Config) PresetPairs() map[string][]KeyValuePair {
	res := make(map[string][]KeyValuePair, len(c.Presets))
	for name, preset := range c.Presets {
		res[name] = sortedPairs(preset)
	}
	return res
}
