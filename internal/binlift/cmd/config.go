package cmd

import (
	"fmt"
	"os"
	pathpkg "path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Config carries the tool's file-level settings. Flags override whatever
// the file provides; the analyzer itself only ever sees the merged
// result, never the file.
type Config struct {
	Debug            bool    `toml:"debug" json:"debug" jsonschema:"title=Debug,description=Enable debug logging"`
	LogFile          string  `toml:"log_file" json:"logFile" jsonschema:"title=Log File,description=Write logs to this file instead of stderr"`
	Target           string  `toml:"target" json:"target" jsonschema:"title=Target,description=Skeleton language: go, python or c"`
	Arch             string  `toml:"arch" json:"arch" jsonschema:"title=Architecture,description=Architecture hint for raw inputs: x86 or x86_64"`
	MinStringLength  int     `toml:"min_string_length" json:"minStringLength" jsonschema:"title=Minimum String Length,description=Shortest printable run reported by string extraction"`
	EntropyThreshold float64 `toml:"entropy_threshold" json:"entropyThreshold" jsonschema:"title=Entropy Threshold,description=Window entropy in bits per byte above which data is flagged"`
	MaxScanBytes     int64   `toml:"max_scan_bytes" json:"maxScanBytes" jsonschema:"title=Max Scan Bytes,description=Input truncation limit in bytes"`
}

// configName is looked up in the working directory and under the user
// config dir when no --config flag is given.
const configName = "binlift.toml"

// LoadConfig reads a TOML config. An explicit path must exist; the
// default lookup treats a missing file as an empty config.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	explicit := path != ""
	if !explicit {
		path = findConfig()
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if explicit {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		return cfg, nil
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func findConfig() string {
	if _, err := os.Stat(configName); err == nil {
		return configName
	}
	if dir, err := os.UserConfigDir(); err == nil {
		p := pathpkg.Join(dir, "binlift", configName)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
