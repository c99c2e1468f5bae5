package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	defaultConfigPath = "~/.config/uvcal/config.json"
	defaultParallel   = 4
)

// Config holds user-editable settings for the calibration service.
type Config struct {
	Calibration Calibration `json:"calibration"`
	Processing  Processing  `json:"processing"`
	Logging     Logging     `json:"logging"`
	Server      Server      `json:"server"`
	Paths       Paths       `json:"paths"`
}

// Calibration locates the mission calibration products.
type Calibration struct {
	FlatFUV    string  `json:"flat_fuv"`    // FUV flat field image
	FlatNUV    string  `json:"flat_nuv"`    // NUV flat field image
	AspectDB   string  `json:"aspect_db"`   // aspect-solution SQLite database
	PlateScale float64 `json:"plate_scale"` // degrees per flat pixel
	MapStep    float64 `json:"map_step"`    // canonical map cell size, degrees; 0 = plate scale
}

// Processing captures execution preferences.
type Processing struct {
	ParallelJobs int `json:"parallel_jobs"` // tick workers per estimate
	QueueWorkers int `json:"queue_workers"` // batch pipeline workers
}

// Logging controls logging verbosity and destinations.
type Logging struct {
	Level      string `json:"level"`       // debug, info, warn, error
	Format     string `json:"format"`      // text, json
	FileOutput bool   `json:"file_output"` // Enable file logging
	LogDir     string `json:"log_dir"`     // Directory for log files
}

// Server configures the HTTP service.
type Server struct {
	Port int `json:"port"`
}

// Paths configures storage locations.
type Paths struct {
	DatabasePath string `json:"database_path"` // query/result store
}

// Load reads configuration from disk, falling back to sensible defaults.
func Load() (*Config, error) {
	cfg := defaultConfig()

	configPath := os.Getenv("UVCAL_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	expanded, err := expandUser(configPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(expanded)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	if err := dec.Decode(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Calibration: Calibration{
			FlatFUV:    "cal/flat_fuv.fits",
			FlatNUV:    "cal/flat_nuv.fits",
			AspectDB:   "cal/aspect.db",
			PlateScale: 0.0015,
		},
		Processing: Processing{
			ParallelJobs: defaultParallel,
			QueueWorkers: 2,
		},
		Logging: Logging{
			Level:      "info",
			Format:     "text",
			FileOutput: false,
			LogDir:     "./logs",
		},
		Server: Server{
			Port: 8080,
		},
		Paths: Paths{
			DatabasePath: filepath.Join(os.TempDir(), "uvcal.db"),
		},
	}
}

// Validate checks that the settings are internally consistent. It does not
// require the calibration products to exist; commands that need them report
// missing files themselves.
func (c *Config) Validate() error {
	if c.Calibration.PlateScale <= 0 {
		return fmt.Errorf("calibration.plate_scale must be positive, got %g", c.Calibration.PlateScale)
	}
	if c.Calibration.MapStep < 0 {
		return fmt.Errorf("calibration.map_step must not be negative, got %g", c.Calibration.MapStep)
	}
	if c.Processing.ParallelJobs < 1 {
		return fmt.Errorf("processing.parallel_jobs must be at least 1, got %d", c.Processing.ParallelJobs)
	}
	if c.Processing.QueueWorkers < 1 {
		return fmt.Errorf("processing.queue_workers must be at least 1, got %d", c.Processing.QueueWorkers)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}

func expandUser(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if path == "~" {
		return home, nil
	}

	return filepath.Join(home, path[2:]), nil
}
