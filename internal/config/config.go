package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/face-checkin/internal/facematch"
	"github.com/kozaktomas/face-checkin/internal/logger"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// FileEnv names an optional YAML file layered over the embedded defaults.
const FileEnv = "FACE_CHECKIN_CONFIG"

type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	MariaDB     MariaDBConfig     `yaml:"mariadb"`
	Vision      VisionConfig      `yaml:"vision"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Attendance  AttendanceConfig  `yaml:"attendance"`
	Log         LogConfig         `yaml:"log"`
	Web         WebConfig         `yaml:"web"`
}

type DatabaseConfig struct {
	URL          string `yaml:"url"`            // PostgreSQL connection URL
	MaxOpenConns int    `yaml:"max_open_conns"` // Maximum open connections (default 25)
	MaxIdleConns int    `yaml:"max_idle_conns"` // Maximum idle connections (default 5)
}

type MariaDBConfig struct {
	DSN string `yaml:"dsn"` // e.g. checkin:checkin@tcp(mariadb:3306)/checkin?parseTime=true
}

type VisionConfig struct {
	URL      string        `yaml:"url"`       // defaults to http://localhost:8000
	Timeout  time.Duration `yaml:"timeout"`   // per request
	CropSize int           `yaml:"crop_size"` // face crop edge in pixels sent to the extractor
}

type RecognitionConfig struct {
	MaxDistance       float64 `yaml:"max_distance"`       // 0 disables the threshold
	GalleryCapacity   int     `yaml:"gallery_capacity"`   // embeddings kept per identity
	LoyaltyReward     int     `yaml:"loyalty_reward"`     // points per attended day
	FaceSelection     string  `yaml:"face_selection"`     // largest or first
	Workers           int     `yaml:"workers"`            // concurrent vision calls, 0 = NumCPU
	LookalikeDistance float64 `yaml:"lookalike_distance"` // flags lookalikes closer than this
}

type AttendanceConfig struct {
	Timezone string `yaml:"timezone"` // IANA name deciding the calendar day, empty = local zone
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type WebConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Location resolves the attendance timezone.
func (c *AttendanceConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid attendance timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Selection parses the configured face selection policy.
func (c *RecognitionConfig) Selection() (facematch.SelectionPolicy, error) {
	return facematch.ParseSelectionPolicy(c.FaceSelection)
}

// envInt reads an environment variable and parses it as an integer not below minVal.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal, minVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= minVal {
		return n
	}
	return defaultVal
}

// envFloat reads a non-negative float environment variable.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Load reads the embedded defaults, the optional file named by FACE_CHECKIN_CONFIG
// and finally the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// Embedded file, so this only fails on a broken build.
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	if path := os.Getenv(FileEnv); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if cfg.Recognition.Workers <= 0 {
		cfg.Recognition.Workers = runtime.NumCPU()
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.Database.URL = envString("DATABASE_URL", c.Database.URL)
	c.Database.MaxOpenConns = envInt("DATABASE_MAX_OPEN_CONNS", c.Database.MaxOpenConns, 1)
	c.Database.MaxIdleConns = envInt("DATABASE_MAX_IDLE_CONNS", c.Database.MaxIdleConns, 1)

	c.MariaDB.DSN = envString("MARIADB_DSN", c.MariaDB.DSN)

	c.Vision.URL = envString("VISION_URL", c.Vision.URL)
	c.Vision.Timeout = envDuration("VISION_TIMEOUT", c.Vision.Timeout)
	c.Vision.CropSize = envInt("VISION_CROP_SIZE", c.Vision.CropSize, 1)

	c.Recognition.MaxDistance = envFloat("RECOGNITION_MAX_DISTANCE", c.Recognition.MaxDistance)
	c.Recognition.GalleryCapacity = envInt("RECOGNITION_GALLERY_CAPACITY", c.Recognition.GalleryCapacity, 1)
	c.Recognition.LoyaltyReward = envInt("RECOGNITION_LOYALTY_REWARD", c.Recognition.LoyaltyReward, 0)
	c.Recognition.FaceSelection = envString("RECOGNITION_FACE_SELECTION", c.Recognition.FaceSelection)
	c.Recognition.Workers = envInt("RECOGNITION_WORKERS", c.Recognition.Workers, 1)
	c.Recognition.LookalikeDistance = envFloat("RECOGNITION_LOOKALIKE_DISTANCE", c.Recognition.LookalikeDistance)

	c.Attendance.Timezone = envString("ATTENDANCE_TIMEZONE", c.Attendance.Timezone)

	c.Log.Level = envString("LOG_LEVEL", c.Log.Level)
	c.Log.Format = envString("LOG_FORMAT", c.Log.Format)

	c.Web.Host = envString("WEB_HOST", c.Web.Host)
	c.Web.Port = envInt("WEB_PORT", c.Web.Port, 1)
	c.Web.AllowedOrigins = envList("WEB_ALLOWED_ORIGINS", c.Web.AllowedOrigins)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Vision.URL == "" {
		errs = append(errs, errors.New("vision URL is required"))
	}
	if c.Vision.Timeout <= 0 {
		errs = append(errs, errors.New("vision timeout must be positive"))
	}
	if c.Vision.CropSize < 16 {
		errs = append(errs, fmt.Errorf("vision crop size %d is too small", c.Vision.CropSize))
	}
	if c.Recognition.MaxDistance < 0 {
		errs = append(errs, errors.New("recognition max distance must not be negative"))
	}
	if c.Recognition.GalleryCapacity < 1 {
		errs = append(errs, errors.New("gallery capacity must be at least 1"))
	}
	if c.Recognition.LoyaltyReward < 0 {
		errs = append(errs, errors.New("loyalty reward must not be negative"))
	}
	if c.Recognition.LookalikeDistance < 0 {
		errs = append(errs, errors.New("lookalike distance must not be negative"))
	}
	if _, err := c.Recognition.Selection(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Attendance.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", logger.FormatJSON, logger.FormatConsole:
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	if c.Web.Port < 1 || c.Web.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid web port %d", c.Web.Port))
	}

	return errors.Join(errs...)
}
