package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Database   DatabaseConfig
	Index      IndexConfig
	Annotation AnnotationConfig
	Web        WebConfig
}

type DatabaseConfig struct {
	Driver       string // postgres (default) or sqlite
	URL          string // PostgreSQL connection URL or SQLite file path
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type IndexConfig struct {
	DataDir            string  `yaml:"-"`
	FilmsDir           string  `yaml:"-"`
	ItemsPerTrajectory int     `yaml:"items_per_trajectory"`
	DefaultFPS         float64 `yaml:"default_fps"`
	Workers            int     `yaml:"workers"`
	Strict             bool    `yaml:"-"` // any broken movie aborts startup
	RequireMovieFile   bool    `yaml:"-"` // a movie without media file is broken
}

type AnnotationConfig struct {
	PredictionMinP float64 `yaml:"prediction_min_p"`
	DefaultUser    string  `yaml:"default_user"`
}

type WebConfig struct {
	Port           int
	Host           string
	AllowedOrigins []string
}

// Defaults are the tunables shipped with the binary.
type Defaults struct {
	Index      IndexConfig      `yaml:"index"`
	Annotation AnnotationConfig `yaml:"annotation"`
}

// LoadDefaults parses the embedded defaults.yaml.
func LoadDefaults() Defaults {
	var d Defaults
	if err := yaml.Unmarshal(defaultsYAML, &d); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return d
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float in [0, 1].
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 && f <= 1 {
		return f
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma separated variable, dropping empty items.
func envList(key string) []string {
	var items []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func Load() *Config {
	d := LoadDefaults()

	return &Config{
		Database: DatabaseConfig{
			Driver:       envString("DATABASE_DRIVER", "postgres"),
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Index: IndexConfig{
			DataDir:            envString("DATA_DIR", "data"),
			FilmsDir:           os.Getenv("FILMS_DIR"),
			ItemsPerTrajectory: envInt("ITEMS_PER_TRAJECTORY", d.Index.ItemsPerTrajectory),
			DefaultFPS:         d.Index.DefaultFPS,
			Workers:            envInt("INDEX_WORKERS", d.Index.Workers),
			Strict:             envBool("INDEX_STRICT", false),
			RequireMovieFile:   envBool("INDEX_REQUIRE_MOVIE_FILE", false),
		},
		Annotation: AnnotationConfig{
			PredictionMinP: envFloat("PREDICTION_MIN_P", d.Annotation.PredictionMinP),
			DefaultUser:    envString("DEFAULT_USER", d.Annotation.DefaultUser),
		},
		Web: WebConfig{
			Port:           envInt("WEB_PORT", 8080),
			Host:           envString("WEB_HOST", "0.0.0.0"),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
	}
}
