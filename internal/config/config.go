package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var modelsYAML []byte

// Supported values for DATABASE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Supported values for EMBEDDING_BACKEND.
const (
	BackendONNX   = "onnx"
	BackendRemote = "remote"
)

type Config struct {
	Database  DatabaseConfig
	Embedding EmbeddingConfig
	Storage   StorageConfig
	Backfill  BackfillConfig
	Log       LogConfig
	Web       WebConfig
	Models    ModelsConfig
}

type DatabaseConfig struct {
	Driver          string // postgres (default) or mysql
	URL             string // connection URL / DSN
	MaxOpenConns    int    // Maximum open connections (default 25)
	MaxIdleConns    int    // Maximum idle connections (default 5)
	VectorCacheSize int    // Parsed vectors kept in memory (default 50000)
}

type EmbeddingConfig struct {
	Backend      string // onnx (default) or remote
	ModelDir     string // directory holding the .onnx files (default ./models)
	RuntimeLib   string // path to the onnxruntime shared library (optional)
	URL          string // remote embedding server, defaults to http://localhost:8000
	DefaultModel string // model used by backfill when none is given
}

type StorageConfig struct {
	UploadDir     string        // local upload root for relative photo locations
	UploadBaseURL string        // public prefix stripped from locations that point back at this host
	S3Endpoint    string        // S3-compatible endpoint (optional, AWS default otherwise)
	S3Region      string        // default us-east-1
	S3Bucket      string        // bucket for bare keys
	S3PathStyle   bool          // path-style addressing for MinIO/COS
	FetchTimeout  time.Duration // per-request timeout for remote fetches (default 30s)
	FetchRetryMax int           // retries for remote fetches (default 3)
}

type BackfillConfig struct {
	Delay time.Duration // pause between items (default 100ms)
}

type LogConfig struct {
	Env   string // prod, local, dev (default local)
	Level string // optional override
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string // CORS origins besides localhost
}

type ModelsConfig struct {
	Models map[string]ModelProfile `yaml:"models"`
}

// ModelProfile describes how to feed one ONNX image model.
type ModelProfile struct {
	Name       string     `yaml:"-"`
	File       string     `yaml:"file"`
	InputSize  int        `yaml:"input_size"`
	Dim        int        `yaml:"dim"`
	InputName  string     `yaml:"input_name"`
	OutputName string     `yaml:"output_name"`
	Mean       [3]float32 `yaml:"mean"`
	Std        [3]float32 `yaml:"std"`
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

// envNonNegInt is envInt that also accepts zero.
func envNonNegInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

// envDuration accepts Go durations ("250ms") or a bare number of milliseconds.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	if ms, err := strconv.Atoi(s); err == nil && ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return defaultVal
	}
	return b
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma-separated variable, dropping blanks.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Load() *Config {
	var models ModelsConfig
	if err := yaml.Unmarshal(modelsYAML, &models); err != nil {
		// embedded file, only a broken build gets here
		panic("failed to unmarshal embedded models.yaml: " + err.Error())
	}
	for name, p := range models.Models {
		p.Name = name
		models.Models[name] = p
	}

	return &Config{
		Database: DatabaseConfig{
			Driver:          strings.ToLower(envString("DATABASE_DRIVER", DriverPostgres)),
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			VectorCacheSize: envInt("VECTOR_CACHE_SIZE", 50000),
		},
		Embedding: EmbeddingConfig{
			Backend:      strings.ToLower(envString("EMBEDDING_BACKEND", BackendONNX)),
			ModelDir:     envString("MODEL_DIR", "models"),
			RuntimeLib:   os.Getenv("ONNXRUNTIME_LIB"),
			URL:          envString("EMBEDDING_URL", "http://localhost:8000"),
			DefaultModel: envString("DEFAULT_MODEL", "resnet50"),
		},
		Storage: StorageConfig{
			UploadDir:     envString("UPLOAD_ABS_DIR", "uploads"),
			UploadBaseURL: os.Getenv("UPLOAD_BASE_URL"),
			S3Endpoint:    os.Getenv("S3_ENDPOINT"),
			S3Region:      envString("S3_REGION", "us-east-1"),
			S3Bucket:      os.Getenv("S3_BUCKET"),
			S3PathStyle:   envBool("S3_FORCE_PATH_STYLE", false),
			FetchTimeout:  envDuration("FETCH_TIMEOUT", 30*time.Second),
			FetchRetryMax: envNonNegInt("FETCH_RETRY_MAX", 3),
		},
		Backfill: BackfillConfig{
			Delay: envDuration("BACKFILL_DELAY", 100*time.Millisecond),
		},
		Log: LogConfig{
			Env:   envString("LOG_ENV", "local"),
			Level: os.Getenv("LOG_LEVEL"),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Models: models,
	}
}

// Model returns the profile registered under name.
func (c *Config) Model(name string) (ModelProfile, error) {
	p, ok := c.Models.Models[name]
	if !ok {
		return ModelProfile{}, fmt.Errorf("unknown model %q (known: %s)", name, strings.Join(c.ModelNames(), ", "))
	}
	return p, nil
}

// ModelNames lists the registered models in sorted order.
func (c *Config) ModelNames() []string {
	names := make([]string, 0, len(c.Models.Models))
	for name := range c.Models.Models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Path returns where the model file is expected under dir.
func (p ModelProfile) Path(dir string) string {
	return filepath.Join(dir, p.File)
}

// Validate reports configuration that makes the process unable to start.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	switch c.Database.Driver {
	case DriverPostgres, DriverMySQL:
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q (expected %s or %s)", c.Database.Driver, DriverPostgres, DriverMySQL)
	}
	switch c.Embedding.Backend {
	case BackendONNX, BackendRemote:
	default:
		return fmt.Errorf("unsupported EMBEDDING_BACKEND %q (expected %s or %s)", c.Embedding.Backend, BackendONNX, BackendRemote)
	}
	if _, err := c.Model(c.Embedding.DefaultModel); err != nil {
		return fmt.Errorf("DEFAULT_MODEL: %w", err)
	}
	return nil
}
