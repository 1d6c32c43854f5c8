// Package config loads osgrep's layered configuration: hardcoded defaults,
// overridden by the user's global config, overridden by the project's
// .osgrep.yaml, overridden by environment variables (highest precedence).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"
)

// PathsConfig configures which paths to include and exclude from indexing.
type PathsConfig struct {
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// SearchConfig configures the hybrid retrieval pipeline (spec §4.7).
type SearchConfig struct {
	// RRFConstant is the smoothing constant k in the RRF formula (default 20,
	// per spec §4.7 step 3 — not the 60 some RRF literature uses elsewhere).
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`
	// CandidateLimit is how many rows each of the dense/FTS fan-outs fetches.
	CandidateLimit int `yaml:"candidate_limit" json:"candidate_limit"`
	// RerankHead is how many fused candidates are sent to the reranker.
	RerankHead int `yaml:"rerank_head" json:"rerank_head"`
	// RerankWeightCode / RerankWeightProse are w_r in the blended score,
	// selected by whether the query looks code-like (spec §4.7 step 4).
	RerankWeightCode  float64 `yaml:"rerank_weight_code" json:"rerank_weight_code"`
	RerankWeightProse float64 `yaml:"rerank_weight_prose" json:"rerank_weight_prose"`
	DefaultLimit      int     `yaml:"default_limit" json:"default_limit"`
	MaxLimit          int     `yaml:"max_limit" json:"max_limit"`
}

// WorkerConfig configures the subordinate inference process pool (spec §4.3).
type WorkerConfig struct {
	// Count is the number of subordinate processes (default: min(4, NumCPU)).
	Count int `yaml:"count" json:"count"`
	// TimeoutMS is the per-request hard timeout in milliseconds.
	TimeoutMS int `yaml:"timeout_ms" json:"timeout_ms"`
	// MemoryLimitMB is the RSS threshold that triggers a drain-and-recycle.
	MemoryLimitMB int `yaml:"memory_limit_mb" json:"memory_limit_mb"`
	// EmbedBatchSize bounds how many texts are embedded per request.
	EmbedBatchSize int `yaml:"embed_batch_size" json:"embed_batch_size"`
	// BinaryPath is the path to the subordinate worker executable. Empty
	// means the CLI uses an osgrep-worker binary next to its own
	// executable, falling back to osgrep-worker on PATH.
	BinaryPath string `yaml:"binary_path" json:"binary_path"`
}

// ServerConfig configures the long-running HTTP server shell (spec §4.9).
type ServerConfig struct {
	Port     int    `yaml:"port" json:"port"`
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// Config is osgrep's complete runtime configuration.
type Config struct {
	Version int          `yaml:"version" json:"version"`
	Paths   PathsConfig  `yaml:"paths" json:"paths"`
	Search  SearchConfig `yaml:"search" json:"search"`
	Worker  WorkerConfig `yaml:"worker" json:"worker"`
	Server  ServerConfig `yaml:"server" json:"server"`

	// StoreName selects the vector+text store under ~/.osgrep/data/.
	StoreName string `yaml:"store_name" json:"store_name"`
	// WriteBatchSize is loaded and defaulted but not read by the syncer,
	// which writes each file's rows in a single store IndexFile call.
	WriteBatchSize int `yaml:"write_batch_size" json:"write_batch_size"`
	// EnableWatch gates the experimental fsnotify-driven watch mode.
	EnableWatch bool `yaml:"enable_watch" json:"enable_watch"`
	// Profile is set by OSGREP_PROFILE. No package reads it, so it does
	// not add any timing logs.
	Profile bool `yaml:"profile" json:"profile"`
}

var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
	"**/*.min.js",
	"**/*.min.css",
}

// NewConfig returns a Config populated with osgrep's defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Include: []string{},
			Exclude: defaultExcludePatterns,
		},
		Search: SearchConfig{
			RRFConstant:       20,
			CandidateLimit:    200,
			RerankHead:        50,
			RerankWeightCode:  0.55,
			RerankWeightProse: 0.60,
			DefaultLimit:      10,
			MaxLimit:          100,
		},
		Worker: WorkerConfig{
			Count:          defaultWorkerCount(),
			TimeoutMS:      60000,
			MemoryLimitMB:  1536,
			EmbedBatchSize: 12,
		},
		Server: ServerConfig{
			Port:     7890,
			LogLevel: "info",
		},
		StoreName:      "default",
		WriteBatchSize: 500,
		EnableWatch:    false,
		Profile:        false,
	}
}

func defaultWorkerCount() int {
	n := runtime.NumCPU()
	if n > 4 {
		return 4
	}
	if n < 1 {
		return 1
	}
	return n
}

// HomeDir returns ~/.osgrep, creating it if necessary.
func HomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".osgrep")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create osgrep home: %w", err)
	}
	return dir, nil
}

// GetUserConfigPath returns ~/.osgrep/config.yaml.
func GetUserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".osgrep", "config.yaml")
	}
	return filepath.Join(home, ".osgrep", "config.yaml")
}

// Load builds the layered configuration for a project rooted at dir:
// defaults, then ~/.osgrep/config.yaml, then dir/.osgrep.yaml, then env vars.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.mergeYAML(userPath); err != nil {
			return nil, fmt.Errorf("load user config: %w", err)
		}
	}

	projectPath := filepath.Join(dir, ".osgrep.yaml")
	if fileExists(projectPath) {
		if err := cfg.mergeYAML(projectPath); err != nil {
			return nil, fmt.Errorf("load project config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) mergeYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies the environment variables from spec §6, highest
// precedence in the configuration layering.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("OSGREP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.Port = n
		}
	}
	if v := os.Getenv("OSGREP_WORKER_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Worker.TimeoutMS = n
		}
	}
	if v := os.Getenv("OSGREP_PROFILE"); v == "1" || v == "true" {
		c.Profile = true
	}
	if v := os.Getenv("OSGREP_ENABLE_WATCH"); v == "1" || v == "true" {
		c.EnableWatch = true
	}
	if v := os.Getenv("MXBAI_STORE"); v != "" {
		c.StoreName = v
	}
}

// Validate rejects an internally inconsistent configuration.
func (c *Config) Validate() error {
	if c.Worker.Count < 1 {
		return fmt.Errorf("worker.count must be >= 1, got %d", c.Worker.Count)
	}
	if c.Worker.TimeoutMS < 1 {
		return fmt.Errorf("worker.timeout_ms must be positive, got %d", c.Worker.TimeoutMS)
	}
	if c.Search.RerankWeightCode < 0 || c.Search.RerankWeightCode > 1 {
		return fmt.Errorf("search.rerank_weight_code must be in [0,1], got %f", c.Search.RerankWeightCode)
	}
	if c.Search.RerankWeightProse < 0 || c.Search.RerankWeightProse > 1 {
		return fmt.Errorf("search.rerank_weight_prose must be in [0,1], got %f", c.Search.RerankWeightProse)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
