// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config holds the settings used to assemble a Keeper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

var (
	ErrDataDirRequired       = errors.New("data directory is required unless running in memory")
	ErrRepositoryDirRequired = errors.New("repository directory is required")
	ErrInvalidPoolSize       = errors.New("pool sizes must be positive")
	ErrInvalidBudget         = errors.New("budgets must not be negative")
	ErrInvalidSchedule       = errors.New("invalid health check schedule")
	ErrInvalidLogLevel       = errors.New("invalid log level")
	ErrNoSupportedTypes      = errors.New("at least one repository type must be supported")
)

// Config holds the configuration of a Keeper.
type Config struct {
	// DataDir is where badger keeps its files. Ignored when InMemory is set.
	DataDir string `yaml:"dataDir"`

	// InMemory runs badger without touching disk.
	InMemory bool `yaml:"inMemory"`

	// RepositoryDir is the base directory for git repositories on disk.
	RepositoryDir string `yaml:"repositoryDir"`

	// WorkerPoolSize bounds the background pool used for index updates and
	// health checks.
	// Default: 8
	WorkerPoolSize int `yaml:"workerPoolSize"`

	// EventPoolSize bounds the pool delivering asynchronous events.
	// Default: 4
	EventPoolSize int `yaml:"eventPoolSize"`

	// ExecutorCapacity limits how many tasks an executor may have queued on
	// the worker pool. Negative means unbounded.
	// Default: 256
	ExecutorCapacity int `yaml:"executorCapacity"`

	// IndexUpdateBudget is how long index updates run inline before being
	// handed to the worker pool.
	// Default: 100ms
	IndexUpdateBudget time.Duration `yaml:"indexUpdateBudget"`

	// CheckAllBudget is the inline budget of a check-all run.
	// Default: 1s
	CheckAllBudget time.Duration `yaml:"checkAllBudget"`

	// HealthSchedule is a cron spec for periodic check-all runs. Empty
	// disables the scheduler.
	// Example: "@every 1h", "0 3 * * *"
	HealthSchedule string `yaml:"healthSchedule"`

	// PolicyFile is an optional cedar policy file replacing the built-in
	// policies.
	PolicyFile string `yaml:"policyFile"`

	// SupportedTypes lists the repository types accepted by the type check.
	// Default: ["git"]
	SupportedTypes []string `yaml:"supportedTypes"`

	// LogLevel is one of debug, info, warn or error.
	// Default: "info"
	LogLevel string `yaml:"logLevel"`
}

// Option is a functional option for configuring a Config.
type Option func(*Config)

// WithDataDir sets the badger data directory.
func WithDataDir(dir string) Option {
	return func(c *Config) {
		c.DataDir = dir
	}
}

// WithInMemory switches badger to in-memory mode.
func WithInMemory(inMemory bool) Option {
	return func(c *Config) {
		c.InMemory = inMemory
	}
}

// WithRepositoryDir sets the base directory for git repositories.
func WithRepositoryDir(dir string) Option {
	return func(c *Config) {
		c.RepositoryDir = dir
	}
}

// WithWorkerPoolSize sets the worker pool size.
func WithWorkerPoolSize(size int) Option {
	return func(c *Config) {
		c.WorkerPoolSize = size
	}
}

// WithEventPoolSize sets the event pool size.
func WithEventPoolSize(size int) Option {
	return func(c *Config) {
		c.EventPoolSize = size
	}
}

// WithExecutorCapacity sets the executor capacity.
func WithExecutorCapacity(capacity int) Option {
	return func(c *Config) {
		c.ExecutorCapacity = capacity
	}
}

// WithIndexUpdateBudget sets the inline budget of index updates.
func WithIndexUpdateBudget(budget time.Duration) Option {
	return func(c *Config) {
		c.IndexUpdateBudget = budget
	}
}

// WithCheckAllBudget sets the inline budget of check-all runs.
func WithCheckAllBudget(budget time.Duration) Option {
	return func(c *Config) {
		c.CheckAllBudget = budget
	}
}

// WithHealthSchedule sets the cron spec of periodic check-all runs.
func WithHealthSchedule(spec string) Option {
	return func(c *Config) {
		c.HealthSchedule = spec
	}
}

// WithPolicyFile sets the cedar policy file.
func WithPolicyFile(path string) Option {
	return func(c *Config) {
		c.PolicyFile = path
	}
}

// WithSupportedTypes replaces the supported repository types.
func WithSupportedTypes(types ...string) Option {
	return func(c *Config) {
		c.SupportedTypes = types
	}
}

// WithLogLevel sets the log level.
func WithLogLevel(level string) Option {
	return func(c *Config) {
		c.LogLevel = level
	}
}

// DefaultConfig returns a Config with defaults for a local installation.
func DefaultConfig() *Config {
	return &Config{
		DataDir:           "repokeeper-data",
		RepositoryDir:     "repositories",
		WorkerPoolSize:    8,
		EventPoolSize:     4,
		ExecutorCapacity:  256,
		IndexUpdateBudget: 100 * time.Millisecond,
		CheckAllBudget:    time.Second,
		SupportedTypes:    []string{"git"},
		LogLevel:          "info",
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
func NewConfig(opts ...Option) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Load reads a YAML file on top of the defaults and applies opts afterwards,
// so options override the file.
func Load(path string, opts ...Option) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg, nil
}

// Validate checks that the configuration is complete.
func (c *Config) Validate() error {
	if !c.InMemory && c.DataDir == "" {
		return ErrDataDirRequired
	}
	if c.RepositoryDir == "" {
		return ErrRepositoryDirRequired
	}
	if c.WorkerPoolSize <= 0 || c.EventPoolSize <= 0 {
		return ErrInvalidPoolSize
	}
	if c.IndexUpdateBudget < 0 || c.CheckAllBudget < 0 {
		return ErrInvalidBudget
	}
	if c.HealthSchedule != "" {
		if _, err := cron.ParseStandard(c.HealthSchedule); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
		}
	}
	if len(c.SupportedTypes) == 0 {
		return ErrNoSupportedTypes
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}
	return nil
}
