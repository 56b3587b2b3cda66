package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/chihqiang/dbxnotify/cron"
	"github.com/chihqiang/dbxnotify/datastore"
	"github.com/chihqiang/dbxnotify/emitter"
	"github.com/chihqiang/dbxnotify/output"
	"github.com/chihqiang/dbxnotify/pkg/structx"
	"github.com/chihqiang/dbxnotify/pkg/tracing"
	"github.com/chihqiang/dbxnotify/source"
	"github.com/chihqiang/dbxnotify/store"
	"github.com/chihqiang/dbxnotify/worker"
)

func init() {
	_ = godotenv.Load()
}

type LogConfig struct {
	Level string `yaml:"level" json:"level" mapstructure:"level" env:"LOG_LEVEL" envDefault:"info"`
}

type MetricsConfig struct {
	// Addr serves /metrics; empty disables the endpoint.
	Addr string `yaml:"addr" json:"addr" mapstructure:"addr" env:"METRICS_ADDR" envDefault:":9090"`
}

// Config 定义全局配置结构
type Config struct {
	Source   source.Config     `yaml:"source" json:"source" mapstructure:"source"`
	Output   output.Config     `yaml:"output" json:"output" mapstructure:"output"`
	Store    store.Config      `yaml:"store" json:"store" mapstructure:"store"`
	Database datastore.Config  `yaml:"database" json:"database" mapstructure:"database" envPrefix:"DATABASE_"`
	Runtime  worker.Config     `yaml:"runtime" json:"runtime" mapstructure:"runtime"`
	Emitter  emitter.Config    `yaml:"emitter" json:"emitter" mapstructure:"emitter"`
	Digest   cron.DigestConfig `yaml:"digest" json:"digest" mapstructure:"digest"`
	Streak   cron.StreakConfig `yaml:"streak" json:"streak" mapstructure:"streak"`
	Log      LogConfig         `yaml:"log" json:"log" mapstructure:"log"`
	Metrics  MetricsConfig     `yaml:"metrics" json:"metrics" mapstructure:"metrics"`
	Tracing  tracing.Config    `yaml:"tracing" json:"tracing" mapstructure:"tracing"`
}

// Load 加载配置。
// 加载顺序：优先读取 YAML 文件，未设置的字段取默认值；文件不存在时从环境变量加载。
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		merged, err := structx.MergeWithDefaults[Config](cfg)
		if err != nil {
			return nil, err
		}
		return &merged, nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration from env: %w", err)
	}
	return &cfg, nil
}
