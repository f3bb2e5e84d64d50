/*
Package config is a YAML configuration of a training run
*/
package config

import (
	"go-ml.dev/pkg/automl/model"
	"go-ml.dev/pkg/automl/model/hyperopt"
	"go-ml.dev/pkg/automl/model/metrics"
	"go-ml.dev/pkg/automl/preprocess"
	"go-ml.dev/pkg/zorros"
	"gopkg.in/yaml.v3"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	Data            DataConfig      `yaml:"data"`
	Search          SearchConfig    `yaml:"search"`
	Hyperparameters hyperopt.Config `yaml:"hyperparameters"`
	Store           StoreConfig     `yaml:"store"`
	Logging         LoggingConfig   `yaml:"logging"`
}

type DataConfig struct {
	File       string                 `yaml:"file"`
	Target     string                 `yaml:"target"`
	TargetType string                 `yaml:"target_type"` // regression, binary, multiclass, detected if empty
	Split      preprocess.SplitRatios `yaml:"split"`
	Seed       int64                  `yaml:"seed"`
}

type SearchConfig struct {
	PrimaryMetric    string   `yaml:"primary_metric"` // accuracy or rmse if empty
	SecondaryMetrics []string `yaml:"secondary_metrics"`
	MinIterations    int      `yaml:"min_iterations"`
	MaxTrainingTime  string   `yaml:"max_training_time"`
}

type StoreConfig struct {
	Path string `yaml:"path"` // user cache if empty
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

func Default() *Config {
	return &Config{
		Data: DataConfig{
			Split: preprocess.DefaultRatios(),
			Seed:  42,
		},
		Search: SearchConfig{
			MinIterations:   model.DefaultMinIterations,
			MaxTrainingTime: model.DefaultMaxTrainingTime.String(),
		},
		Hyperparameters: hyperopt.Default(),
		Logging:         LoggingConfig{Level: "info"},
	}
}

/*
Load reads configuration over defaults, a missing file gives defaults
*/
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, zorros.Wrapf(err, "failed to read config: %v", err.Error())
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, zorros.Wrapf(err, "failed to parse config: %v", err.Error())
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return zorros.Wrapf(err, "failed to create config directory: %v", err.Error())
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return zorros.Wrapf(err, "failed to marshal config: %v", err.Error())
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return zorros.Wrapf(err, "failed to write config: %v", err.Error())
	}
	return nil
}

func (c *Config) Validate() error {
	if err := c.Data.Split.Validate(); err != nil {
		return err
	}
	if c.Data.TargetType != "" {
		if _, err := preprocess.ParseTargetType(c.Data.TargetType); err != nil {
			return err
		}
	}
	if c.Search.MinIterations < 0 {
		return zorros.Errorf("min iterations must not be negative")
	}
	if d, err := c.MaxTrainingTime(); err != nil {
		return err
	} else if d < 0 {
		return zorros.Errorf("max training time must not be negative")
	}
	for _, n := range append([]string{c.Search.PrimaryMetric}, c.Search.SecondaryMetrics...) {
		if n != "" && !metrics.Known(n) {
			return zorros.Errorf("unknown metric `%v`", n)
		}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return zorros.Errorf("unknown logging level `%v`", c.Logging.Level)
	}
	return c.Hyperparameters.Validate()
}

/*
MaxTrainingTime parses the duration string, a bare number means minutes
*/
func (c *Config) MaxTrainingTime() (time.Duration, error) {
	s := strings.TrimSpace(c.Search.MaxTrainingTime)
	if s == "" {
		return 0, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	d, err := time.ParseDuration(s + "m")
	if err != nil {
		return 0, zorros.Errorf("bad max training time `%v`", c.Search.MaxTrainingTime)
	}
	return d, nil
}

/*
TargetType returns the configured target type or detects it from target values
*/
func (c *Config) TargetType(values []interface{}) (preprocess.TargetType, error) {
	if c.Data.TargetType == "" {
		return preprocess.DetectTargetType(values), nil
	}
	return preprocess.ParseTargetType(c.Data.TargetType)
}

/*
Training converts the search part of configuration,
the caller sets trainer, callbacks and the logger
*/
func (c *Config) Training() (model.Training, error) {
	d, err := c.MaxTrainingTime()
	if err != nil {
		return model.Training{}, err
	}
	return model.Training{
		PrimaryMetric:    c.Search.PrimaryMetric,
		SecondaryMetrics: c.Search.SecondaryMetrics,
		MinIterations:    c.Search.MinIterations,
		MaxTrainingTime:  d,
		Hyperparameters:  c.Hyperparameters,
	}, nil
}
