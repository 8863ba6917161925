package config

import (
	_ "embed"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

var (
	//go:embed default/config.yaml
	defaultConfigData []byte
)

const (
	ConfigurationName = "config.yaml"

	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"

	minGracePeriod = time.Millisecond
	maxGracePeriod = 10 * time.Second
)

type Configuration struct {
	configFs afero.Fs

	Banner       bool   `json:"banner"`
	Prompt       string `json:"prompt" validate:"required"`
	Color        string `json:"color" validate:"oneof=auto always never"`
	HistoryLimit int    `json:"history_limit" validate:"gte=1"`
	MaxJobs      int    `json:"max_jobs" validate:"gte=1,lte=4096"`
	GracePeriod  string `json:"grace_period" validate:"required"`
	EventLog     string `json:"event_log" validate:"omitempty,excludesall=/\\"`
	ErrorPrefix  string `json:"error_prefix" validate:"required"`
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})

	if err := validate.Struct(c); err != nil {
		return err
	}

	grace, err := time.ParseDuration(c.GracePeriod)
	if err != nil {
		return fmt.Errorf("grace_period: %w", err)
	}
	if grace < minGracePeriod || grace > maxGracePeriod {
		return fmt.Errorf("grace_period: %s outside of [%s, %s]", grace, minGracePeriod, maxGracePeriod)
	}
	return nil
}

// GracePeriodDuration returns the parsed grace period. Call Validate first,
// unparsable values fall back to 100ms.
func (c *Configuration) GracePeriodDuration() time.Duration {
	grace, err := time.ParseDuration(c.GracePeriod)
	if err != nil {
		return 100 * time.Millisecond
	}
	return grace
}

func (c *Configuration) fs() afero.Fs {
	return c.configFs
}

// OpenEventLog opens the event log in an append only state. It returns nil
// if the event log is disabled.
func (c *Configuration) OpenEventLog() (afero.File, error) {
	if c.EventLog == "" || c.fs() == nil {
		return nil, nil
	}
	return c.fs().OpenFile(c.EventLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
}

// ReadEventLog opens the event log for reading.
func (c *Configuration) ReadEventLog() (afero.File, error) {
	if c.EventLog == "" || c.fs() == nil {
		return nil, fmt.Errorf("event log disabled")
	}
	return c.fs().OpenFile(c.EventLog, os.O_RDONLY, 0600)
}

// Default returns the built-in configuration. It isn't backed by a
// directory so the event log is disabled.
func Default() *Configuration {
	cfg := defaultConfig()
	cfg.EventLog = ""
	return cfg
}

func defaultConfig() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		panic(err)
	}
	return &out
}
