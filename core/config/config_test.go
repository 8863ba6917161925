package config

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v2"
)

func TestBuiltinConfig(t *testing.T) {
	rawConfig := make(map[string]interface{})
	assert.Nil(t, yaml.Unmarshal(defaultConfigData, &rawConfig))

	knownFields := make(map[string]bool)
	rt := reflect.TypeOf(Configuration{})
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		assert.NotEmpty(t, jsonTag)
		jsonField := strings.Split(jsonTag, ",")[0]
		knownFields[jsonField] = true

		if _, ok := rawConfig[jsonField]; !ok {
			assert.False(t, true, "default config missing field: %q", jsonField)
		}
	}

	for k := range rawConfig {
		_, ok := knownFields[k]
		assert.True(t, ok, "default config contains invalid field: %q", k)
	}
}

func TestDefaultConfig(t *testing.T) {
	// Will panic() on load failure because it should never happen at runtime.
	cfg := defaultConfig()
	assert.NotNil(t, cfg)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 100*time.Millisecond, cfg.GracePeriodDuration())
	assert.Equal(t, `\u@\h:\w\$ `, cfg.Prompt)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Empty(t, cfg.EventLog)

	fd, err := cfg.OpenEventLog()
	assert.NoError(t, err)
	assert.Nil(t, fd)

	_, err = cfg.ReadEventLog()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]struct {
		mutate  func(*Configuration)
		wantErr string
	}{
		"default": {
			mutate: func(*Configuration) {},
		},
		"bad color": {
			mutate:  func(c *Configuration) { c.Color = "sometimes" },
			wantErr: "color",
		},
		"no jobs": {
			mutate:  func(c *Configuration) { c.MaxJobs = 0 },
			wantErr: "max_jobs",
		},
		"too many jobs": {
			mutate:  func(c *Configuration) { c.MaxJobs = 5000 },
			wantErr: "max_jobs",
		},
		"zero history": {
			mutate:  func(c *Configuration) { c.HistoryLimit = 0 },
			wantErr: "history_limit",
		},
		"unparsable grace": {
			mutate:  func(c *Configuration) { c.GracePeriod = "soon" },
			wantErr: "grace_period",
		},
		"grace too long": {
			mutate:  func(c *Configuration) { c.GracePeriod = "1m" },
			wantErr: "grace_period",
		},
		"event log escapes": {
			mutate:  func(c *Configuration) { c.EventLog = "../events.log" },
			wantErr: "event_log",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(cfg)

			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tc.wantErr)
			}
		})
	}
}
