// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package config loads Operator configuration from a YAML file and
// NETOP_ environment variables.
//
// Every key has a default, so an empty configuration is valid:
//
//	base_url: https://api.example.com/v1
//	timeout: 30s
//	max_in_flight: 0
//	max_completed: 0
//	retry:
//	  enabled: true
//	  interval: 3s
//	  max_count: 3
//	auth:
//	  token: ""
//	log:
//	  level: info
//	  development: false
//
// Environment variables override the file. Nested keys join with an
// underscore, so NETOP_RETRY_MAX_COUNT overrides retry.max_count.
package config

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gogama/netop"
	"github.com/gogama/netop/auth"
	"github.com/gogama/netop/request"
	"github.com/gogama/netop/retry"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix is the prefix of environment variables that override
// configuration keys.
const EnvPrefix = "NETOP"

// Config is the loaded configuration.
type Config struct {
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxInFlight  int64         `mapstructure:"max_in_flight"`
	MaxCompleted int           `mapstructure:"max_completed"`
	Retry        Retry         `mapstructure:"retry"`
	Auth         Auth          `mapstructure:"auth"`
	Log          Log           `mapstructure:"log"`
}

// Retry holds the retry settings applied to descriptors without their
// own.
type Retry struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	MaxCount int           `mapstructure:"max_count"`
}

// Auth holds the bearer credential configured on the Operator at
// startup. An empty token leaves the Operator without a session.
type Auth struct {
	Token string `mapstructure:"token"`
}

// Log selects the logger built by Config.Logger.
type Log struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("base_url", "")
	v.SetDefault("timeout", request.DefaultTimeout)
	v.SetDefault("max_in_flight", 0)
	v.SetDefault("max_completed", 0)
	v.SetDefault("retry.enabled", true)
	v.SetDefault("retry.interval", request.DefaultRetryInterval)
	v.SetDefault("retry.max_count", request.DefaultRetryCount)
	v.SetDefault("auth.token", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads the configuration. If path is empty, only defaults and
// environment variables are used.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "config: failed to read %q", path)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.Wrap(err, "config: failed to decode")
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.BaseURL != "" {
		if _, err := c.baseURL(); err != nil {
			return err
		}
	}
	if c.Timeout < 0 {
		return errors.Errorf("config: negative timeout %s", c.Timeout)
	}
	if c.Retry.Interval < 0 {
		return errors.Errorf("config: negative retry interval %s", c.Retry.Interval)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "config: bad log level")
	}
	return nil
}

func (c *Config) baseURL() (*url.URL, error) {
	if c.BaseURL == "" {
		return nil, nil
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "config: bad base_url")
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("config: base_url %q must be absolute", c.BaseURL)
	}
	return u, nil
}

// Logger builds a zap logger at the configured level, using zap's
// development configuration when log.development is set and its
// production configuration otherwise.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, errors.Wrap(err, "config: bad log level")
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	logger, err := zc.Build()
	if err != nil {
		return nil, errors.Wrap(err, "config: failed to build logger")
	}
	return logger, nil
}

// RetryPolicy returns the policy described by the retry settings.
func (c *Config) RetryPolicy() retry.Policy {
	r := request.Retry{
		Enabled:  c.Retry.Enabled,
		Interval: c.Retry.Interval,
		MaxCount: c.Retry.MaxCount,
	}
	return retry.FromSettings(&r, retry.DefaultPolicy)
}

// Operator builds an Operator from the configuration, logging to
// logger. If a token is configured, it is installed as a bearer
// credential.
func (c *Config) Operator(logger *zap.Logger) (*netop.Operator, error) {
	u, err := c.baseURL()
	if err != nil {
		return nil, err
	}
	op := &netop.Operator{
		BaseURL:      u,
		HTTPDoer:     &http.Client{},
		RetryPolicy:  c.RetryPolicy(),
		Logger:       logger,
		MaxInFlight:  c.MaxInFlight,
		MaxCompleted: c.MaxCompleted,
	}
	if c.Auth.Token != "" {
		op.SetToken(auth.BearerToken(c.Auth.Token))
	}
	return op, nil
}

// Apply fills in the configured timeout on a descriptor that has none.
func (c *Config) Apply(d *request.Descriptor) {
	if d.Timeout <= 0 {
		d.Timeout = c.Timeout
	}
}
