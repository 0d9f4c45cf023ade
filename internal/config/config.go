// Package config wraps viper with namespaced get-or-default reads so the
// rest of the program never hardcodes a full dotted key twice.
package config

import (
	"errors"

	"github.com/spf13/viper"
)

type Config struct {
	v      *viper.Viper
	prefix string
}

// Load reads the optional config file. An empty path searches the working
// directory for beatkeeper.{yaml,toml,json}; a missing file is not an error
// since every key has a default.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("beatkeeper")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return &Config{v: v}, nil
		}
		return nil, err
	}
	return &Config{v: v}, nil
}

// New wraps an existing viper instance, mainly for tests.
func New(v *viper.Viper) *Config {
	return &Config{v: v}
}

// Sub returns a view of the config rooted at the given namespace, so that
// a module created for "osc" reads "msg.beat" as "osc.msg.beat".
func (c *Config) Sub(ns string) *Config {
	return &Config{v: c.v, prefix: c.key(ns)}
}

func (c *Config) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + "." + k
}

func (c *Config) Bool(key string, def bool) bool {
	k := c.key(key)
	if !c.v.IsSet(k) {
		return def
	}
	return c.v.GetBool(k)
}

func (c *Config) Int(key string, def int) int {
	k := c.key(key)
	if !c.v.IsSet(k) {
		return def
	}
	return c.v.GetInt(k)
}

func (c *Config) Float(key string, def float64) float64 {
	k := c.key(key)
	if !c.v.IsSet(k) {
		return def
	}
	return c.v.GetFloat64(k)
}

func (c *Config) String(key string, def string) string {
	k := c.key(key)
	if !c.v.IsSet(k) {
		return def
	}
	return c.v.GetString(k)
}
