package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the runtime configuration of a capsule.
type Config struct {
	Listen      string
	Cert        string
	Key         string
	Root        string
	MaxConns    int  `mapstructure:"max_conns"`
	AllowProxy  bool `mapstructure:"allow_proxy"`
	LogRequests bool `mapstructure:"log_requests"`
	Timeouts    TimeoutConfig
}

type TimeoutConfig struct {
	Request          time.Duration
	Response         time.Duration
	ComplexBody      time.Duration            `mapstructure:"complex_body"`
	ComplexOverrides map[string]time.Duration `mapstructure:"complex_overrides"`
}

func (c *Config) String() string {
	return fmt.Sprintf("Gemini Config: %v Files:%v Cert:%v", c.Listen, c.Root, c.Cert)
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"listen":           "listen",
	"cert":             "cert",
	"key":              "key",
	"root":             "root",
	"max-conns":        "max_conns",
	"allow-proxy":      "allow_proxy",
	"log-requests":     "log_requests",
	"request-timeout":  "timeouts.request",
	"response-timeout": "timeouts.response",
	"complex-timeout":  "timeouts.complex_body",
}

// loadConfig merges, from lowest to highest precedence, defaults, the
// config file, CAPSULE_* environment variables and command line flags.
func loadConfig(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("capsule", pflag.ContinueOnError)
	configFile := fs.StringP("config", "c", "", "config file (default capsule.{yaml,toml,json} in /etc/capsule or .)")
	fs.String("listen", ":1965", "listen on host and port.  Example: hostname:1965")
	fs.String("cert", "server.crt.pem", "certificate file")
	fs.String("key", "server.key.pem", "private key associated with certificate file")
	fs.String("root", "", "directory served below /files/")
	fs.Int("max-conns", 0, "maximum simultaneous connections, 0 for no limit")
	fs.Bool("allow-proxy", false, "pass requests for other schemes to the handlers")
	fs.Bool("log-requests", false, "log every answered request")
	fs.Duration("request-timeout", 0, "time allowed for the TLS handshake and the request")
	fs.Duration("response-timeout", 0, "time allowed for writing a response")
	fs.Duration("complex-timeout", 0, "time allowed for bodies that are not text/gemini or text/plain")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetDefault("listen", ":1965")
	v.SetDefault("cert", "server.crt.pem")
	v.SetDefault("key", "server.key.pem")
	v.SetEnvPrefix("capsule")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, err
		}
	}

	if *configFile != "" {
		v.SetConfigFile(*configFile)
	} else {
		v.SetConfigName("capsule")
		v.AddConfigPath("/etc/capsule/")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if *configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if c.Cert == "" || c.Key == "" {
		return nil, errors.New("cert and key are required")
	}
	return &c, nil
}
