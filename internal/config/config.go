// Package config loads wxcrypt settings from wxcrypt.yaml and WXCRYPT_* variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/zing22845/go-wxcrypt/sink"
)

const (
	EnvPrefix = "WXCRYPT"
	FileName  = "wxcrypt"
)

type Config struct {
	// Key is the 64 hex digit container passphrase.
	Key      string        `mapstructure:"key"`
	XorKey   string        `mapstructure:"xor_key"`
	Profile  string        `mapstructure:"profile"`
	ZeroPage string        `mapstructure:"zero_page"`
	Padding  string        `mapstructure:"padding"`
	Log      LogConfig     `mapstructure:"log"`
	Batch    BatchConfig   `mapstructure:"batch"`
	S3       sink.S3Config `mapstructure:"s3"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type BatchConfig struct {
	Workers     int           `mapstructure:"workers"`
	MaxWorkers  int           `mapstructure:"max_workers"`
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
	LimitRate   uint64        `mapstructure:"limit_rate"`
	Verify      bool          `mapstructure:"verify"`
	Ledger      string        `mapstructure:"ledger"`
}

var defaults = map[string]interface{}{
	"key":                "",
	"xor_key":            "",
	"profile":            "auto",
	"zero_page":          "default",
	"padding":            "raw",
	"log.level":          "info",
	"log.format":         "text",
	"batch.workers":      0,
	"batch.max_workers":  16,
	"batch.task_timeout": "0s",
	"batch.limit_rate":   0,
	"batch.verify":       false,
	"batch.ledger":       "",
	"s3.endpoint":        "",
	"s3.region":          "",
	"s3.access_key":      "",
	"s3.secret_key":      "",
	"s3.bucket":          "",
	"s3.prefix":          "",
	"s3.path_style":      false,
	"s3.insecure":        false,
	"s3.max_attempts":    5,
}

// Load reads path, or wxcrypt.yaml from the usual places when path is empty.
// A missing default file is not an error, a missing explicit one is.
func Load(path string) (*Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.wxcrypt")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, errors.Wrap(err, "read config file")
		}
	} else {
		log.WithField("path", v.ConfigFileUsed()).Debug("config file loaded")
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	return c, nil
}

// ParseXorKey accepts decimal or 0x-prefixed hex. ok is false when s is empty.
func ParseXorKey(s string) (key byte, ok bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, false, errors.Wrapf(err, "xor key %q", s)
	}
	return byte(n), true, nil
}

// Apply configures the standard logrus logger.
func (c *LogConfig) Apply() error {
	level, err := log.ParseLevel(c.Level)
	if err != nil {
		return errors.Wrap(err, "log level")
	}
	log.SetLevel(level)
	switch strings.ToLower(c.Format) {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return errors.Errorf("unknown log format %q", c.Format)
	}
	log.SetOutput(os.Stderr)
	return nil
}
