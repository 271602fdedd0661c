package config

import (
	"context"
	"errors"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"tinyex.com/pkg/logger"
)

type Options struct {
	// File overrides the config/<service>.yaml search. It must exist.
	File string
	// Defaults are registered before reading, keyed by dotted path.
	Defaults map[string]any
}

// Load reads config/<service>.yaml (or ./<service>.yaml) into out. Env vars
// prefixed with the upper-cased service name override file values, e.g.
// EXCHANGE_ENGINE_MAILBOX_SIZE for engine.mailbox_size. A missing file is
// not an error when no explicit File is given: defaults apply.
func Load(service string, out any, opts Options) (*viper.Viper, error) {
	v := viper.New()
	for k, val := range opts.Defaults {
		v.SetDefault(k, val)
	}
	if opts.File != "" {
		v.SetConfigFile(opts.File)
	} else {
		v.SetConfigName(service)
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(strings.ToUpper(service))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if opts.File != "" || !errors.As(err, &nf) {
			return nil, err
		}
		logger.Warn(context.Background(), "config file not found, using defaults", zap.String("service", service))
	} else {
		logger.Info(context.Background(), "config loaded", zap.String("file", v.ConfigFileUsed()))
	}

	if err := v.Unmarshal(out); err != nil {
		return nil, err
	}
	return v, nil
}

// Watch re-unmarshals into out whenever the loaded file changes and then
// calls onChange. It does nothing when no file was loaded.
func Watch(v *viper.Viper, out any, onChange func()) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		ctx := context.Background()
		logger.Info(ctx, "config file changed", zap.String("file", e.Name), zap.String("op", e.Op.String()))
		if err := v.Unmarshal(out); err != nil {
			logger.Error(ctx, "config reload failed", zap.Error(err))
			return
		}
		if onChange != nil {
			onChange()
		}
	})
	v.WatchConfig()
}

// LoadAndWatch is Load followed by Watch.
func LoadAndWatch(service string, out any, opts Options, onChange func()) (*viper.Viper, error) {
	v, err := Load(service, out, opts)
	if err != nil {
		return nil, err
	}
	Watch(v, out, onChange)
	return v, nil
}
