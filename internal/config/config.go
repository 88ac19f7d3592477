// Package config assembles the daemon's runtime configuration from a
// layered set of providers: an optional file on disk, overridden by
// command-line flags.
package config

import (
	"encoding/json"
	"os"
	"path"

	lib "github.com/nil-go/konf"
	fileP "github.com/nil-go/konf/provider/file"
	pflagP "github.com/nil-go/konf/provider/pflag"
	"gopkg.in/yaml.v3"

	"go.bryk.io/pubsub/errors"
)

// Config reads configuration from the providers set up by Setup.
type Config = lib.Config

// Setup returns a ready-to-query configuration handler. Providers are
// applied in override order: configuration file, then command-line
// flags.
func Setup(opts ...Option) (*Config, error) {
	ss := new(settings)
	for _, opt := range opts {
		if err := opt(ss); err != nil {
			return nil, err
		}
	}

	var cfg *lib.Config
	if len(ss.locations) > 0 {
		loaded, err := loadFile(ss.locations, ss.tagName)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = lib.New()
	}

	if ss.pflags != nil {
		if err := cfg.Load(pflagP.New(cfg, pflagP.WithFlagSet(ss.pflags))); err != nil {
			return nil, errors.Wrap(err, "load pflag values")
		}
	}

	return cfg, nil
}

func loadFile(locations []string, tag string) (*lib.Config, error) {
	for _, cf := range locations {
		info, err := os.Stat(cf)
		if err != nil || info.IsDir() {
			continue
		}
		tagName, unmarshal, err := unmarshalerFor(path.Ext(info.Name()))
		if err != nil {
			continue
		}
		if tag != "" {
			tagName = tag
		}
		cfg := lib.New(lib.WithTagName(tagName))
		loader := fileP.New(cf, fileP.WithUnmarshal(unmarshal))
		if err := cfg.Load(loader); err == nil {
			return cfg, nil
		}
	}
	// No file found at any candidate location; fall back to a config
	// with no file-backed values, flags/defaults still apply.
	return lib.New(), nil
}

func unmarshalerFor(extension string) (tag string, fn func([]byte, any) error, err error) {
	switch extension {
	case ".yaml", ".yml":
		return "yaml", yaml.Unmarshal, nil
	case ".json":
		return "json", json.Unmarshal, nil
	}
	return "", nil, errors.New("unsupported configuration file format")
}
