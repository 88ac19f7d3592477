package config

import "github.com/spf13/pflag"

type settings struct {
	locations []string
	tagName   string
	pflags    *pflag.FlagSet
}

// Option instances adjust the behavior of the configuration provider.
type Option func(*settings) error

// WithFileLocations attempts to load a configuration file from the local
// filesystem. The first valid location found is the one used.
func WithFileLocations(locations []string) Option {
	return func(s *settings) error {
		s.locations = locations
		return nil
	}
}

// WithPflags loads configuration values from command-line flags defined
// with github.com/spf13/pflag. Values explicitly set on the command line
// override file values; unset flags fall back to the file or the
// struct's zero value.
func WithPflags(set *pflag.FlagSet) Option {
	return func(s *settings) error {
		s.pflags = set
		return nil
	}
}

// WithTagName adjusts the tag identifier used when decoding configuration
// into structs. If not provided a default is chosen from the
// configuration file's extension.
func WithTagName(name string) Option {
	return func(s *settings) error {
		s.tagName = name
		return nil
	}
}
