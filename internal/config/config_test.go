package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	tdd "github.com/stretchr/testify/assert"
)

type daemonConf struct {
	Listen  string `yaml:"listen"`
	Timeout int    `yaml:"timeout"`
}

func TestFileOverriddenByFlags(t *testing.T) {
	assert := tdd.New(t)

	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	assert.NoError(os.WriteFile(file, []byte("listen: 127.0.0.1:9000\ntimeout: 30\n"), 0o600))

	flags := pflag.NewFlagSet("pubsubd", pflag.ContinueOnError)
	flags.Int("timeout", 0, "handshake timeout")
	assert.NoError(flags.Parse([]string{"--timeout=45"}))

	cfg, err := Setup(WithFileLocations([]string{file}), WithPflags(flags))
	assert.NoError(err)

	got := daemonConf{Listen: "0.0.0.0:0", Timeout: 10}
	assert.NoError(cfg.Unmarshal("", &got))
	assert.Equal("127.0.0.1:9000", got.Listen, "file value used where flag unset")
	assert.Equal(45, got.Timeout, "flag overrides file value")
}

func TestNoFileFallsBackToDefaults(t *testing.T) {
	assert := tdd.New(t)

	cfg, err := Setup(WithFileLocations([]string{filepath.Join(t.TempDir(), "missing.yaml")}))
	assert.NoError(err)

	got := daemonConf{Listen: "0.0.0.0:7500", Timeout: 10}
	assert.NoError(cfg.Unmarshal("", &got))
	assert.Equal("0.0.0.0:7500", got.Listen)
}

func TestDefaultLocationsIncludesCwd(t *testing.T) {
	assert := tdd.New(t)
	cwd, err := os.Getwd()
	assert.NoError(err)

	locations := DefaultLocations("pubsubd", "config.yaml")
	assert.Contains(locations, filepath.Join(cwd, "config.yaml"))
}
