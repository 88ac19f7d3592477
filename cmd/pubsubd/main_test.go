package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	tdd "github.com/stretchr/testify/assert"

	"go.bryk.io/pubsub/errors"
	"go.bryk.io/pubsub/internal/xlog"
	"go.bryk.io/pubsub/wire"
)

func TestParseLevel(t *testing.T) {
	assert := tdd.New(t)
	assert.Equal(xlog.Debug, parseLevel("debug"))
	assert.Equal(xlog.Warning, parseLevel("warning"))
	assert.Equal(xlog.Error, parseLevel("error"))
	assert.Equal(xlog.Info, parseLevel("info"))
	assert.Equal(xlog.Info, parseLevel("nonsense"))
}

func TestReportFailureProducesJSON(t *testing.T) {
	assert := tdd.New(t)

	out := reportFailure(errors.New("listen failed"))
	var decoded map[string]any
	assert.NoError(json.Unmarshal(out, &decoded))
	assert.Equal("listen failed", decoded["error"])
}

func TestRootCmdRequiresCredentialsFileArgument(t *testing.T) {
	assert := tdd.New(t)
	cmd := rootCmd()
	cmd.SetArgs([]string{})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	assert.Error(cmd.Execute())
}

// TestRunWritesCredentialsAndServes starts the daemon's own run() against
// an ephemeral port and confirms it persists broker credentials an
// endpoint can then use to connect.
func TestRunWritesCredentialsAndServes(t *testing.T) {
	assert := tdd.New(t)

	dir := t.TempDir()
	credsFile := filepath.Join(dir, "broker.dat")

	cmd := rootCmd()
	cmd.SetArgs([]string{
		"--listen=127.0.0.1:0",
		"--network=tcp",
		"--log-level=error",
		credsFile,
	})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(context.Background()) }()

	var creds wire.Credentials
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c, err := wire.ReadCredentials(credsFile); err == nil {
			creds = c
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.NotEmpty(creds.Address, "credentials file never appeared")
	assert.NotEmpty(creds.AuthKey)

	conn, err := wire.Dial(creds.Network, creds.Address, creds.AuthKey)
	assert.NoError(err)
	if conn != nil {
		_ = conn.Close()
	}

	_ = os.Remove(credsFile) // the running daemon holds no further file handles open
}
