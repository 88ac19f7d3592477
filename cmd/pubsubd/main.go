// Command pubsubd runs the broker process: it generates a fresh
// authentication key, persists the broker's address and key to a file,
// and starts relaying publications between connecting endpoints.
package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"go.bryk.io/pubsub/broker"
	"go.bryk.io/pubsub/errors"
	"go.bryk.io/pubsub/internal/config"
	"go.bryk.io/pubsub/internal/xlog"
	"go.bryk.io/pubsub/metrics"
	"go.bryk.io/pubsub/wire"
)

type daemonConf struct {
	Listen           string `yaml:"listen"`
	Network          string `yaml:"network"`
	HandshakeTimeout int    `yaml:"handshake_timeout"`
	LogLevel         string `yaml:"log_level"`
	Overwrite        bool   `yaml:"overwrite"`
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		_, _ = os.Stderr.Write(reportFailure(err))
		os.Exit(1)
	}
}

// reportFailure renders err as a single-line JSON report, matching the
// daemon's own structured log output, falling back to its plain text
// form if the error cannot be encoded.
func reportFailure(err error) []byte {
	report, encErr := errors.Report(errors.WithStack(err), errors.CodecJSON(false))
	if encErr != nil {
		return []byte(fmt.Sprintln(err))
	}
	return append(report, '\n')
}

func rootCmd() *cobra.Command {
	flags := pflag.NewFlagSet("pubsubd", pflag.ContinueOnError)
	flags.String("listen", "127.0.0.1:0", "address for the broker to listen on")
	flags.String("network", "tcp", "transport network for the broker listener")
	flags.Int("handshake-timeout", 10, "seconds allowed for a connecting endpoint to complete its handshake")
	flags.String("log-level", "info", "minimum log level: debug, info, warning, error")
	flags.Bool("overwrite", false, "overwrite the credentials file if it already exists")

	cmd := &cobra.Command{
		Use:   "pubsubd <credentials-file>",
		Short: "Run the pubsub broker process",
		Long: "pubsubd generates a broker authentication key, writes the broker's " +
			"address and key to <credentials-file>, and starts relaying publications " +
			"between connecting endpoints until interrupted.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], flags)
		},
	}
	cmd.Flags().AddFlagSet(flags)
	return cmd
}

func run(credentialsFile string, flags *pflag.FlagSet) error {
	cfg, err := config.Setup(
		config.WithFileLocations(config.DefaultLocations("pubsubd", "config.yaml")),
		config.WithPflags(flags),
	)
	if err != nil {
		return err
	}

	var dc daemonConf
	if err := cfg.Unmarshal("", &dc); err != nil {
		return err
	}

	log := xlog.WithZero(xlog.ZeroOptions{Sink: os.Stderr})
	log.SetLevel(parseLevel(dc.LogLevel))

	authkey := make([]byte, 32)
	if _, err := rand.Read(authkey); err != nil {
		return err
	}
	log.Debugf("generated broker authentication key: %s", errors.SensitiveMessage("%x", authkey))

	b := broker.New(dc.Network, dc.Listen, authkey,
		broker.WithLogger(log),
		broker.WithMetrics(metrics.NewBroker("pubsub")),
		broker.WithHandshakeTimeout(time.Duration(dc.HandshakeTimeout)*time.Second),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("shutdown signal received")
		cancel()
	}()

	started := make(chan error, 1)
	go func() { started <- b.Start(ctx) }()

	select {
	case err := <-started:
		return err
	case <-b.Ready():
	}

	creds := wire.Credentials{Network: dc.Network, Address: b.Addr(), AuthKey: authkey}
	if err := wire.WriteCredentials(credentialsFile, creds, dc.Overwrite); err != nil {
		cancel()
		<-started
		return err
	}
	log.Infof("credentials written to %s", credentialsFile)

	return <-started
}

func parseLevel(s string) xlog.Level {
	switch s {
	case "debug":
		return xlog.Debug
	case "warning":
		return xlog.Warning
	case "error":
		return xlog.Error
	default:
		return xlog.Info
	}
}
