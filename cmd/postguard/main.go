package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"postguard/internal/conf"
	"postguard/internal/worker"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name is the name of the compiled software.
	Name = "postguard"
	// Version is the version of the compiled software.
	Version string

	flagconf string

	id, _ = os.Hostname()
)

// exitCode lets a command choose the process exit status without printing
// an error.
type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var code exitCode
		if errors.As(err, &code) {
			os.Exit(int(code))
		}
		fmt.Fprintf(os.Stderr, "postguard: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           Name,
		Short:         "Post ingestion service with image and video moderation",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}
	cmd.PersistentFlags().StringVarP(&flagconf, "conf", "c", "configs/config.yaml", "config path, eg: -conf config.yaml")
	cmd.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
		newMigrateCmd(),
		newCheckCmd(),
	)
	return cmd
}

func newLogger() log.Logger {
	return log.With(log.NewStdLogger(os.Stdout),
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
		"service.id", id,
		"service.name", Name,
		"service.version", Version,
		"trace.id", "",
	)
}

func loadConfig(logger log.Logger) (*conf.Bootstrap, error) {
	return conf.Load(flagconf, logger)
}

func newApp(logger log.Logger, hs *khttp.Server) *kratos.App {
	return kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Metadata(map[string]string{}),
		kratos.Logger(logger),
		kratos.Server(hs),
	)
}

func newWorkerApp(logger log.Logger, ws *worker.Server) *kratos.App {
	return kratos.New(
		kratos.ID(id),
		kratos.Name(Name+"-worker"),
		kratos.Version(Version),
		kratos.Logger(logger),
		kratos.Server(ws),
	)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger()
			bc, err := loadConfig(logger)
			if err != nil {
				return err
			}
			app, cleanup, err := wireApp(bc.Server, bc.Auth, bc.Data, bc.Moderation, bc.Storage, bc.Queue, logger)
			if err != nil {
				return err
			}
			defer cleanup()
			return app.Run()
		},
	}
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the background notification worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger()
			bc, err := loadConfig(logger)
			if err != nil {
				return err
			}
			app, cleanup, err := wireWorker(bc.Data, bc.Queue, logger)
			if err != nil {
				return err
			}
			defer cleanup()
			return app.Run()
		},
	}
}
