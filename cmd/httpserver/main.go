package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ruteri/push-relay/api/pushhandler"
	"github.com/ruteri/push-relay/cmd/flags"
	"github.com/ruteri/push-relay/common"
	"github.com/ruteri/push-relay/httpserver"
	"github.com/ruteri/push-relay/metrics"
	"github.com/ruteri/push-relay/observability"
	"github.com/ruteri/push-relay/platform"
	"github.com/ruteri/push-relay/storage"
	"github.com/urfave/cli/v2"
)

var serverFlags = []cli.Flag{
	flags.CredentialsFlag,
	flags.EnvFileFlag,
	flags.UpstreamTimeoutFlag,
	&cli.StringSliceFlag{
		Name:    "store",
		Value:   cli.NewStringSlice(storage.DefaultStoreURI),
		Usage:   "registration store: firestore://collection, redis://host:port/db or memory://. Repeat to mirror writes",
		EnvVars: []string{"STORE_URI"},
	},
	&cli.BoolFlag{
		Name:    "prune-invalid-tokens",
		Value:   false,
		Usage:   "delete registrations whose token FCM reports as unregistered",
		EnvVars: []string{"PRUNE_INVALID_TOKENS"},
	},
	&cli.BoolFlag{
		Name:    "dry-run",
		Value:   false,
		Usage:   "validate messages with FCM without delivering them",
		EnvVars: []string{"FCM_DRY_RUN"},
	},
	&cli.StringFlag{
		Name:    "notification-title",
		Value:   pushhandler.DefaultTitle,
		Usage:   "title of broadcast notifications",
		EnvVars: []string{"NOTIFICATION_TITLE"},
	},
	&cli.StringFlag{
		Name:    "default-message",
		Value:   pushhandler.DefaultBody,
		Usage:   "body of broadcast notifications when the request carries none",
		EnvVars: []string{"DEFAULT_MESSAGE"},
	},
	&cli.StringFlag{
		Name:    "click-action",
		Value:   pushhandler.DefaultClickAction,
		Usage:   "click_action delivered in the data payload, empty to omit",
		EnvVars: []string{"CLICK_ACTION"},
	},
	&cli.StringFlag{
		Name:    "notification-icon",
		Usage:   "icon URL of web and android notifications",
		EnvVars: []string{"NOTIFICATION_ICON"},
	},
	&cli.StringFlag{
		Name:    "otlp-endpoint",
		Usage:   "OTLP/HTTP trace collector as host:port or base URL (http://collector:4318), tracing is off when empty",
		EnvVars: []string{"OTEL_EXPORTER_OTLP_ENDPOINT"},
	},
	&cli.BoolFlag{
		Name:    "otlp-insecure",
		Value:   false,
		Usage:   "use plain HTTP for the OTLP exporter",
		EnvVars: []string{"OTLP_INSECURE"},
	},
	&cli.Float64Flag{
		Name:    "trace-sample-rate",
		Value:   1,
		Usage:   "fraction of requests traced, between 0 (none) and 1",
		EnvVars: []string{"TRACE_SAMPLE_RATE"},
	},
}

func main() {
	app := &cli.App{
		Name:  "push-relay",
		Usage: "Register device tokens and broadcast push notifications through Firebase",
		Flags: append(serverFlags, flags.CommonFlags...),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			if err := flags.LoadEnvFile(cCtx.String(flags.EnvFileFlag.Name), logger); err != nil {
				logger.Error("Failed to load env file", "err", err)
				return err
			}

			ctx := context.Background()
			shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
				ServiceName:    cCtx.String(flags.LogServiceFlag.Name),
				ServiceVersion: common.Version,
				OTLPEndpoint:   cCtx.String("otlp-endpoint"),
				Insecure:       cCtx.Bool("otlp-insecure"),
				SampleRate:     cCtx.Float64("trace-sample-rate"),
			}, logger)
			if err != nil {
				logger.Error("Failed to set up tracing", "err", err)
				return err
			}

			// A failed bootstrap is served as 503 rather than exiting, so the
			// misconfiguration stays visible on /readyz and in responses.
			bootstrapper := platform.NewBootstrapper(platform.Config{
				CredentialSource: cCtx.String(flags.CredentialsFlag.Name),
				StoreURIs:        cCtx.StringSlice("store"),
				DryRun:           cCtx.Bool("dry-run"),
			}, logger)
			handle := bootstrapper.Handle(ctx)

			metricsSrv, err := metrics.New(common.PackageName, cCtx.String(flags.MetricsAddrFlag.Name))
			if err != nil {
				logger.Error("Failed to create metrics server", "err", err)
				return err
			}

			handler := pushhandler.NewHandler(handle, pushhandler.Config{
				Title:              cCtx.String("notification-title"),
				DefaultBody:        cCtx.String("default-message"),
				ClickAction:        cCtx.String("click-action"),
				Icon:               cCtx.String("notification-icon"),
				UpstreamTimeout:    cCtx.Duration(flags.UpstreamTimeoutFlag.Name),
				PruneInvalidTokens: cCtx.Bool("prune-invalid-tokens"),
			}, metricsSrv.Metrics, logger)

			cfg := flags.ConfigureServer(cCtx, logger)
			server, err := httpserver.New(cfg, handle, metricsSrv, handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			logger.Info("Starting server")
			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()

			if client, err := handle.Client(); err == nil {
				if err := client.Close(); err != nil {
					logger.Warn("Failed to close platform clients", "err", err)
				}
			}

			tracingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(tracingCtx); err != nil {
				logger.Warn("Failed to flush traces", "err", err)
			}

			logger.Info("Server shutdown complete")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
