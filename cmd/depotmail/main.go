package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/lineworks/depotmail/internal/app"
	"github.com/lineworks/depotmail/internal/config"
	"github.com/lineworks/depotmail/internal/statusapi"
	"github.com/lineworks/depotmail/internal/telemetry"
)

var tracer = otel.Tracer("depotmail")

func main() {
	// A .env file is a convenience for local runs, not a requirement.
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		log.Printf("Skipping .env file: %v", err)
	}

	ctx := context.Background()
	otelShutdown, err := telemetry.Setup(ctx)
	if err != nil {
		log.Fatalf("Error setting up telemetry: %v", err)
	}
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			log.Printf("Error shutting down telemetry: %v", err)
		}
	}()

	logger := telemetry.NewLogger()
	slog.SetDefault(logger)

	cliApp := &cli.App{
		Name:  "depotmail",
		Usage: "Polls depot mailboxes for operator commands and dispatches them",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "depotmail.yml",
				Usage:   "Path to the depot configuration file",
				EnvVars: []string{"DEPOTMAIL_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Start every configured depot and serve the status API",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "listen",
						Value:   ":8080",
						Usage:   "Status API listen address",
						EnvVars: []string{"DEPOTMAIL_LISTEN"},
					},
				},
				Action: runDepots(ctx, logger),
			},
			{
				Name:   "validate",
				Usage:  "Load the configuration, report problems and exit",
				Action: validateConfig(),
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		logger.Error("depotmail exited with an error", slog.Any("error", err))
		os.Exit(1)
	}
}

func runDepots(ctx context.Context, logger *slog.Logger) cli.ActionFunc {
	return func(c *cli.Context) error {
		ctx, span := tracer.Start(ctx, "runDepots")

		cfg, err := config.Load(c.String("config"))
		if err != nil {
			span.End()
			return err
		}
		span.SetAttributes(attribute.Int("depots.count", len(cfg.Depots)))

		registry := app.BuildRegistry(cfg, logger)
		registry.StartAllPollingAsync()
		span.End()

		server := statusapi.New(registry, logger)
		serveErr := make(chan error, 1)
		go func() {
			serveErr <- server.Listen(c.String("listen"))
		}()

		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		select {
		case <-ctx.Done():
			logger.Info("shutdown signal received")
		case err := <-serveErr:
			if err != nil {
				logger.Error("status API failed", slog.Any("error", err))
			}
		}

		if err := server.Shutdown(); err != nil {
			logger.Error("error shutting down status API", slog.Any("error", err))
		}
		registry.HaltAllAsync()
		registry.Wait()
		logger.Info("all depots halted")
		return nil
	}
}

func validateConfig() cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.Load(c.String("config"))
		if err != nil {
			return err
		}
		fmt.Println(config.Summary(cfg))
		return nil
	}
}
