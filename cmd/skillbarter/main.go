// Command skillbarter runs the skill barter web server and its maintenance
// tasks.
//
//	skillbarter [serve]                          run the HTTP server (default)
//	skillbarter seed --file configs/seed.yaml    load the skill catalogue
//	skillbarter seed --demo-users 20             ...and add demo users
//
// Every command reads its configuration the same way: built-in defaults,
// then SKILLBARTER_* environment variables (and .env), then --config.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/skillbarter/internal/auth"
	"github.com/sakif/skillbarter/internal/config"
	"github.com/sakif/skillbarter/internal/seed"
	"github.com/sakif/skillbarter/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "skillbarter",
		Short:         "Trade skills with people nearby",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(configPath)
		},
	}
	root.RunE = serve.RunE

	var seedFile string
	var demoUsers int
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Load skills and categories, optionally with demo users",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd.Context(), configPath, seedFile, demoUsers)
		},
	}
	seedCmd.Flags().StringVar(&seedFile, "file", "configs/seed.yaml", "seed catalogue")
	seedCmd.Flags().IntVar(&demoUsers, "demo-users", 0, "number of demo users to create")

	root.AddCommand(serve, seedCmd)
	return root
}

// setup loads and checks the configuration and builds the logger. Failures
// are logged here, since cobra is told not to print them.
func setup(configPath string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		return nil, nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", slog.String("error", err.Error()))
		return nil, nil, err
	}
	if cfg.JWTSecret == config.InsecureJWTSecret {
		logger.Warn("using the development JWT secret; set SKILLBARTER_JWT_SECRET")
	}
	return cfg, logger, nil
}

func runServe(configPath string) error {
	cfg, logger, err := setup(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	store, err := server.OpenStore(ctx, cfg)
	cancel()
	if err != nil {
		logger.Error("failed to open store", slog.String("error", err.Error()))
		return err
	}

	srv, err := server.New(cfg, store, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		return err
	}

	// Start blocks until SIGINT or SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		return err
	}
	return nil
}

func runSeed(ctx context.Context, configPath, file string, demoUsers int) error {
	cfg, logger, err := setup(configPath)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	catalogue, err := seed.Load(file)
	if err != nil {
		logger.Error("failed to read seed file", slog.String("error", err.Error()))
		return err
	}

	store, err := server.OpenStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open store", slog.String("error", err.Error()))
		return err
	}
	defer store.Close()

	skills, err := seed.Apply(ctx, store, catalogue, logger)
	if err != nil {
		logger.Error("seeding failed", slog.String("error", err.Error()))
		return err
	}

	if demoUsers > 0 {
		if _, err := seed.DemoUsers(ctx, store, auth.NewHasher(), skills, demoUsers, logger); err != nil {
			logger.Error("creating demo users failed", slog.String("error", err.Error()))
			return err
		}
		fmt.Fprintf(os.Stdout, "demo users share the password %q\n", seed.DemoPassword)
	}
	return nil
}
