// Command register runs event registration once and exits. It exists
// for the case where the upstream sources were not present when the
// adapter started: re-run it after they are created.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/deeplynx/mladapter/internal/adapter"
	"github.com/deeplynx/mladapter/internal/config"
	"github.com/deeplynx/mladapter/internal/logging"
	"github.com/deeplynx/mladapter/internal/register"
)

func main() {
	ctx := context.Background()

	envFile := flag.String("env", "", "Path to .env file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("Configuration loading failed: %v", err)
	}

	logger, err := logging.Init(cfg.Log.File, cfg.Log.ToStdout)
	if err != nil {
		log.Fatalf("Logging initialization failed: %v", err)
	}

	actx, err := adapter.Bootstrap(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Startup failed: %v", err)
	}

	registrar := &register.Registrar{
		Client:      actx.Client,
		Log:         logger,
		AppName:     cfg.DataSourceName,
		CallbackURL: cfg.CallbackURL(),
		Interval:    cfg.RegisterWait,
		Attempts:    cfg.RegisterAttempts,
	}

	res := registrar.Register(ctx, actx.ContainerID, cfg.DataSources)
	if !res.Satisfied {
		fmt.Fprintf(os.Stderr, "registration incomplete after %d attempts; unsatisfied: %v\n",
			res.Attempts, res.Remaining)
		os.Exit(1)
	}
	fmt.Printf("registered for events on %d source(s)\n", len(cfg.DataSources))
}
