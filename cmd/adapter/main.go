package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/deeplynx/mladapter/internal/adapter"
	"github.com/deeplynx/mladapter/internal/api"
	"github.com/deeplynx/mladapter/internal/config"
	"github.com/deeplynx/mladapter/internal/logging"
	"github.com/deeplynx/mladapter/internal/notebook"
	"github.com/deeplynx/mladapter/internal/pipeline"
	"github.com/deeplynx/mladapter/internal/register"
	adaptertls "github.com/deeplynx/mladapter/internal/tls"
	"github.com/deeplynx/mladapter/internal/watch"
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
	fmt.Printf("Application started. Logging to file %s\n", cfg.Log.File)

	actx, err := adapter.Bootstrap(ctx, cfg, logger)
	if err != nil {
		logger.Errorf("Startup failed: %v", err)
		log.Fatalf("Startup failed: %v", err)
	}

	// Registration runs to completion before the server comes up; a
	// failed run is logged, not fatal, and can be retried with the
	// register utility once the upstream sources exist.
	registrar := &register.Registrar{
		Client:      actx.Client,
		Log:         logger,
		AppName:     cfg.DataSourceName,
		CallbackURL: cfg.CallbackURL(),
		Interval:    cfg.RegisterWait,
		Attempts:    cfg.RegisterAttempts,
	}
	if res := registrar.Register(ctx, actx.ContainerID, cfg.DataSources); !res.Satisfied {
		logger.Errorf("Event registration incomplete after %d attempts; unsatisfied: %v",
			res.Attempts, res.Remaining)
	}

	driver := newDriver(actx)
	handler := &api.Handler{
		Store:        actx.Client,
		Runs:         driver,
		Log:          logger,
		ContainerID:  actx.ContainerID,
		DataSourceID: actx.DataSourceID,
		Identity:     cfg.DataSourceName,
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	handler.Register(e)

	addr := fmt.Sprintf(":%d", cfg.Callback.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s (tls: %v)", addr, cfg.TLS.Enable)
		if cfg.TLS.Enable {
			if err := adaptertls.EnsureCert(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames); err != nil {
				logger.Errorf("Could not prepare TLS certificate: %v", err)
			}
			serverErrors <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			serverErrors <- server.ListenAndServe()
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			logger.Errorf("Server error: %v", err)
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-shutdown:
		logger.Infof("Shutdown signal received: %v", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Errorf("Server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				logger.Errorf("Server close error: %v", err)
			}
		}
		logger.Info("Server stopped gracefully")
	}
}

func newDriver(actx *adapter.Context) *pipeline.Driver {
	cfg := actx.Config

	// Intervals were validated positive at config load.
	queryWatcher, err := watch.New(cfg.QueryFileWait)
	if err != nil {
		log.Fatalf("Bad query watch interval: %v", err)
	}
	importWatcher, err := watch.New(cfg.ImportFileWait)
	if err != nil {
		log.Fatalf("Bad import watch interval: %v", err)
	}

	driver := &pipeline.Driver{
		Store:         actx.Client,
		Log:           actx.Log,
		ContainerID:   actx.ContainerID,
		DataSourceID:  actx.DataSourceID,
		Identity:      cfg.DataSourceName,
		QueryText:     cfg.GraphQLQuery,
		QueryWatcher:  queryWatcher,
		ImportWatcher: importWatcher,
		QueryPath:     filepath.Join(cfg.DataDir, cfg.QueryFileName),
		ImportPath:    filepath.Join(cfg.DataDir, cfg.ImportFileName),
	}
	if cfg.Notebook.Path != "" {
		driver.Notebook = &notebook.Runner{Kernel: cfg.Notebook.Kernel}
		driver.NotebookPath = cfg.Notebook.Path
	}
	return driver
}
