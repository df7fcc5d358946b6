// Package adapter builds the startup context: the configuration, the
// authenticated store client, and the container and data source ids
// everything downstream works against. The context is constructed
// once in main and passed by reference; nothing here is process-global
// state.
package adapter

import (
	"context"
	"fmt"

	"github.com/op/go-logging"

	"github.com/deeplynx/mladapter/internal/config"
	"github.com/deeplynx/mladapter/internal/deeplynx"
)

// AdapterType is the data source adapter type this adapter registers
// itself under.
const AdapterType = "standard"

// Context aggregates what the dispatcher, registrar and pipeline
// driver need.
type Context struct {
	Config *config.Config
	Log    *logging.Logger
	Client *deeplynx.Client

	// ContainerID is the id of the configured container.
	ContainerID string

	// DataSourceID is the id of the adapter's own data source inside
	// that container, created at bootstrap when absent.
	DataSourceID string
}

// Bootstrap authenticates against the store, resolves the configured
// container by name, and finds or creates the adapter's data source.
func Bootstrap(ctx context.Context, cfg *config.Config, log *logging.Logger) (*Context, error) {
	client := deeplynx.New(cfg.DeepLynx.URL, cfg.DeepLynx.APIKey, cfg.DeepLynx.APISecret, log)
	if err := client.Authenticate(ctx, cfg.DeepLynx.TokenExpiry); err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	containerID, err := findContainer(ctx, client, cfg.ContainerName)
	if err != nil {
		return nil, err
	}

	dataSourceID, err := findOrCreateDataSource(ctx, client, containerID, cfg.DataSourceName)
	if err != nil {
		return nil, err
	}

	log.Infof("Connected to store: container %s (%s), data source %s (%s)",
		cfg.ContainerName, containerID, cfg.DataSourceName, dataSourceID)

	return &Context{
		Config:       cfg,
		Log:          log,
		Client:       client,
		ContainerID:  containerID,
		DataSourceID: dataSourceID,
	}, nil
}

func findContainer(ctx context.Context, client *deeplynx.Client, name string) (string, error) {
	containers, err := client.ListContainers(ctx)
	if err != nil {
		return "", fmt.Errorf("could not list containers: %w", err)
	}
	for _, c := range containers {
		if c.Name == name {
			return c.ID, nil
		}
	}
	return "", fmt.Errorf("container %q does not exist in the store", name)
}

func findOrCreateDataSource(ctx context.Context, client *deeplynx.Client, containerID, name string) (string, error) {
	sources, err := client.ListDataSources(ctx, containerID)
	if err != nil {
		return "", fmt.Errorf("could not list data sources: %w", err)
	}
	for _, s := range sources {
		if s.Name == name {
			return s.ID, nil
		}
	}

	created, err := client.CreateDataSource(ctx, containerID, name, AdapterType, true)
	if err != nil {
		return "", fmt.Errorf("could not create data source %q: %w", name, err)
	}
	return created.ID, nil
}
