// Package pipeline sequences a full run: query the store, wait for
// the query artifact, run the ML stage, wait for the import-ready
// artifact, validate and import the results, and signal completion.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/op/go-logging"

	"github.com/deeplynx/mladapter/internal/dataset"
	"github.com/deeplynx/mladapter/internal/deeplynx"
	"github.com/deeplynx/mladapter/internal/watch"
	"github.com/deeplynx/mladapter/pkg/models"
)

// StoreClient is the slice of the store API the driver needs.
type StoreClient interface {
	Query(ctx context.Context, containerID, query string) (json.RawMessage, error)
	CreateManualImport(ctx context.Context, containerID, dataSourceID string, payload any) error
	ListMetatypes(ctx context.Context, containerID, name string) ([]deeplynx.Metatype, error)
	ValidateMetatypeProperties(ctx context.Context, containerID, metatypeID string, props any) ([]string, error)
}

// NotebookRunner runs the external ML stage and blocks until it
// exits.
type NotebookRunner interface {
	Run(ctx context.Context, path string) error
}

// Driver owns one pipeline run at a time. The artifact paths are
// shared with the externally-run ML stage, so runs are serialized
// behind the run lock: a trigger arriving while a run is in flight is
// rejected, not interleaved.
type Driver struct {
	Store StoreClient
	Log   *logging.Logger

	ContainerID  string
	DataSourceID string

	// Identity is stamped on events as modifiedUser.
	Identity string

	// QueryText is the GraphQL document sent to the store at the top
	// of each run.
	QueryText string

	QueryWatcher  *watch.Watcher
	ImportWatcher *watch.Watcher
	QueryPath     string
	ImportPath    string

	// Notebook and NotebookPath are optional; when unset the ML stage
	// is assumed to run out of band.
	Notebook     NotebookRunner
	NotebookPath string

	mu sync.Mutex
}

// TryRun starts a run in the background unless one is already in
// flight, in which case it reports false and does nothing. The event,
// when non-nil, gets the completion signal at the end of the run.
func (d *Driver) TryRun(ctx context.Context, event models.Event) bool {
	if !d.mu.TryLock() {
		return false
	}
	go func() {
		defer d.mu.Unlock()
		d.run(ctx, event)
	}()
	return true
}

// Run executes the pipeline synchronously, waiting for any in-flight
// run to finish first.
func (d *Driver) Run(ctx context.Context, event models.Event) *Summary {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.run(ctx, event)
}

func (d *Driver) run(ctx context.Context, event models.Event) *Summary {
	summary := NewSummary()
	summary.Start()
	d.Log.Infof("Run %s started", summary.RunID)

	d.query(ctx, summary)

	if summary.HasErrors() {
		return d.finish(summary)
	}

	if res := d.QueryWatcher.Wait(ctx, d.QueryPath); res.Status != watch.Found {
		summary.AddError("query artifact %s %s after %s", filepath.Base(d.QueryPath), res.Status, res.Elapsed)
		return d.finish(summary)
	}
	d.Log.Infof("Run %s: found %s", summary.RunID, filepath.Base(d.QueryPath))

	if d.Notebook != nil && d.NotebookPath != "" {
		if err := d.Notebook.Run(ctx, d.NotebookPath); err != nil {
			summary.AddError("ML stage failed: %v", err)
			return d.finish(summary)
		}
		d.Log.Infof("Run %s: notebook %s finished", summary.RunID, filepath.Base(d.NotebookPath))
	}

	if res := d.ImportWatcher.Wait(ctx, d.ImportPath); res.Status != watch.Found {
		summary.AddError("import artifact %s %s after %s", filepath.Base(d.ImportPath), res.Status, res.Elapsed)
		return d.finish(summary)
	}
	d.Log.Infof("Run %s: found %s", summary.RunID, filepath.Base(d.ImportPath))

	d.importResults(ctx, summary)
	if summary.HasErrors() {
		return d.finish(summary)
	}

	if event != nil {
		if err := d.Complete(ctx, event); err != nil {
			summary.AddError("could not send completion event: %v", err)
		}
	}

	return d.finish(summary)
}

func (d *Driver) finish(summary *Summary) *Summary {
	summary.Finish()
	if summary.Succeeded() {
		d.Log.Infof("Run %s complete in %s. Output data sent.", summary.RunID, summary.RunTime())
	} else {
		d.Log.Errorf("Run %s failed after %s: %s", summary.RunID, summary.RunTime(), summary.AllErrors())
	}
	return summary
}

// query runs the configured GraphQL query and writes whatever records
// come back to the query CSV. When the store's own query mechanism
// produces the artifact instead, the write is a no-op and the watcher
// still decides success.
func (d *Driver) query(ctx context.Context, summary *Summary) {
	if d.QueryText == "" {
		return
	}
	raw, err := d.Store.Query(ctx, d.ContainerID, d.QueryText)
	if err != nil {
		summary.AddError("query failed: %v", err)
		return
	}

	header, rows := tabulate(raw)
	if len(rows) == 0 {
		return
	}
	if err := dataset.WriteCSV(d.QueryPath, header, rows); err != nil {
		summary.AddError("could not write %s: %v", d.QueryPath, err)
	}
}

// importResults reads the import-ready file, validates every record
// against its metatype schema, and pushes the whole batch as one
// manual import. Any invalid record aborts the import; it is never
// partially applied.
func (d *Driver) importResults(ctx context.Context, summary *Summary) {
	grouped, err := dataset.ReadGrouped(d.ImportPath)
	if err != nil {
		summary.AddError("could not read import file: %v", err)
		return
	}

	for metatype, records := range grouped {
		metatypes, err := d.Store.ListMetatypes(ctx, d.ContainerID, metatype)
		if err != nil {
			summary.AddError("could not look up metatype %s: %v", metatype, err)
			continue
		}
		if len(metatypes) == 0 {
			summary.AddError("metatype %s does not exist in container %s", metatype, d.ContainerID)
			continue
		}
		for i, record := range records {
			msgs, err := d.Store.ValidateMetatypeProperties(ctx, d.ContainerID, metatypes[0].ID, record)
			if err != nil {
				summary.AddError("could not validate %s record %d: %v", metatype, i, err)
				continue
			}
			for _, msg := range msgs {
				summary.AddError("%s record %d: %s", metatype, i, msg)
			}
		}
	}
	if summary.HasErrors() {
		return
	}

	if err := d.Store.CreateManualImport(ctx, d.ContainerID, d.DataSourceID, grouped.Flatten()); err != nil {
		summary.AddError("import failed: %v", err)
		return
	}
	d.Log.Info("Successfully imported data to the store")
}

// Complete pushes the completion transition of an event back into the
// store as a manual import.
func (d *Driver) Complete(ctx context.Context, event models.Event) error {
	event.MarkComplete(time.Now())
	if err := d.Store.CreateManualImport(ctx, d.ContainerID, d.DataSourceID, event); err != nil {
		return fmt.Errorf("completion import failed: %w", err)
	}
	d.Log.Info("Completion event sent")
	return nil
}

// tabulate flattens a GraphQL result document into CSV header and
// rows. It accepts either a bare record list or the usual
// {"nodes": [...]} shape; anything else yields no rows.
func tabulate(raw json.RawMessage) ([]string, [][]string) {
	var records []map[string]any
	if err := json.Unmarshal(raw, &records); err != nil {
		var wrapped map[string][]map[string]any
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, nil
		}
		records = wrapped["nodes"]
	}
	if len(records) == 0 {
		return nil, nil
	}

	seen := map[string]bool{}
	var header []string
	for _, rec := range records {
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				header = append(header, k)
			}
		}
	}
	sort.Strings(header)

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		row := make([]string, len(header))
		for i, k := range header {
			if v, ok := rec[k]; ok {
				row[i] = fmt.Sprint(v)
			}
		}
		rows = append(rows, row)
	}
	return header, rows
}
