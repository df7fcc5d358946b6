// Package register ensures the store delivers data_ingested events
// for each configured upstream source to this adapter's callback
// endpoint. Registration is idempotent: an already-existing matching
// subscription counts as satisfied and is never duplicated.
package register

import (
	"context"
	"strings"
	"time"

	"github.com/op/go-logging"

	"github.com/deeplynx/mladapter/internal/deeplynx"
	"github.com/deeplynx/mladapter/pkg/models"
)

// StoreClient is the slice of the store API the registrar needs.
type StoreClient interface {
	ListDataSources(ctx context.Context, containerID string) ([]deeplynx.DataSource, error)
	ListRegisteredEvents(ctx context.Context) ([]deeplynx.RegisteredEvent, error)
	CreateRegisteredEvent(ctx context.Context, ev deeplynx.RegisteredEvent) error
}

// Result reports how a registration run ended. Remaining carries the
// source names still without a subscription so callers can log them.
type Result struct {
	Satisfied bool
	Remaining []string
	Attempts  int
}

// Registrar drives the bounded retry loop of Register. It is invoked
// once at process start and is not re-entrant.
type Registrar struct {
	Client StoreClient
	Log    *logging.Logger

	// AppName and CallbackURL identify this adapter in the
	// subscriptions it creates.
	AppName     string
	CallbackURL string

	// Interval is the sleep between attempts; Attempts bounds how
	// many times the loop runs before giving up.
	Interval time.Duration
	Attempts int
}

// Register tries to reach a state where every name in desired has a
// data_ingested subscription pointing at the adapter. It returns a
// failure Result rather than an error when the attempt budget runs
// out; the only error-free way in is an empty remaining set.
func (r *Registrar) Register(ctx context.Context, containerID string, desired []string) Result {
	remaining := make(map[string]bool, len(desired))
	for _, name := range desired {
		remaining[name] = true
	}

	attempts := 0
	for len(remaining) > 0 && attempts < r.Attempts {
		attempts++

		if done := r.attempt(ctx, containerID, remaining); done {
			break
		}

		if len(remaining) == 0 {
			break
		}

		r.Log.Infof("Datasource(s) %s not registered. Next attempt in %s.",
			strings.Join(names(remaining), ", "), r.Interval)

		timer := time.NewTimer(r.Interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return Result{Remaining: names(remaining), Attempts: attempts}
		case <-timer.C:
		}
	}

	return Result{
		Satisfied: len(remaining) == 0,
		Remaining: names(remaining),
		Attempts:  attempts,
	}
}

// attempt performs one registration pass. A transport or auth failure
// on the source listing aborts the pass without inner retries; the
// outer loop picks it up on its next scheduled iteration.
func (r *Registrar) attempt(ctx context.Context, containerID string, remaining map[string]bool) bool {
	sources, err := r.Client.ListDataSources(ctx, containerID)
	if err != nil {
		r.Log.Errorf("Could not list data sources: %v", err)
		return false
	}

	for _, source := range sources {
		if !remaining[source.Name] {
			continue
		}

		// An existing matching subscription counts as satisfied; only
		// create when none is visible yet.
		if !r.subscriptionExists(ctx, source.ID, source.ContainerID) {
			ev := deeplynx.RegisteredEvent{
				AppName:      r.AppName,
				AppURL:       r.CallbackURL,
				ContainerID:  source.ContainerID,
				DataSourceID: source.ID,
				EventType:    models.EventType,
			}
			if err := r.Client.CreateRegisteredEvent(ctx, ev); err != nil {
				r.Log.Errorf("Could not register for events on %s: %v", source.Name, err)
				continue
			}
		}

		// Trust the listing, not the create call: a source name only
		// leaves the remaining set once a matching subscription is
		// visible, so a silently-failed create does not count.
		if r.subscriptionExists(ctx, source.ID, source.ContainerID) {
			delete(remaining, source.Name)
			r.Log.Infof("Registered for %s events on %s", models.EventType, source.Name)
		}

		if len(remaining) == 0 {
			return true
		}
	}
	return false
}

func (r *Registrar) subscriptionExists(ctx context.Context, dataSourceID, containerID string) bool {
	events, err := r.Client.ListRegisteredEvents(ctx)
	if err != nil {
		r.Log.Errorf("Could not list registered events: %v", err)
		return false
	}
	for _, ev := range events {
		if ev.DataSourceID == dataSourceID && ev.ContainerID == containerID {
			return true
		}
	}
	return false
}

func names(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	return out
}
