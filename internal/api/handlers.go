// Package api contains the HTTP handlers of the adapter's webhook
// surface. The contract with the store is that an event it sent never
// produces an HTTP error code: malformed or irrelevant payloads are
// logged, swallowed, and acknowledged with a 200.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/op/go-logging"

	"github.com/deeplynx/mladapter/internal/deeplynx"
	"github.com/deeplynx/mladapter/pkg/models"
)

// EventStore is the slice of the store API the dispatcher needs.
type EventStore interface {
	ListImportsData(ctx context.Context, containerID, importID string) ([]deeplynx.ImportedRecord, error)
	CreateManualImport(ctx context.Context, containerID, dataSourceID string, payload any) error
}

// RunTrigger hands a run event to the pipeline. TryRun reports false
// when a run is already in flight.
type RunTrigger interface {
	TryRun(ctx context.Context, event models.Event) bool
}

// Handler dispatches inbound store notifications.
type Handler struct {
	Store EventStore
	Runs  RunTrigger
	Log   *logging.Logger

	ContainerID  string
	DataSourceID string

	// Identity is stamped on events as modifiedUser.
	Identity string
}

// Register mounts the handler's routes.
func (h *Handler) Register(e *echo.Echo) {
	e.POST("/events", h.HandleEvent)
	e.GET("/health", h.HandleHealth)
}

// HealthStatus is the health check response body.
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
}

// HandleHealth always reports 200 OK.
func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Service:   "ml-adapter",
	})
}

// HandleEvent processes a data_ingested notification. Only a
// non-JSON content type is an error; everything else resolves to a
// 200 with either the updated event or the generic acknowledgment.
func (h *Handler) HandleEvent(c echo.Context) error {
	contentType := c.Request().Header.Get(echo.HeaderContentType)
	if !strings.Contains(contentType, echo.MIMEApplicationJSON) {
		return c.String(http.StatusBadRequest, "Unsupported Content Type. Please use application/json")
	}

	var payload models.TriggerPayload
	if err := c.Bind(&payload); err != nil || payload.ImportID == "" {
		h.Log.Info("Ignoring event with undecodable payload")
		return h.ack(c)
	}
	h.Log.Infof("Received event for import %s", payload.ImportID)

	ctx := c.Request().Context()
	event, ok := h.lookupEvent(ctx, payload.ImportID)
	if !ok {
		return h.ack(c)
	}

	instruction, ok := event.Instruction()
	if !ok || instruction != models.InstructionRun {
		return h.ack(c)
	}
	h.Log.Infof("New run event for import %s", payload.ImportID)

	// Second lookup: the run may point at its own import, not
	// necessarily the one that carried the notification.
	runImportID := payload.ImportID
	if id, ok := event["import_id"].(string); ok && id != "" {
		runImportID = id
	}
	if _, ok := h.lookupEvent(ctx, runImportID); !ok {
		return h.ack(c)
	}

	event.MarkInProgress(h.Identity, time.Now())
	if err := h.Store.CreateManualImport(ctx, h.ContainerID, h.DataSourceID, event); err != nil {
		h.Log.Errorf("Could not push updated event to the store: %v", err)
		return h.ack(c)
	}

	if h.Runs != nil {
		// The run outlives this request and mutates its event, so it
		// gets its own context and its own copy of the map.
		if !h.Runs.TryRun(context.Background(), event.Clone()) {
			h.Log.Warningf("A run is already in progress; trigger for import %s rejected", runImportID)
		}
	}

	return c.JSON(http.StatusOK, event)
}

// lookupEvent fetches an import's staged records and extracts the
// first record's data. Every step of the chain may legitimately be
// missing; the caller acknowledges and moves on.
func (h *Handler) lookupEvent(ctx context.Context, importID string) (models.Event, bool) {
	records, err := h.Store.ListImportsData(ctx, h.ContainerID, importID)
	if err != nil {
		h.Log.Infof("Could not fetch data for import %s: %v", importID, err)
		return nil, false
	}
	if len(records) == 0 || records[0].Data == nil {
		h.Log.Infof("Import %s carries no event data", importID)
		return nil, false
	}
	return records[0].Data, true
}

func (h *Handler) ack(c echo.Context) error {
	return c.JSON(http.StatusOK, models.Ack{Received: true})
}
