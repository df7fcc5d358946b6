package deeplynx

import (
	"encoding/json"
	"fmt"

	"github.com/deeplynx/mladapter/pkg/models"
)

// envelope is the wrapper every store response comes in.
type envelope struct {
	IsError bool            `json:"isError"`
	Error   json.RawMessage `json:"error,omitempty"`
	Value   json.RawMessage `json:"value"`
}

// err converts the envelope's error payload into a Go error.
func (e envelope) err() error {
	if !e.IsError {
		return nil
	}
	return &StoreError{Message: string(e.Error)}
}

// StoreError is an error the store itself reported, as opposed to a
// transport failure reaching it.
type StoreError struct {
	Message string
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store reported error: %s", e.Message)
}

// Container is a store container.
type Container struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DataSource is an upstream data producer registered with the store.
type DataSource struct {
	ID          string `json:"id"`
	ContainerID string `json:"container_id"`
	Name        string `json:"name"`
	AdapterType string `json:"adapter_type,omitempty"`
	Active      bool   `json:"active,omitempty"`
}

// RegisteredEvent binds a callback URL to a (source, container) pair
// for a given event type.
type RegisteredEvent struct {
	AppName      string `json:"app_name"`
	AppURL       string `json:"app_url"`
	ContainerID  string `json:"container_id"`
	DataSourceID string `json:"data_source_id"`
	EventType    string `json:"event_type"`
}

// ImportedRecord is one record of an import's staged data.
type ImportedRecord struct {
	ID   string       `json:"id"`
	Data models.Event `json:"data"`
}

// Metatype identifies a record class within a container.
type Metatype struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FileInfo describes a file held by the store.
type FileInfo struct {
	ID       string `json:"id"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
}
