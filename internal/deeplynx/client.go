// Package deeplynx is a thin HTTP client for the store's REST API.
// Every operation decodes the store's {isError, error, value} envelope
// and surfaces a store-reported failure as a *StoreError.
package deeplynx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/op/go-logging"
)

// Client talks to one store instance. It is stateless apart from the
// bearer token acquired by Authenticate.
type Client struct {
	baseURL   string
	apiKey    string
	apiSecret string
	token     string
	http      *http.Client
	log       *logging.Logger
}

// New creates a client for the store at baseURL. Call Authenticate
// before any other operation.
func New(baseURL, apiKey, apiSecret string, log *logging.Logger) *Client {
	return &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http:      &http.Client{Timeout: 60 * time.Second},
		log:       log,
	}
}

// Authenticate exchanges the api key/secret pair for a bearer token.
// Expiry is a duration string the store understands, e.g. "12h".
func (c *Client) Authenticate(ctx context.Context, expiry string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/oauth/token", nil)
	if err != nil {
		return fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("x-api-secret", c.apiSecret)
	req.Header.Set("x-api-expiry", expiry)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token request failed: status code %d", resp.StatusCode)
	}

	var token string
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return fmt.Errorf("failed to decode token: %w", err)
	}
	c.token = token
	return nil
}

// ListContainers lists the containers the token has access to.
func (c *Client) ListContainers(ctx context.Context) ([]Container, error) {
	var out []Container
	err := c.get(ctx, "/containers", &out)
	return out, err
}

// ListDataSources lists the data sources of a container.
func (c *Client) ListDataSources(ctx context.Context, containerID string) ([]DataSource, error) {
	var out []DataSource
	err := c.get(ctx, fmt.Sprintf("/containers/%s/import/datasources", containerID), &out)
	return out, err
}

// CreateDataSource creates a data source in a container.
func (c *Client) CreateDataSource(ctx context.Context, containerID, name, adapterType string, active bool) (DataSource, error) {
	body := DataSource{Name: name, AdapterType: adapterType, Active: active}
	var out DataSource
	err := c.post(ctx, fmt.Sprintf("/containers/%s/import/datasources", containerID), body, &out)
	return out, err
}

// ListRegisteredEvents lists every subscription known to the store.
func (c *Client) ListRegisteredEvents(ctx context.Context) ([]RegisteredEvent, error) {
	var out []RegisteredEvent
	err := c.get(ctx, "/events", &out)
	return out, err
}

// CreateRegisteredEvent asks the store to deliver events of
// ev.EventType on ev.DataSourceID to ev.AppURL.
func (c *Client) CreateRegisteredEvent(ctx context.Context, ev RegisteredEvent) error {
	return c.post(ctx, "/events", ev, nil)
}

// ListImportsData fetches the staged records of an import.
func (c *Client) ListImportsData(ctx context.Context, containerID, importID string) ([]ImportedRecord, error) {
	var out []ImportedRecord
	err := c.get(ctx, fmt.Sprintf("/containers/%s/import/imports/%s/data", containerID, importID), &out)
	return out, err
}

// CreateManualImport pushes payload into the store as a new import on
// the given data source.
func (c *Client) CreateManualImport(ctx context.Context, containerID, dataSourceID string, payload any) error {
	return c.post(ctx, fmt.Sprintf("/containers/%s/import/datasources/%s/imports", containerID, dataSourceID), payload, nil)
}

// Query runs a GraphQL query against a container and returns the raw
// result document.
func (c *Client) Query(ctx context.Context, containerID, query string) (json.RawMessage, error) {
	var out json.RawMessage
	body := map[string]string{"query": query}
	err := c.post(ctx, fmt.Sprintf("/containers/%s/query", containerID), body, &out)
	return out, err
}

// ListMetatypes lists metatypes in a container, optionally filtered
// by exact name.
func (c *Client) ListMetatypes(ctx context.Context, containerID, name string) ([]Metatype, error) {
	path := fmt.Sprintf("/containers/%s/metatypes", containerID)
	if name != "" {
		path += "?name=" + url.QueryEscape(name)
	}
	var out []Metatype
	err := c.get(ctx, path, &out)
	return out, err
}

// ValidateMetatypeProperties checks props against a metatype's schema
// and returns one message per offending field. An empty slice means
// the record is valid.
func (c *Client) ValidateMetatypeProperties(ctx context.Context, containerID, metatypeID string, props any) ([]string, error) {
	var env envelope
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/containers/%s/metatypes/%s/validate", containerID, metatypeID), props, &env); err != nil {
		return nil, err
	}
	if !env.IsError {
		return nil, nil
	}
	var msgs []string
	if err := json.Unmarshal(env.Error, &msgs); err != nil {
		// Store sometimes reports a single message rather than a list.
		return []string{string(env.Error)}, nil
	}
	return msgs, nil
}

// UploadFile uploads the file at path to a data source.
func (c *Client) UploadFile(ctx context.Context, containerID, dataSourceID, path string) (FileInfo, error) {
	var out FileInfo

	f, err := os.Open(path)
	if err != nil {
		return out, fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return out, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return out, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return out, err
	}

	endpoint := fmt.Sprintf("%s/containers/%s/import/datasources/%s/files", c.baseURL, containerID, dataSourceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return out, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return out, fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	env, err := decodeEnvelope(resp)
	if err != nil {
		return out, err
	}
	if err := env.err(); err != nil {
		return out, err
	}
	return out, json.Unmarshal(env.Value, &out)
}

// DownloadFile streams a stored file's contents.
func (c *Client) DownloadFile(ctx context.Context, containerID, fileID string) (io.ReadCloser, error) {
	endpoint := fmt.Sprintf("%s/containers/%s/files/%s/download", c.baseURL, containerID, fileID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download failed: status code %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// RetrieveFile fetches a stored file's metadata.
func (c *Client) RetrieveFile(ctx context.Context, containerID, fileID string) (FileInfo, error) {
	var out FileInfo
	err := c.get(ctx, fmt.Sprintf("/containers/%s/files/%s", containerID, fileID), &out)
	return out, err
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.call(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.call(ctx, http.MethodPost, path, body, out)
}

// call performs a request and unwraps the response envelope into out.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var env envelope
	if err := c.do(ctx, method, path, body, &env); err != nil {
		return err
	}
	if err := env.err(); err != nil {
		c.log.Errorf("%s %s: %v", method, path, err)
		return err
	}
	if out == nil || len(env.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Value, out); err != nil {
		return fmt.Errorf("failed to decode response value: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, env *envelope) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	decoded, err := decodeEnvelope(resp)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	*env = decoded
	return nil
}

func decodeEnvelope(resp *http.Response) (envelope, error) {
	var env envelope
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return env, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return env, fmt.Errorf("failed to decode response envelope: %w", err)
	}
	return env, nil
}
