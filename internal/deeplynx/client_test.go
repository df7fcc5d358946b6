package deeplynx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deeplynx/mladapter/internal/logging"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(server.URL, "key", "secret", logging.Discard()), server
}

func respond(t *testing.T, w http.ResponseWriter, value any) {
	t.Helper()
	raw, err := json.Marshal(value)
	require.NoError(t, err)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"isError":false,"value":` + string(raw) + `}`))
}

func TestAuthenticateSendsKeyHeadersAndKeepsToken(t *testing.T) {
	var gotPath string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, "secret", r.Header.Get("x-api-secret"))
		assert.Equal(t, "12h", r.Header.Get("x-api-expiry"))
		_, _ = w.Write([]byte(`"bearer-token-123"`))
	})

	require.NoError(t, client.Authenticate(context.Background(), "12h"))
	assert.Equal(t, "/oauth/token", gotPath)
	assert.Equal(t, "bearer-token-123", client.token)
}

func TestAuthenticateFailsOnBadStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	assert.Error(t, client.Authenticate(context.Background(), "12h"))
}

func TestListDataSourcesDecodesEnvelope(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/containers/c-1/import/datasources", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		respond(t, w, []DataSource{{ID: "ds-1", ContainerID: "c-1", Name: "A"}})
	})
	client.token = "tok"

	sources, err := client.ListDataSources(context.Background(), "c-1")
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "A", sources[0].Name)
}

func TestStoreReportedErrorSurfacesAsStoreError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"isError":true,"error":"container not found"}`))
	})

	_, err := client.ListDataSources(context.Background(), "nope")
	require.Error(t, err)
	var storeErr *StoreError
	assert.ErrorAs(t, err, &storeErr)
}

func TestCreateRegisteredEventPostsSubscription(t *testing.T) {
	var got RegisteredEvent
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/events", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"isError":false}`))
	})

	ev := RegisteredEvent{
		AppName:      "MLAdapter",
		AppURL:       "http://127.0.0.1:8080/events",
		ContainerID:  "c-1",
		DataSourceID: "ds-1",
		EventType:    "data_ingested",
	}
	require.NoError(t, client.CreateRegisteredEvent(context.Background(), ev))
	assert.Equal(t, ev, got)
}

func TestListImportsDataExtractsRecords(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/containers/c-1/import/imports/42/data", r.URL.Path)
		_, _ = w.Write([]byte(`{"isError":false,"value":[{"id":"1","data":{"instruction":"run"}}]}`))
	})

	records, err := client.ListImportsData(context.Background(), "c-1", "42")
	require.NoError(t, err)
	require.Len(t, records, 1)
	instruction, ok := records[0].Data.Instruction()
	require.True(t, ok)
	assert.Equal(t, "run", instruction)
}

func TestCreateManualImportPostsPayload(t *testing.T) {
	var got []map[string]any
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/containers/c-1/import/datasources/ds-1/imports", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"isError":false}`))
	})

	payload := []map[string]any{{"node": "reactor-3"}}
	require.NoError(t, client.CreateManualImport(context.Background(), "c-1", "ds-1", payload))
	require.Len(t, got, 1)
	assert.Equal(t, "reactor-3", got[0]["node"])
}

func TestQuerySendsGraphQLDocument(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/containers/c-1/query", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "{ nodes { id } }", body["query"])
		_, _ = w.Write([]byte(`{"isError":false,"value":[{"id":"n-1"}]}`))
	})

	raw, err := client.Query(context.Background(), "c-1", "{ nodes { id } }")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"n-1"}]`, string(raw))
}

func TestValidateMetatypePropertiesCollectsMessages(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/containers/c-1/metatypes/m-1/validate", r.URL.Path)
		_, _ = w.Write([]byte(`{"isError":true,"error":["value is required","node is required"]}`))
	})

	msgs, err := client.ValidateMetatypeProperties(context.Background(), "c-1", "m-1", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, []string{"value is required", "node is required"}, msgs)
}

func TestValidateMetatypePropertiesValidRecord(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"isError":false,"value":{}}`))
	})

	msgs, err := client.ValidateMetatypeProperties(context.Background(), "c-1", "m-1", map[string]any{"node": "x"})
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestTransportFailureIsNotAStoreError(t *testing.T) {
	client := New("http://127.0.0.1:1", "key", "secret", logging.Discard())

	_, err := client.ListDataSources(context.Background(), "c-1")
	require.Error(t, err)
	var storeErr *StoreError
	assert.NotErrorAs(t, err, &storeErr)
}
