package engine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestConnector(t *testing.T, handler http.HandlerFunc) *HTTPConnector {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	dial := DialHTTPConnector(HTTPConnectorConfig{
		BaseURL:   srv.URL,
		Account:   "acct_1",
		Token:     "tok_1",
		StageBase: "/api/v2/stages",
	})
	conn, err := dial(context.Background())
	require.NoError(t, err)
	return conn.(*HTTPConnector)
}

func TestHTTPConnectorQueryDecodesRows(t *testing.T) {
	c := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v2/statements", r.URL.Path)
		require.Equal(t, "Bearer tok_1", r.Header.Get("Authorization"))
		require.Equal(t, "acct_1", r.Header.Get("X-Warehouse-Account"))

		var req statementRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "SELECT action, count(*) FROM events", req.Statement)

		resp := statementResponse{
			Data:            [][]interface{}{{"dashboard.viewed", float64(42)}},
			StatementHandle: "stmt_123",
		}
		resp.ResultSetMetaData.RowType = []struct {
			Name string `json:"name"`
		}{{Name: "action"}, {Name: "count"}}
		_ = json.NewEncoder(w).Encode(resp)
	})

	result, err := c.Query(context.Background(), "SELECT action, count(*) FROM events", nil)
	require.NoError(t, err)
	require.Equal(t, 1, result.RowCount)
	require.Equal(t, "dashboard.viewed", result.Rows[0]["action"])
	require.Equal(t, "stmt_123", result.QueryID)
}

func TestHTTPConnectorQueryPropagatesErrorStatus(t *testing.T) {
	c := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("warehouse suspended"))
	})

	_, err := c.Query(context.Background(), "SELECT 1", nil)
	require.Error(t, err)
}

func TestHTTPConnectorUploadAndDownloadRoundTrip(t *testing.T) {
	var stored []byte
	c := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			require.Equal(t, "/api/v2/stages/dash/v1/manifest.json", r.URL.Path)
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			stored = body
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			_, _ = w.Write(stored)
		}
	})

	err := c.Upload(context.Background(), "dash/v1/manifest.json", []byte(`{"name":"dash"}`))
	require.NoError(t, err)

	data, err := c.Download(context.Background(), "dash/v1/manifest.json")
	require.NoError(t, err)
	require.Equal(t, `{"name":"dash"}`, string(data))
}

func TestHTTPConnectorList(t *testing.T) {
	c := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "prefix=dash/v1", r.URL.RawQuery)
		_ = json.NewEncoder(w).Encode([]StageObject{{Path: "dash/v1/manifest.json", SizeBytes: 10}})
	})

	objs, err := c.List(context.Background(), "dash/v1")
	require.NoError(t, err)
	require.Len(t, objs, 1)
	require.Equal(t, "dash/v1/manifest.json", objs[0].Path)
}
