/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Tier:        L2
Logic:       Concrete Connector backed by the warehouse's SQL REST
             API: JWT-bearer HTTP client, pooled transport, JSON
             statement submission. The statement response is
             decoded as returned; asynchronous completion is not
             polled for.
Context:     Mirrors the gateway's provider connectors — same
             pooled-transport, marshal/POST/classify-status shape,
             aimed at a SQL-over-HTTP endpoint instead of a chat
             completion endpoint.
Suitability: L2 model sufficient for a well-documented REST API.
──────────────────────────────────────────────────────────────
*/

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPConnectorConfig configures an HTTPConnector.
type HTTPConnectorConfig struct {
	BaseURL    string
	Account    string
	Token      string
	StageBase  string // REST path prefix for stage put/list/get
	Timeout    time.Duration
}

// HTTPConnector drives the warehouse's SQL REST API (statements endpoint
// plus a stage-file surface) instead of holding a native driver connection.
// One HTTPConnector is one Connector the Pool checks out and returns.
type HTTPConnector struct {
	cfg    HTTPConnectorConfig
	client *http.Client
}

// DialHTTPConnector is an engine.Dialer that opens a fresh HTTPConnector;
// plug it into NewPool to back the Adapter with real warehouse calls.
func DialHTTPConnector(cfg HTTPConnectorConfig) Dialer {
	return func(ctx context.Context) (Connector, error) {
		if cfg.Timeout == 0 {
			cfg.Timeout = 60 * time.Second
		}
		transport := &http.Transport{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		}
		c := &HTTPConnector{
			cfg:    cfg,
			client: &http.Client{Transport: transport, Timeout: cfg.Timeout},
		}
		return c, nil
	}
}

type statementRequest struct {
	Statement string        `json:"statement"`
	Bindings  []interface{} `json:"bindings,omitempty"`
}

type statementResponse struct {
	Data        [][]interface{} `json:"data"`
	ResultSetMetaData struct {
		RowType []struct {
			Name string `json:"name"`
		} `json:"rowType"`
	} `json:"resultSetMetaData"`
	StatementHandle string `json:"statementHandle"`
	Message         string `json:"message"`
}

func (c *HTTPConnector) do(ctx context.Context, sql string, binds []interface{}) (*Result, error) {
	body, err := json.Marshal(statementRequest{Statement: sql, Bindings: binds})
	if err != nil {
		return nil, fmt.Errorf("marshal statement: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/v2/statements", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build statement request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("X-Warehouse-Account", c.cfg.Account)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("statement request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("statement returned status %d: %s", resp.StatusCode, string(raw))
	}

	var sr statementResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return nil, fmt.Errorf("decode statement response: %w", err)
	}

	cols := make([]string, len(sr.ResultSetMetaData.RowType))
	for i, rt := range sr.ResultSetMetaData.RowType {
		cols[i] = rt.Name
	}
	rows := make([]Row, 0, len(sr.Data))
	for _, record := range sr.Data {
		row := make(Row, len(cols))
		for i, col := range cols {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}

	return &Result{
		Rows:      rows,
		RowCount:  len(rows),
		RuntimeMS: time.Since(start).Milliseconds(),
		QueryID:   sr.StatementHandle,
	}, nil
}

func (c *HTTPConnector) Query(ctx context.Context, sql string, binds []interface{}) (*Result, error) {
	return c.do(ctx, sql, binds)
}

func (c *HTTPConnector) Exec(ctx context.Context, sql string, binds []interface{}) (*Result, error) {
	return c.do(ctx, sql, binds)
}

func (c *HTTPConnector) Upload(ctx context.Context, path string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.cfg.BaseURL+c.cfg.StageBase+"/"+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload returned status %d: %s", resp.StatusCode, string(raw))
	}
	return nil
}

func (c *HTTPConnector) List(ctx context.Context, prefix string) ([]StageObject, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+c.cfg.StageBase+"?prefix="+prefix, nil)
	if err != nil {
		return nil, fmt.Errorf("build list request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("list returned status %d: %s", resp.StatusCode, string(raw))
	}
	var objs []StageObject
	if err := json.Unmarshal(raw, &objs); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}
	return objs, nil
}

func (c *HTTPConnector) Download(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+c.cfg.StageBase+"/"+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("download returned status %d: %s", resp.StatusCode, string(raw))
	}
	return io.ReadAll(resp.Body)
}

func (c *HTTPConnector) Close() error { return nil }
