package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/DefensEye/cmmc12/finding"
)

// Default PostgREST query settings.
const (
	DefaultSchema      = "public"
	DefaultTable       = "security_findings"
	DefaultOrderBy     = "create_time"
	DefaultFunction    = "get_security_findings"
	DefaultLimit       = 50
	DefaultHTTPTimeout = 15 * time.Second

	maxErrorBody = 512
)

// Option configures a PostgREST client.
type Option func(*PostgREST)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *PostgREST) { p.httpClient = hc }
}

// WithSchema sets the schema sent in the profile headers.
func WithSchema(schema string) Option {
	return func(p *PostgREST) {
		if schema != "" {
			p.schema = schema
		}
	}
}

// PostgREST talks to a Supabase style REST endpoint.
type PostgREST struct {
	baseURL    string
	apiKey     string
	schema     string
	httpClient *http.Client
}

func NewPostgREST(baseURL, apiKey string, opts ...Option) *PostgREST {
	p := &PostgREST{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		schema:     DefaultSchema,
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Configured reports whether the client has an endpoint and a key.
func (p *PostgREST) Configured() bool {
	return p != nil && p.baseURL != "" && p.apiKey != ""
}

// Table returns a source reading the newest rows of a table.
func (p *PostgREST) Table(table, orderBy string, limit int) *TableQuery {
	return &TableQuery{client: p, table: table, orderBy: orderBy, limit: limit}
}

// RPC returns a source calling a stored function with a limit_count argument.
func (p *PostgREST) RPC(function string, limit int) *RPCQuery {
	return &RPCQuery{client: p, function: function, limit: limit}
}

// TableQuery is GET /rest/v1/{table}?select=*&order={orderBy}.desc&limit=N.
type TableQuery struct {
	client  *PostgREST
	table   string
	orderBy string
	limit   int
}

func (q *TableQuery) Name() string { return NamePrimary }

func (q *TableQuery) Fetch(ctx context.Context) ([]finding.Record, error) {
	if !q.client.Configured() {
		return nil, ErrNotConfigured
	}

	params := url.Values{}
	params.Set("select", "*")
	if q.orderBy != "" {
		params.Set("order", q.orderBy+".desc")
	}
	if q.limit > 0 {
		params.Set("limit", strconv.Itoa(q.limit))
	}
	endpoint := fmt.Sprintf("%s/rest/v1/%s?%s", q.client.baseURL, url.PathEscape(q.table), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building table query: %w", err)
	}
	req.Header.Set("Accept-Profile", q.client.schema)
	return q.client.do(req)
}

// RPCQuery is POST /rest/v1/rpc/{function} with {"limit_count": N}.
type RPCQuery struct {
	client   *PostgREST
	function string
	limit    int
}

func (q *RPCQuery) Name() string { return NameAlternate }

func (q *RPCQuery) Fetch(ctx context.Context) ([]finding.Record, error) {
	if !q.client.Configured() {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(map[string]int{"limit_count": q.limit})
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/rest/v1/rpc/%s", q.client.baseURL, url.PathEscape(q.function))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building rpc query: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Profile", q.client.schema)
	req.Header.Set("Accept-Profile", q.client.schema)
	return q.client.do(req)
}

func (p *PostgREST) do(req *http.Request) ([]finding.Record, error) {
	req.Header.Set("apikey", p.apiKey)
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	var records []finding.Record
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return records, nil
}
