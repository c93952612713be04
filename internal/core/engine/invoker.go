package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pulseboard/pulseboard-backend-go/internal/core/types"
	"github.com/pulseboard/pulseboard-backend-go/pkg/errors"
)

// Invoker fetches the raw rows of a data source. Implementations must
// honor the context deadline.
type Invoker interface {
	Invoke(ctx context.Context, source types.DataSourceDescriptor) ([]types.Row, error)
}

// SourceResolver routes an invocation to the invoker registered for the
// source kind. Static sources are answered inline.
type SourceResolver struct {
	invokers map[types.SourceKind]Invoker
}

// NewSourceResolver creates a resolver with the static source built in.
func NewSourceResolver() *SourceResolver {
	return &SourceResolver{
		invokers: map[types.SourceKind]Invoker{
			types.SourceStatic: &staticInvoker{},
		},
	}
}

// RegisterInvoker binds an invoker to a source kind, replacing any
// previous binding.
func (r *SourceResolver) RegisterInvoker(kind types.SourceKind, invoker Invoker) {
	r.invokers[kind] = invoker
}

// Invoke dispatches to the invoker for the source kind.
func (r *SourceResolver) Invoke(ctx context.Context, source types.DataSourceDescriptor) ([]types.Row, error) {
	invoker, ok := r.invokers[source.Kind]
	if !ok {
		return nil, errors.NewConfigurationError("no invoker registered for source kind %q", source.Kind)
	}
	return invoker.Invoke(ctx, source)
}

// staticInvoker serves inline rows, mainly for fixtures and demos.
type staticInvoker struct{}

func (s *staticInvoker) Invoke(ctx context.Context, source types.DataSourceDescriptor) ([]types.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows := make([]types.Row, len(source.StaticRows))
	copy(rows, source.StaticRows)
	return rows, nil
}

// QueryInvoker runs SQL sources against the local database.
type QueryInvoker struct {
	db *sqlx.DB
}

// NewQueryInvoker creates a QueryInvoker.
func NewQueryInvoker(db *sqlx.DB) *QueryInvoker {
	return &QueryInvoker{db: db}
}

func (q *QueryInvoker) Invoke(ctx context.Context, source types.DataSourceDescriptor) ([]types.Row, error) {
	if source.Query == "" {
		return nil, errors.NewConfigurationError("query source declares no query")
	}

	query := source.Query
	args := []interface{}{}
	if len(source.Params) > 0 {
		var err error
		query, args, err = sqlx.Named(source.Query, source.Params)
		if err != nil {
			return nil, errors.NewConfigurationError("invalid query parameters: %v", err)
		}
	}

	sqlRows, err := q.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewDataSourceError(err, "query source failed")
	}
	defer sqlRows.Close()

	var rows []types.Row
	for sqlRows.Next() {
		row := types.Row{}
		if err := sqlRows.MapScan(row); err != nil {
			return nil, errors.NewDataSourceError(err, "failed to scan query row")
		}
		rows = append(rows, row)
	}
	if err := sqlRows.Err(); err != nil {
		return nil, errors.NewDataSourceError(err, "query source failed")
	}
	return rows, nil
}

// APIInvoker fetches rows from an HTTP endpoint returning a JSON array
// of objects.
type APIInvoker struct {
	client *http.Client
}

// NewAPIInvoker creates an APIInvoker. A nil client uses a default with
// a 30 second timeout; the per-call context deadline still applies.
func NewAPIInvoker(client *http.Client) *APIInvoker {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &APIInvoker{client: client}
}

func (a *APIInvoker) Invoke(ctx context.Context, source types.DataSourceDescriptor) ([]types.Row, error) {
	if source.Endpoint == "" {
		return nil, errors.NewConfigurationError("api source declares no endpoint")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.Endpoint, nil)
	if err != nil {
		return nil, errors.NewConfigurationError("invalid api endpoint %q: %v", source.Endpoint, err)
	}
	for key, value := range source.Headers {
		req.Header.Set(key, value)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, errors.NewDataSourceError(err, "api source request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.NewDataSourceError(
			fmt.Errorf("unexpected status %d", resp.StatusCode),
			"api source %s failed", source.Endpoint)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewDataSourceError(err, "failed to read api response")
	}

	var rows []types.Row
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, errors.NewDataSourceError(err, "api source returned malformed rows")
	}
	return rows, nil
}
