package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/pulseboard-backend-go/internal/core/types"
	"github.com/pulseboard/pulseboard-backend-go/pkg/errors"
)

func TestSourceResolver_Static(t *testing.T) {
	resolver := NewSourceResolver()

	rows, err := resolver.Invoke(context.Background(), types.DataSourceDescriptor{
		Kind:       types.SourceStatic,
		StaticRows: []types.Row{{"amount": float64(1)}, {"amount": float64(2)}},
	})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestSourceResolver_UnknownKind(t *testing.T) {
	resolver := NewSourceResolver()

	_, err := resolver.Invoke(context.Background(), types.DataSourceDescriptor{Kind: types.SourceMetrics})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestQueryInvoker(t *testing.T) {
	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE sales (region TEXT, amount REAL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO sales VALUES ('east', 100), ('west', 250), ('east', 50)`)
	require.NoError(t, err)

	invoker := NewQueryInvoker(db)

	rows, err := invoker.Invoke(context.Background(), types.DataSourceDescriptor{
		Kind:  types.SourceQuery,
		Query: `SELECT region, amount FROM sales WHERE region = :region`,
		Params: map[string]interface{}{
			"region": "east",
		},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "east", rows[0]["region"])

	_, err = invoker.Invoke(context.Background(), types.DataSourceDescriptor{Kind: types.SourceQuery})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	_, err = invoker.Invoke(context.Background(), types.DataSourceDescriptor{
		Kind:  types.SourceQuery,
		Query: `SELECT * FROM no_such_table`,
	})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDataSource))
}

func TestAPIInvoker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"region":"east","amount":100},{"region":"west","amount":250}]`))
	}))
	defer server.Close()

	invoker := NewAPIInvoker(nil)

	rows, err := invoker.Invoke(context.Background(), types.DataSourceDescriptor{
		Kind:     types.SourceAPI,
		Endpoint: server.URL,
		Headers:  map[string]string{"X-Api-Key": "secret"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "east", rows[0]["region"])
	assert.Equal(t, float64(100), rows[0]["amount"])
}

func TestAPIInvoker_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	invoker := NewAPIInvoker(nil)
	_, err := invoker.Invoke(context.Background(), types.DataSourceDescriptor{
		Kind:     types.SourceAPI,
		Endpoint: server.URL,
	})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDataSource))
}

func TestAPIInvoker_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"an array"}`))
	}))
	defer server.Close()

	invoker := NewAPIInvoker(nil)
	_, err := invoker.Invoke(context.Background(), types.DataSourceDescriptor{
		Kind:     types.SourceAPI,
		Endpoint: server.URL,
	})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDataSource))
}
