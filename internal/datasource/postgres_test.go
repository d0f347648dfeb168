package datasource

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pitabwire/opsdesk/model"
)

func ordersScreen() model.ScreenDefinition {
	return model.ScreenDefinition{
		ID:           "orders",
		PageSize:     10,
		TabField:     "status",
		SearchFields: []string{"id", "customer"},
		Sort:         model.SortDefinition{Field: "sort_key", Kind: model.SortKindDate},
		Dropdown: &model.DropdownDefinition{
			Field: "payment",
			Mode:  model.DropdownModeEquals,
			Options: []model.OptionDefinition{
				{Label: "Card", Value: "card"},
				{Label: "Wallet", Value: "wallet"},
			},
		},
	}
}

func TestPostgresSource_whereClause(t *testing.T) {
	src := NewPostgresSource(nil, "", ordersScreen())

	tests := []struct {
		name     string
		filters  model.FilterState
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "no filters",
			filters:  model.FilterState{ActiveTab: model.TabAll, DropdownFilter: model.FilterAll},
			wantSQL:  "screen_id = $1",
			wantArgs: []any{"orders"},
		},
		{
			name:     "tab",
			filters:  model.FilterState{ActiveTab: "pending"},
			wantSQL:  "screen_id = $1 AND status = $2",
			wantArgs: []any{"orders", "pending"},
		},
		{
			name:     "dropdown on attribute",
			filters:  model.FilterState{DropdownFilter: "card"},
			wantSQL:  "screen_id = $1 AND attributes->>$2 = $3",
			wantArgs: []any{"orders", "payment", "card"},
		},
		{
			name:     "undeclared dropdown value matches all",
			filters:  model.FilterState{DropdownFilter: "cash"},
			wantSQL:  "screen_id = $1",
			wantArgs: []any{"orders"},
		},
		{
			name:     "search escapes wildcards",
			filters:  model.FilterState{SearchQuery: "  50%_off "},
			wantSQL:  "screen_id = $1 AND (COALESCE(id, '') ILIKE $2 OR COALESCE(attributes->>$3, '') ILIKE $2)",
			wantArgs: []any{"orders", `%50\%\_off%`, "customer"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := src.whereClause(tt.filters)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestPostgresSource_timeframeUsesSortValue(t *testing.T) {
	def := ordersScreen()
	def.Dropdown = &model.DropdownDefinition{Mode: model.DropdownModeTimeframe}
	src := NewPostgresSource(nil, "", def)
	now := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	src.cfg.Now = func() time.Time { return now }

	sql, args := src.whereClause(model.FilterState{DropdownFilter: "7d"})

	assert.Equal(t, "screen_id = $1 AND sort_value >= $2", sql)
	assert.Equal(t, float64(now.Add(-7*24*time.Hour).Unix()), args[1])
}

func TestOrderClause(t *testing.T) {
	assert.Equal(t, "sort_value DESC NULLS LAST, position ASC", orderClause(model.SortNewest))
	assert.Equal(t, "sort_value ASC NULLS FIRST, position ASC", orderClause(model.SortOldest))
	assert.Equal(t, "sort_value DESC NULLS LAST, position ASC", orderClause("bogus"))
}

func TestNewPostgresSource_sanitizesTable(t *testing.T) {
	src := NewPostgresSource(nil, `records"; DROP TABLE x; --`, ordersScreen())
	assert.Equal(t, `"records""; DROP TABLE x; --"`, src.table)
	assert.True(t, src.Paginated())
}

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in -short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("opsdesk_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2*time.Minute),
		),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresSource_integration(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()

	src := NewPostgresSource(pool, "", ordersScreen())
	require.NoError(t, src.EnsureSchema(ctx))

	records := make([]model.Record, 0, 16)
	for i := 1; i <= 16; i++ {
		status := "pending"
		if i%2 == 0 {
			status = "delivered"
		}
		records = append(records, model.Record{
			ID:         fmt.Sprintf("ORD-%02d", i),
			Status:     status,
			SortKey:    fmt.Sprintf("2024-01-%02d", i),
			Attributes: map[string]string{"customer": fmt.Sprintf("Customer %d", i), "payment": "card"},
		})
	}
	records = append(records, model.Record{ID: "ORD-XX", Status: "pending", SortKey: "not a date"})
	require.NoError(t, src.Seed(ctx, records))
	require.NoError(t, src.HealthCheck(ctx))

	t.Run("first page newest", func(t *testing.T) {
		result, err := src.Fetch(ctx, model.FetchRequest{
			Filters:  model.FilterState{ActiveTab: model.TabAll, SortOrder: model.SortNewest},
			Page:     1,
			PageSize: 10,
		})
		require.NoError(t, err)
		assert.Equal(t, 17, result.Total)
		assert.Equal(t, 2, result.TotalPages)
		require.Len(t, result.Records, 10)
		assert.Equal(t, "ORD-16", result.Records[0].ID)
		assert.Equal(t, "Customer 16", result.Records[0].Field("customer"))
	})

	t.Run("unparseable key sorts oldest", func(t *testing.T) {
		result, err := src.Fetch(ctx, model.FetchRequest{
			Filters:  model.FilterState{SortOrder: model.SortOldest},
			Page:     1,
			PageSize: 10,
		})
		require.NoError(t, err)
		assert.Equal(t, "ORD-XX", result.Records[0].ID)
	})

	t.Run("tab and search", func(t *testing.T) {
		result, err := src.Fetch(ctx, model.FetchRequest{
			Filters:  model.FilterState{ActiveTab: "delivered", SearchQuery: "customer 1"},
			Page:     1,
			PageSize: 10,
		})
		require.NoError(t, err)
		// delivered: 10, 12, 14, 16 contain "customer 1"
		assert.Equal(t, 4, result.Total)
	})

	t.Run("out of range page snaps to first", func(t *testing.T) {
		result, err := src.Fetch(ctx, model.FetchRequest{Page: 9, PageSize: 10})
		require.NoError(t, err)
		require.NotEmpty(t, result.Records)
		assert.Equal(t, "ORD-16", result.Records[0].ID)
	})

	t.Run("lookup by id", func(t *testing.T) {
		rec, ok, err := src.Lookup(ctx, "ORD-03")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "pending", rec.Status)
		assert.Equal(t, "Customer 3", rec.Field("customer"))

		_, ok, err = src.Lookup(ctx, "ORD-99")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
