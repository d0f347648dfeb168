package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pitabwire/opsdesk/internal/listquery"
	"github.com/pitabwire/opsdesk/model"
)

// DefaultTable holds the records of every postgres-backed screen.
const DefaultTable = "records"

// Querier is the subset of *pgxpool.Pool used by postgres sources.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresSource filters, sorts and pages a screen's records in the database.
// sort_value holds the parsed sort key (NULL when unparseable) and position
// holds the source order, so ordering matches the in-memory engine.
type PostgresSource struct {
	db       Querier
	table    string
	screenID string
	cfg      listquery.Config
}

// NewPostgresSource creates a source over table for the screen def.
func NewPostgresSource(db Querier, table string, def model.ScreenDefinition) *PostgresSource {
	if table == "" {
		table = DefaultTable
	}
	return &PostgresSource{
		db:       db,
		table:    pgx.Identifier{table}.Sanitize(),
		screenID: def.ID,
		cfg:      listquery.ConfigFromDefinition(def),
	}
}

// Paginated reports true.
func (s *PostgresSource) Paginated() bool { return true }

// EnsureSchema creates the records table and its index if missing.
func (s *PostgresSource) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			screen_id  TEXT NOT NULL,
			id         TEXT NOT NULL,
			status     TEXT NOT NULL DEFAULT '',
			sort_key   TEXT NOT NULL DEFAULT '',
			sort_value DOUBLE PRECISION,
			attributes JSONB NOT NULL DEFAULT '{}'::jsonb,
			position   INTEGER NOT NULL,
			PRIMARY KEY (screen_id, id)
		)`, s.table))
	if err != nil {
		return fmt.Errorf("create records table: %w", err)
	}
	return nil
}

// Seed replaces the screen's rows with records, keeping their order.
func (s *PostgresSource) Seed(ctx context.Context, records []model.Record) error {
	if _, err := s.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE screen_id = $1`, s.table), s.screenID); err != nil {
		return fmt.Errorf("clear screen %s: %w", s.screenID, err)
	}
	for i, rec := range records {
		attrs, err := json.Marshal(rec.Attributes)
		if err != nil {
			return fmt.Errorf("marshal attributes of %s: %w", rec.ID, err)
		}
		if rec.Attributes == nil {
			attrs = []byte("{}")
		}
		var sortValue *float64
		if v, ok := listquery.ParseSortKey(rec.Field(s.cfg.SortField), s.cfg.SortKind); ok {
			sortValue = &v
		}
		_, err = s.db.Exec(ctx, fmt.Sprintf(`
			INSERT INTO %s (screen_id, id, status, sort_key, sort_value, attributes, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`, s.table),
			s.screenID, rec.ID, rec.Status, rec.SortKey, sortValue, attrs, i,
		)
		if err != nil {
			return fmt.Errorf("insert record %s: %w", rec.ID, err)
		}
	}
	return nil
}

// Fetch runs the count and page queries for the request.
func (s *PostgresSource) Fetch(ctx context.Context, req model.FetchRequest) (model.FetchResult, error) {
	where, args := s.whereClause(req.Filters)

	var total int
	err := s.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT count(*) FROM %s WHERE %s`, s.table, where), args...,
	).Scan(&total)
	if err != nil {
		return model.FetchResult{}, fmt.Errorf("count records: %w", err)
	}

	pageSize := req.PageSize
	if pageSize < 1 {
		pageSize = s.cfg.PageSize
	}
	totalPages := listquery.TotalPages(total, pageSize)
	page := listquery.ClampPage(req.Page, totalPages)

	query := fmt.Sprintf(`
		SELECT id, status, sort_key, attributes
		FROM %s
		WHERE %s
		ORDER BY %s
		LIMIT %d OFFSET %d`,
		s.table, where, orderClause(req.Filters.SortOrder), pageSize, (page-1)*pageSize)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return model.FetchResult{}, fmt.Errorf("query records: %w", err)
	}
	records, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return model.FetchResult{}, fmt.Errorf("scan records: %w", err)
	}

	return model.FetchResult{Records: records, Total: total, TotalPages: totalPages}, nil
}

// Lookup reads one record of the screen by ID.
func (s *PostgresSource) Lookup(ctx context.Context, id string) (model.Record, bool, error) {
	rows, err := s.db.Query(ctx, fmt.Sprintf(`
		SELECT id, status, sort_key, attributes
		FROM %s
		WHERE screen_id = $1 AND id = $2`, s.table), s.screenID, id)
	if err != nil {
		return model.Record{}, false, fmt.Errorf("lookup record %s: %w", id, err)
	}
	records, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return model.Record{}, false, fmt.Errorf("scan record %s: %w", id, err)
	}
	if len(records) == 0 {
		return model.Record{}, false, nil
	}
	return records[0], true, nil
}

// HealthCheck pings the database.
func (s *PostgresSource) HealthCheck(ctx context.Context) error {
	var one int
	return s.db.QueryRow(ctx, "SELECT 1").Scan(&one)
}

// whereClause translates the filter state into SQL with the same semantics
// as listquery.Matches.
func (s *PostgresSource) whereClause(f model.FilterState) (string, []any) {
	args := []any{s.screenID}
	conds := []string{"screen_id = $1"}
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	column := func(field string) string {
		switch field {
		case model.FieldID, model.FieldStatus, model.FieldSortKey:
			return field
		}
		return "attributes->>" + arg(field)
	}

	if f.ActiveTab != "" && f.ActiveTab != model.TabAll {
		col := column(s.cfg.TabField)
		conds = append(conds, col+" = "+arg(f.ActiveTab))
	}

	if v := f.DropdownFilter; v != "" && v != model.FilterAll &&
		(len(s.cfg.DropdownOptions) == 0 || slices.Contains(s.cfg.DropdownOptions, v)) {
		switch s.cfg.DropdownMode {
		case model.DropdownModeTimeframe:
			if since, ok := listquery.TimeframeStart(v, s.cfg.Now()); ok {
				conds = append(conds, "sort_value >= "+arg(float64(since.Unix())))
			}
		case model.DropdownModeEquals:
			col := column(s.cfg.DropdownField)
			conds = append(conds, col+" = "+arg(v))
		}
	}

	if q := strings.TrimSpace(f.SearchQuery); q != "" {
		pattern := arg("%" + escapeLike(q) + "%")
		var ors []string
		for _, field := range s.cfg.SearchFields {
			ors = append(ors, "COALESCE("+column(field)+", '') ILIKE "+pattern)
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}

	return strings.Join(conds, " AND "), args
}

func orderClause(order model.SortOrder) string {
	if order == model.SortOldest {
		return "sort_value ASC NULLS FIRST, position ASC"
	}
	return "sort_value DESC NULLS LAST, position ASC"
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func scanRecord(row pgx.CollectableRow) (model.Record, error) {
	var rec model.Record
	var attrs map[string]any
	if err := row.Scan(&rec.ID, &rec.Status, &rec.SortKey, &attrs); err != nil {
		return model.Record{}, err
	}
	if len(attrs) > 0 {
		rec.Attributes = make(map[string]string, len(attrs))
		for k, v := range attrs {
			rec.Attributes[k] = jsonScalar(v)
		}
	}
	return rec, nil
}

func jsonScalar(v any) string {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.Format(time.RFC3339)
	}
	return scalarString(v)
}
