package api

import (
	"context"
	"database/sql"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// DBHandler exposes read-only inspection of the remote store database.
type DBHandler struct {
	db *sql.DB
}

// NewDBHandler creates a new database handler. db may be nil.
func NewDBHandler(db *sql.DB) *DBHandler {
	return &DBHandler{db: db}
}

// RegisterRoutes registers store inspection routes with Huma.
func (h *DBHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/store/tables", h.ListTables, huma.OperationTags("store"))
	huma.Post(api, "/api/v1/store/query", h.Query, huma.OperationTags("store"))
}

type TableInfo struct {
	Name string `json:"name" doc:"Table name" example:"overlay_features"`
	Rows int64  `json:"rows" doc:"Row count"`
}

// TablesOutput is the response for listing tables.
type TablesOutput struct {
	Body struct {
		Tables []TableInfo `json:"tables" doc:"Overlay tables with row counts"`
	}
}

// overlayTables are the tables the SQL store owns.
var overlayTables = []string{"overlay_files", "overlay_features"}

// ListTables returns the store tables and their row counts.
func (h *DBHandler) ListTables(ctx context.Context, input *struct{}) (*TablesOutput, error) {
	if h.db == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}

	out := &TablesOutput{}
	out.Body.Tables = []TableInfo{}
	for _, name := range overlayTables {
		var n int64
		if err := h.db.QueryRowContext(ctx, "SELECT count(*) FROM "+name).Scan(&n); err != nil {
			return nil, huma.Error502BadGateway("Failed to count "+name, err)
		}
		out.Body.Tables = append(out.Body.Tables, TableInfo{Name: name, Rows: n})
	}
	return out, nil
}

// QueryInput is the input for SQL queries.
type QueryInput struct {
	Body struct {
		Query string `json:"query" required:"true" doc:"SELECT statement to execute" example:"SELECT source, count(*) FROM overlay_features GROUP BY source"`
	}
}

// QueryOutput is the response for SQL queries.
type QueryOutput struct {
	Body struct {
		Columns []string         `json:"columns" doc:"Column names"`
		Rows    []map[string]any `json:"rows" doc:"Query results"`
		Count   int              `json:"count" doc:"Number of rows returned"`
	}
}

// readOnly reports whether q is a single SELECT or WITH statement.
func readOnly(q string) bool {
	q = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(q), ";"))
	if strings.Contains(q, ";") {
		return false
	}
	lower := strings.ToLower(q)
	return strings.HasPrefix(lower, "select") || strings.HasPrefix(lower, "with")
}

// Query executes a read-only SQL query against the store.
func (h *DBHandler) Query(ctx context.Context, input *QueryInput) (*QueryOutput, error) {
	if h.db == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}
	if !readOnly(input.Body.Query) {
		return nil, huma.Error400BadRequest("Only single SELECT statements are allowed")
	}

	rows, err := h.db.QueryContext(ctx, input.Body.Query)
	if err != nil {
		return nil, huma.Error400BadRequest("Query failed: " + err.Error())
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to get columns", err)
	}

	out := &QueryOutput{}
	out.Body.Columns = columns
	out.Body.Rows = []map[string]any{}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			continue
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out.Body.Rows = append(out.Body.Rows, row)
	}
	out.Body.Count = len(out.Body.Rows)
	return out, nil
}
