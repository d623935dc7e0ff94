package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/rawblock/empi-engine/pkg/models"
)

// QueryRecords implements the generic equality-filter path shared by every
// GET endpoint and query_records itself: filter is a field->value map over
// the table named by endpoint; a "user" key, if present, is dropped before
// filtering (it identifies the caller, not a column to match on).
func (s *Store) QueryRecords(ctx context.Context, endpoint models.Endpoint, filter map[string]interface{}) ([]map[string]interface{}, error) {
	table, ok := models.TableNames[endpoint]
	if !ok {
		return nil, fmt.Errorf("unknown endpoint %q", endpoint)
	}

	clauses := make([]string, 0, len(filter))
	args := make([]interface{}, 0, len(filter))
	i := 1
	for field, value := range filter {
		if field == "user" {
			continue
		}
		clauses = append(clauses, fmt.Sprintf("%s = $%d", quoteIdent(field), i))
		args = append(args, value)
		i++
	}

	query := `SELECT * FROM ` + quoteIdent(table)
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []map[string]interface{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(fields))
		for idx, fd := range fields {
			row[string(fd.Name)] = values[idx]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// quoteIdent double-quotes a Postgres identifier. Table and field names
// reach this function only from models.TableNames (a fixed internal table)
// or from query_records' caller-supplied filter keys; the latter are never
// interpolated into SQL text directly — they are quoted identifiers bound
// as column references, with values passed as placeholders.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
