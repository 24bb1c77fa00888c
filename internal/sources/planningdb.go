package sources

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"timesheet-reconciliation-service/internal/models"
	"timesheet-reconciliation-service/pkg/errors"
	"timesheet-reconciliation-service/pkg/logger"
)

// DefaultPlanningDriver is the database/sql driver used for Planning Database snapshots
const DefaultPlanningDriver = "sqlite"

// DefaultPlanningQuery returns one row per allocation of the latest
// simulation, with the employee, project and client names the default rules
// join on.
const DefaultPlanningQuery = `
SELECT
	a.id AS allocation_id,
	e.first_name || ' ' || e.last_name AS employee,
	e.employee_number,
	p.name AS project,
	p.project_number,
	c.name AS client,
	a.start_date,
	a.end_date,
	a.cost,
	a.currency
FROM allocations a
LEFT JOIN employees e ON a.employee_id = e.id
LEFT JOIN projects p ON a.project_id = p.id
LEFT JOIN clients c ON p.client_id = c.id
WHERE a.simulation_id = (SELECT MAX(simulation_id) FROM allocations WHERE simulation_id IS NOT NULL)
ORDER BY a.start_date, e.first_name, e.last_name`

// PlanningDBReader runs a query against the Planning Database and turns each
// row into a record, columns in select order
type PlanningDBReader struct {
	db     *sql.DB
	query  string
	args   []interface{}
	logger logger.Logger
}

// OpenPlanningDB opens and pings a database. An empty driver means sqlite.
func OpenPlanningDB(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	if driver == "" {
		driver = DefaultPlanningDriver
	}
	if dsn == "" {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "planning_dsn", nil, nil)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.DatabaseError(errors.CodeConnectionFailed, dsn, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.DatabaseError(errors.CodeConnectionFailed, dsn, err)
	}
	return db, nil
}

// NewPlanningDBReader creates a reader. An empty query means DefaultPlanningQuery.
func NewPlanningDBReader(db *sql.DB, query string, args ...interface{}) *PlanningDBReader {
	if query == "" {
		query = DefaultPlanningQuery
	}
	return &PlanningDBReader{
		db:     db,
		query:  query,
		args:   args,
		logger: logger.GetGlobalLogger().WithComponent("planning_db"),
	}
}

// Describe names the source
func (r *PlanningDBReader) Describe() string {
	return "planning database query"
}

// Records runs the query
func (r *PlanningDBReader) Records(ctx context.Context) ([]*models.Record, error) {
	start := time.Now()

	rows, err := r.db.QueryContext(ctx, r.query, r.args...)
	if err != nil {
		return nil, errors.DatabaseError(errors.CodeQueryFailed, "planning", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.DatabaseError(errors.CodeQueryFailed, "planning", err)
	}

	var records []*models.Record
	n := 0
	for rows.Next() {
		n++
		raw := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.DatabaseError(errors.CodeQueryFailed, "planning", fmt.Errorf("row %d: %w", n, err))
		}

		record := models.NewRecord(fmt.Sprintf("planning:%d", n))
		for i, col := range columns {
			record.Set(col, dbValue(raw[i]))
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.DatabaseError(errors.CodeQueryFailed, "planning", err)
	}

	r.logger.WithFields(logger.Fields{
		"records":  len(records),
		"columns":  len(columns),
		"duration": time.Since(start).String(),
	}).Info("Planning records loaded")

	return records, nil
}

// dbValue maps a driver value onto a record value
func dbValue(v interface{}) models.Value {
	switch x := v.(type) {
	case nil:
		return models.Null()
	case int64:
		return models.NumberValue(decimal.NewFromInt(x))
	case float64:
		return models.NumberValue(decimal.NewFromFloat(x))
	case bool:
		if x {
			return models.StringValue("true")
		}
		return models.StringValue("false")
	case time.Time:
		return models.DateValue(x)
	case []byte:
		return models.StringValue(string(x))
	case string:
		return models.StringValue(x)
	default:
		return models.StringValue(fmt.Sprint(x))
	}
}
