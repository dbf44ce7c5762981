package workload

import (
	"fmt"

	"github.com/weiihann/ddlbench/bench"
)

// tableTypeProps declares the property types of the catalog table type. The
// property set mirrors what Snowflake reports for SHOW TABLES plus DESCRIBE.
const tableTypeProps = `{
  "name": "string",
  "database_name": "string",
  "schema_name": "string",
  "kind": "string",
  "columns": "map",
  "comment": "string",
  "cluster_by": "string",
  "rows": "int",
  "bytes": "int",
  "owner": "string",
  "retention_time": "string",
  "automatic_clustering": "string",
  "change_tracking": "string",
  "search_optimization": "string",
  "search_optimization_progress": "int",
  "search_optimization_bytes": "int",
  "is_external": "string",
  "enable_schema_evolution": "string",
  "owner_role_type": "string",
  "is_event": "string",
  "budget": "string",
  "is_hybrid": "string",
  "is_iceberg": "string",
  "is_dynamic": "string",
  "is_immutable": "string"
}`

const showPostgresTables = `SELECT n.nspname AS schema_name, c.relname AS table_name
FROM pg_catalog.pg_class c
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE c.relkind = 'r'
AND n.nspname NOT IN ('pg_catalog', 'information_schema');`

// TableProps is the property document of a catalog table.
type TableProps struct {
	Name                       string            `json:"name"`
	DatabaseName               string            `json:"database_name"`
	SchemaName                 string            `json:"schema_name"`
	Kind                       string            `json:"kind"`
	Columns                    map[string]string `json:"columns"`
	Comment                    string            `json:"comment"`
	ClusterBy                  string            `json:"cluster_by"`
	Rows                       int               `json:"rows"`
	Bytes                      int               `json:"bytes"`
	Owner                      string            `json:"owner"`
	RetentionTime              string            `json:"retention_time"`
	AutomaticClustering        string            `json:"automatic_clustering"`
	ChangeTracking             string            `json:"change_tracking"`
	SearchOptimization         string            `json:"search_optimization"`
	SearchOptimizationProgress int               `json:"search_optimization_progress"`
	SearchOptimizationBytes    int               `json:"search_optimization_bytes"`
	IsExternal                 string            `json:"is_external"`
	EnableSchemaEvolution      string            `json:"enable_schema_evolution"`
	OwnerRoleType              string            `json:"owner_role_type"`
	IsEvent                    string            `json:"is_event"`
	Budget                     string            `json:"budget"`
	IsHybrid                   string            `json:"is_hybrid"`
	IsIceberg                  string            `json:"is_iceberg"`
	IsDynamic                  string            `json:"is_dynamic"`
	IsImmutable                string            `json:"is_immutable"`
}

// NewTableProps returns the properties of a freshly created table t_i.
func NewTableProps(i int) TableProps {
	return TableProps{
		Name:                  tableName(i),
		DatabaseName:          "BEETLE_DB",
		SchemaName:            "PUBLIC",
		Kind:                  "TABLE",
		Columns:               map[string]string{"key": "INTEGER PRIMARY KEY", "value": "TEXT"},
		Owner:                 "TRAINING_ROLE",
		RetentionTime:         "1",
		AutomaticClustering:   "OFF",
		ChangeTracking:        "OFF",
		SearchOptimization:    "OFF",
		IsExternal:            "N",
		EnableSchemaEvolution: "N",
		OwnerRoleType:         "ROLE",
		IsEvent:               "N",
		IsHybrid:              "N",
		IsIceberg:             "N",
		IsDynamic:             "N",
		IsImmutable:           "N",
	}
}

// CreateTable builds the statement creating table t_i.
func (b *Builder) CreateTable(i int) (Statement, error) {
	stmt := Statement{Command: bench.Create, Object: bench.Table}

	if b.system.IsOpenDict() {
		props, err := marshalProps(NewTableProps(i))
		if err != nil {
			return stmt, err
		}

		stmt.Query = fmt.Sprintf("CREATE OPEN table %s\nPROPS %s", tableName(i), props)

		return stmt, nil
	}

	stmt.Query = fmt.Sprintf(
		"CREATE TABLE %s (id INTEGER PRIMARY KEY, value TEXT);", tableName(i),
	)

	return stmt, nil
}

// CreateTableBatches builds batch statements creating tables t_from up to
// but excluding t_to, at most BatchSize tables per statement.
func (b *Builder) CreateTableBatches(from, to int) ([]Statement, error) {
	if !b.system.IsBatch() {
		return nil, fmt.Errorf("batch create on %s: %w", b.system, ErrUnsupported)
	}

	var stmts []Statement

	for start := from; start < to; start += BatchSize {
		end := min(start+BatchSize, to)

		objs := make([]TableProps, 0, end-start)
		for i := start; i < end; i++ {
			objs = append(objs, NewTableProps(i))
		}

		payload, err := marshalProps(objs)
		if err != nil {
			return nil, err
		}

		stmts = append(stmts, Statement{
			Command: bench.Create,
			Object:  bench.Table,
			Query:   "CREATE OPEN BATCH table\nOBJECTS " + payload,
			Label: fmt.Sprintf(
				"CREATE OPEN BATCH table OBJECTS [%s .. %s]",
				tableName(start), tableName(end-1),
			),
		})
	}

	return stmts, nil
}

// AlterTable builds the point statement adding a column to t_k. Tables
// outlive their tier, so the column name is unique per tier and repetition.
func (b *Builder) AlterTable(k int, g bench.Granularity, rep int) (Statement, error) {
	stmt := Statement{Command: bench.Alter, Object: bench.Table}
	column := alteredColumn(g, rep)

	if b.system.IsOpenDict() {
		p := NewTableProps(k)
		p.Columns[column] = "TEXT"

		props, err := marshalProps(p)
		if err != nil {
			return stmt, err
		}

		stmt.Query = fmt.Sprintf("ALTER OPEN table %s\nPROPS %s", tableName(k), props)

		return stmt, nil
	}

	stmt.Query = fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT;", tableName(k), column)

	return stmt, nil
}

// CommentTable builds the statement commenting on t_k. SQLite has no
// comments, so a column rename stands in for it; RestoreTable undoes it.
func (b *Builder) CommentTable(k int, g bench.Granularity, rep int) (Statement, error) {
	stmt := Statement{Command: bench.Comment, Object: bench.Table}

	switch {
	case b.system == bench.SQLite:
		stmt.Query = fmt.Sprintf(
			"ALTER table %s RENAME COLUMN value TO value_altered;", tableName(k),
		)
	case b.system.IsOpenDict():
		p := NewTableProps(k)
		p.Columns[alteredColumn(g, rep)] = "TEXT"
		p.Comment = "This table has been altered"

		props, err := marshalProps(p)
		if err != nil {
			return stmt, err
		}

		stmt.Query = fmt.Sprintf("ALTER OPEN table %s\nPROPS %s", tableName(k), props)
	default:
		stmt.Query = fmt.Sprintf(
			"COMMENT ON table %s is 'This table has been altered';", tableName(k),
		)
	}

	return stmt, nil
}

func alteredColumn(g bench.Granularity, rep int) string {
	return fmt.Sprintf("altered_%d_%d", g, rep)
}

// RestoreTable returns the untimed statement reverting CommentTable, if
// the system needs one.
func (b *Builder) RestoreTable(k int) (string, bool) {
	if b.system != bench.SQLite {
		return "", false
	}

	return fmt.Sprintf(
		"ALTER TABLE %s RENAME COLUMN value_altered TO value;", tableName(k),
	), true
}

// ShowTables builds the statement listing tables.
func (b *Builder) ShowTables() (Statement, error) {
	stmt := Statement{Command: bench.Show, Object: bench.Table}

	switch {
	case b.system == bench.SQLite:
		stmt.Query = "SELECT name FROM sqlite_master WHERE type = 'table';"
	case b.system == bench.Postgres:
		stmt.Query = showPostgresTables
	case b.system == bench.Snowflake:
		stmt.Query = "show tables limit 10000"
	case b.system.IsOpenDict():
		stmt.Query = "show open table"
	default:
		stmt.Query = "SHOW tables"
	}

	return stmt, nil
}
