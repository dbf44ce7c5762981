package workload

import (
	"fmt"

	"github.com/weiihann/ddlbench/bench"
)

const functionTypeProps = `{
  "name": "string",
  "language": "string",
  "args": "map",
  "definition": "string",
  "comment": "string"
}`

const showPostgresFunctions = `SELECT n.nspname AS schema, p.proname AS function_name
FROM pg_proc p
JOIN pg_namespace n ON n.oid = p.pronamespace
WHERE n.nspname NOT IN ('pg_catalog', 'information_schema')
AND p.prokind = 'f'
AND p.proname LIKE 'f_%';`

// FunctionProps is the property document of a catalog function.
type FunctionProps struct {
	Name       string            `json:"name"`
	Language   string            `json:"language"`
	Args       map[string]string `json:"args"`
	Definition string            `json:"definition"`
	Comment    string            `json:"comment"`
}

func newFunctionProps(i int, definition, comment string) FunctionProps {
	return FunctionProps{
		Name:       functionName(i),
		Language:   "sql",
		Args:       map[string]string{"a": "int", "b": "int"},
		Definition: definition,
		Comment:    comment,
	}
}

func (b *Builder) openFunction(verb string, i int, definition, comment string) (string, error) {
	props, err := marshalProps(newFunctionProps(i, definition, comment))
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s OPEN function %s\nPROPS %s", verb, functionName(i), props), nil
}

func (b *Builder) unsupported(what string) error {
	return fmt.Errorf("%s on %s: %w", what, b.system, ErrUnsupported)
}

// CreateFunction builds the statement creating function f_i(a, b) = a + b.
func (b *Builder) CreateFunction(i int) (Statement, error) {
	stmt := Statement{Command: bench.Create, Object: bench.Function}
	name := functionName(i)

	var err error

	switch {
	case b.system.IsOpenDict():
		stmt.Query, err = b.openFunction("CREATE", i, "SELECT a + b", "")
	case b.system == bench.Snowflake:
		stmt.Query = fmt.Sprintf(
			"CREATE FUNCTION %s(a INT, b INT) RETURNS INT LANGUAGE SQL AS $$ a + b $$;", name,
		)
	case b.system == bench.DuckDB:
		stmt.Query = fmt.Sprintf("CREATE MACRO %s(a, b) AS a + b;", name)
	case b.system == bench.Postgres:
		stmt.Query = fmt.Sprintf(
			"CREATE FUNCTION %s(a integer, b integer) RETURNS integer LANGUAGE SQL RETURN a + b;", name,
		)
	default:
		err = b.unsupported("create function")
	}

	return stmt, err
}

// AlterFunction builds the statement redefining f_k as a + b + 42.
func (b *Builder) AlterFunction(k int) (Statement, error) {
	stmt := Statement{Command: bench.Alter, Object: bench.Function}
	name := functionName(k)

	var err error

	switch {
	case b.system.IsOpenDict():
		stmt.Query, err = b.openFunction("ALTER", k, "SELECT a + b + 42", "")
	case b.system == bench.Snowflake:
		stmt.Query = fmt.Sprintf(
			"CREATE OR REPLACE FUNCTION %s(a INT, b INT) RETURNS INT LANGUAGE SQL AS $$ a + b + 42 $$;", name,
		)
	case b.system == bench.DuckDB:
		stmt.Query = fmt.Sprintf("CREATE OR REPLACE MACRO %s(a, b) AS a + b + 42;", name)
	case b.system == bench.Postgres:
		stmt.Query = fmt.Sprintf(
			"CREATE OR REPLACE FUNCTION %s(a integer, b integer) RETURNS integer LANGUAGE SQL RETURN a + b + 42;", name,
		)
	default:
		err = b.unsupported("alter function")
	}

	return stmt, err
}

// CommentFunction builds the statement commenting on f_k.
func (b *Builder) CommentFunction(k, rep int) (Statement, error) {
	stmt := Statement{Command: bench.Comment, Object: bench.Function}
	name := functionName(k)
	comment := fmt.Sprintf("Function altered at experiment %d", rep)

	var err error

	switch {
	case b.system.IsOpenDict():
		stmt.Query, err = b.openFunction("ALTER", k, "SELECT a + b", comment)
	case b.system == bench.Postgres:
		stmt.Query = fmt.Sprintf("COMMENT ON FUNCTION %s IS '%s';", name, comment)
	case b.system == bench.Snowflake:
		stmt.Query = fmt.Sprintf("COMMENT ON FUNCTION %s(INT, INT) IS '%s';", name, comment)
	case b.system == bench.DuckDB:
		stmt.Query = fmt.Sprintf("COMMENT ON MACRO %s IS '%s';", name, comment)
	default:
		err = b.unsupported("comment function")
	}

	return stmt, err
}

// ShowFunctions builds the statement listing user defined functions.
func (b *Builder) ShowFunctions() (Statement, error) {
	stmt := Statement{Command: bench.Show, Object: bench.Function}

	var err error

	switch {
	case b.system.IsOpenDict():
		stmt.Query = "SHOW OPEN function;"
	case b.system == bench.Postgres:
		stmt.Query = showPostgresFunctions
	case b.system == bench.Snowflake:
		stmt.Query = "SHOW USER FUNCTIONS limit 10000;"
	case b.system == bench.DuckDB:
		stmt.Query = "SELECT * FROM duckdb_functions() WHERE function_type = 'macro' AND function_name LIKE 'f_%';"
	default:
		err = b.unsupported("show functions")
	}

	return stmt, err
}
