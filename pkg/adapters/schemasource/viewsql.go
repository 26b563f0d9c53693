package schemasource

import (
	"fmt"
	"sort"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/mysql"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver" // value expressions
)

// ReferencedTables parses a view definition (a SELECT or a CREATE VIEW
// statement) and returns the distinct table names it reads from, sorted.
// Schema qualifiers are dropped and CTE names are excluded. With ansiQuotes,
// double-quoted identifiers are accepted.
func ReferencedTables(sql string, ansiQuotes bool) ([]string, error) {
	p := parser.New()
	if ansiQuotes {
		p.SetSQLMode(mysql.ModeANSIQuotes)
	}

	stmt, err := p.ParseOneStmt(sql, "", "")
	if err != nil {
		return nil, fmt.Errorf("failed to parse view definition: %w", err)
	}

	v := &tableCollector{tables: make(map[string]bool), ctes: make(map[string]bool)}
	if cv, ok := stmt.(*ast.CreateViewStmt); ok {
		if cv.ViewName != nil {
			v.self = cv.ViewName.Name.O
		}
		if cv.Select == nil {
			return nil, nil
		}
		cv.Select.Accept(v)
	} else {
		stmt.Accept(v)
	}

	names := make([]string, 0, len(v.tables))
	for name := range v.tables {
		if v.ctes[name] || name == v.self {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

type tableCollector struct {
	tables map[string]bool
	ctes   map[string]bool
	self   string
}

func (v *tableCollector) Enter(in ast.Node) (ast.Node, bool) {
	switch n := in.(type) {
	case *ast.WithClause:
		for _, cte := range n.CTEs {
			v.ctes[cte.Name.O] = true
		}
	case *ast.TableName:
		if n.Name.O != "" {
			v.tables[n.Name.O] = true
		}
	}
	return in, false
}

func (v *tableCollector) Leave(in ast.Node) (ast.Node, bool) {
	return in, true
}
