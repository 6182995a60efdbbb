package store

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/linkage/internal/schema"
)

// column is one column definition of a generated table.
type column struct {
	name string
	def  string
}

// DDL derives CREATE TABLE statements for every type and join table of
// reg, sorted by table name. Statements use IF NOT EXISTS, so applying
// them is idempotent.
//
// Foreign keys use the default (restricting) delete action, so destroying
// a row that is still referenced fails with a constraint violation. Join
// rows cascade with either side.
func DDL(reg *schema.Registry) ([]string, error) {
	tables := make(map[string][]column)
	order := []string{}
	add := func(table string, c column) {
		if _, ok := tables[table]; !ok {
			order = append(order, table)
		}
		for _, existing := range tables[table] {
			if existing.name == c.name {
				return
			}
		}
		tables[table] = append(tables[table], c)
	}

	for _, t := range reg.Types() {
		add(t.Table, column{t.PrimaryKey, sqlType(t.KeyKind) + " PRIMARY KEY"})
		for _, a := range t.Attributes {
			def := sqlType(a.Kind)
			if a.NotNull {
				def += " NOT NULL"
			}
			if a.Unique {
				def += " UNIQUE"
			}
			add(t.Table, column{a.Name, def})
		}
	}

	var joins []string
	for _, t := range reg.Types() {
		for i := range t.Associations {
			a := &t.Associations[i]
			target, err := reg.Target(a)
			if err != nil {
				return nil, fmt.Errorf("ddl for %s.%s: %w", t.Name, a.Name, err)
			}
			switch {
			case a.Cardinality == schema.ToOne:
				add(t.Table, column{a.ForeignKey, references(target)})
			case a.Through != nil:
				joins = append(joins, joinTable(t, target, a.Through))
			case a.ForeignKey != "":
				add(target.Table, column{a.ForeignKey, references(t)})
			}
		}
	}

	slices.Sort(order)
	stmts := make([]string, 0, len(order)+len(joins))
	for _, table := range order {
		defs := make([]string, len(tables[table]))
		for i, c := range tables[table] {
			defs[i] = quote(c.name) + " " + c.def
		}
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(table), strings.Join(defs, ", ")))
	}
	slices.Sort(joins)
	return append(stmts, slices.Compact(joins)...), nil
}

// Migrate applies DDL(reg) in one transaction.
func (s *Store) Migrate(ctx context.Context, reg *schema.Registry) error {
	stmts, err := DDL(reg)
	if err != nil {
		return err
	}
	return s.Tx(ctx, func(ctx context.Context) error {
		for _, stmt := range stmts {
			if err := s.ExecRaw(ctx, stmt); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		return nil
	})
}

func joinTable(owner, member *schema.Type, j *schema.JoinTable) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s %s NOT NULL REFERENCES %s(%s) ON DELETE CASCADE, %s %s NOT NULL REFERENCES %s(%s) ON DELETE CASCADE, PRIMARY KEY (%s, %s))",
		quote(j.Table),
		quote(j.OwnerKey), sqlType(owner.KeyKind), quote(owner.Table), quote(owner.PrimaryKey),
		quote(j.MemberKey), sqlType(member.KeyKind), quote(member.Table), quote(member.PrimaryKey),
		quote(j.OwnerKey), quote(j.MemberKey))
}

func references(t *schema.Type) string {
	return fmt.Sprintf("%s REFERENCES %s(%s)", sqlType(t.KeyKind), quote(t.Table), quote(t.PrimaryKey))
}

func sqlType(k schema.Kind) string {
	switch k {
	case schema.KindInt, schema.KindBool:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

func quote(ident string) string {
	return `"` + ident + `"`
}
