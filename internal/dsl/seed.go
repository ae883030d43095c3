package dsl

import (
	"context"
	"errors"
	"fmt"

	"tolatables/internal/silo"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TableID — детерминированный ID таблицы из декларации (owner + name).
func TableID(owner, name string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("tolatables:table:"+owner+"/"+name)).String()
}

// ToTable строит silo.Table из декларации.
func (d *TableDecl) ToTable(defaultOwner string) *silo.Table {
	owner := d.Owner
	if owner == "" {
		owner = defaultOwner
	}
	t := &silo.Table{
		ID:          TableID(owner, d.Name),
		Owner:       owner,
		Name:        d.Name,
		Description: d.Description,
	}
	for _, c := range d.Columns {
		name := silo.NormalizeKey(c.Name)
		t.Columns = append(t.Columns, silo.Column{Name: name, Type: silo.ColumnType(c.Type)})
		if c.Hidden() {
			t.Hidden = append(t.Hidden, name)
		}
	}
	for _, k := range d.UniqueKeys {
		t.UniqueKeys = append(t.UniqueKeys, silo.NormalizeKey(k))
	}
	for _, f := range d.Formulas {
		cols := make([]string, len(f.Columns))
		for i, c := range f.Columns {
			cols[i] = silo.NormalizeKey(c)
		}
		t.Formulas = append(t.Formulas, silo.FormulaColumn{Operation: f.Operation, Columns: cols, Name: silo.NormalizeKey(f.Name)})
		t.Columns = append(t.Columns, silo.Column{Name: silo.NormalizeKey(f.Name), Type: silo.TypeFloat})
	}
	return t
}

// Seed создаёт объявленные таблицы, которых ещё нет; существующим
// добавляются недостающие колонки. Возвращает число созданных.
func Seed(ctx context.Context, eng *silo.Engine, decls []*TableDecl, defaultOwner string, log *zap.Logger) (int, error) {
	if log == nil {
		log = zap.NewNop()
	}
	created := 0
	for _, d := range decls {
		want := d.ToTable(defaultOwner)
		existing, err := eng.GetTable(ctx, want.ID)
		if err != nil && !errors.Is(err, silo.ErrTableNotFound) {
			return created, err
		}
		if err == nil {
			names := make([]string, 0, len(want.Columns))
			types := make(map[string]silo.ColumnType, len(want.Columns))
			for _, c := range want.Columns {
				if !existing.HasColumn(c.Name) {
					names = append(names, c.Name)
					types[c.Name] = c.Type
				}
			}
			if len(names) > 0 {
				if _, err := eng.DeclareColumns(ctx, want.ID, names, types); err != nil {
					return created, fmt.Errorf("table %s: %w", d.Name, err)
				}
			}
			continue
		}
		if _, err := eng.CreateTable(ctx, dedupColumns(want)); err != nil {
			return created, fmt.Errorf("table %s: %w", d.Name, err)
		}
		log.Info("Declared table created", zap.String("table", want.ID), zap.String("name", want.Name), zap.String("owner", want.Owner))
		created++
	}
	return created, nil
}

// dedupColumns: колонка формулы может совпасть с объявленной.
func dedupColumns(t *silo.Table) *silo.Table {
	seen := map[string]bool{}
	cols := t.Columns[:0:0]
	for _, c := range t.Columns {
		if seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		cols = append(cols, c)
	}
	t.Columns = cols
	return t
}
