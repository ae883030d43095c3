package silo

import (
	"slices"
	"time"
)

type ColumnType string

const (
	TypeString   ColumnType = "string"
	TypeInt      ColumnType = "int"
	TypeFloat    ColumnType = "float"
	TypeBool     ColumnType = "bool"
	TypeDate     ColumnType = "date"
	TypeDatetime ColumnType = "datetime"
)

func (t ColumnType) Valid() bool {
	switch t {
	case TypeString, TypeInt, TypeFloat, TypeBool, TypeDate, TypeDatetime:
		return true
	}
	return false
}

type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Зарезервированные колонки не показываются в видимом наборе.
var reservedColumns = map[string]struct{}{
	"user_assigned_id": {},
	"silo_id":          {},
	"read_id":          {},
	"created_date":     {},
	"editted_date":     {},
}

// IsReserved сообщает, входит ли колонка в зарезервированный набор.
func IsReserved(name string) bool {
	_, ok := reservedColumns[name]
	return ok
}

// Table — силос: именованная коллекция строк без фиксированной схемы
// плюс каталог колонок, уникальные ключи, формулы и фильтр строк.
type Table struct {
	ID          string          `json:"id"`
	Owner       string          `json:"owner"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Columns     []Column        `json:"columns"`
	Hidden      []string        `json:"hidden_columns"`
	RowFilter   []FilterGroup   `json:"row_filter"`
	UniqueKeys  []string        `json:"unique_fields"`
	Formulas    []FormulaColumn `json:"formula_columns"`
	Sources     []string        `json:"reads"`
	CreatedAt   time.Time       `json:"created_at"`
}

// FormulaColumn — производная колонка: операция над колонками строки.
type FormulaColumn struct {
	Operation string   `json:"operation"`
	Columns   []string `json:"mapping"`
	Name      string   `json:"column_name"`
}

func (t *Table) columnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func (t *Table) HasColumn(name string) bool { return t.columnIndex(name) >= 0 }

// Column возвращает объявленную колонку по имени.
func (t *Table) Column(name string) (Column, bool) {
	if i := t.columnIndex(name); i >= 0 {
		return t.Columns[i], true
	}
	return Column{}, false
}

// DeclareColumns добавляет ещё не объявленные колонки в порядке names.
// Тип берётся из types, по умолчанию string. Возвращает реально добавленные.
func (t *Table) DeclareColumns(names []string, types map[string]ColumnType) ([]string, error) {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, dup := seen[n]; dup {
			return nil, &DuplicateColumnError{Column: n}
		}
		seen[n] = struct{}{}
	}
	var added []string
	for _, n := range names {
		if t.HasColumn(n) {
			continue
		}
		typ := types[n]
		if typ == "" {
			typ = TypeString
		}
		t.Columns = append(t.Columns, Column{Name: n, Type: typ})
		added = append(added, n)
	}
	return added, nil
}

// ListAll — все объявленные колонки в порядке объявления.
func (t *Table) ListAll() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// ListVisible — объявленные минус скрытые минус зарезервированные.
func (t *Table) ListVisible() []string {
	out := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if IsReserved(c.Name) || slices.Contains(t.Hidden, c.Name) {
			continue
		}
		out = append(out, c.Name)
	}
	return out
}

func (t *Table) Hide(names []string) {
	for _, n := range names {
		if !slices.Contains(t.Hidden, n) {
			t.Hidden = append(t.Hidden, n)
		}
	}
}

func (t *Table) Unhide(names []string) {
	t.Hidden = slices.DeleteFunc(t.Hidden, func(h string) bool {
		return slices.Contains(names, h)
	})
}

// DeleteColumns убирает колонки из каталога (и из скрытых). Строки не трогаются.
func (t *Table) DeleteColumns(names []string) {
	t.Columns = slices.DeleteFunc(t.Columns, func(c Column) bool {
		return slices.Contains(names, c.Name)
	})
	t.Unhide(names)
}

// AddSource добавляет источник в упорядоченное множество.
func (t *Table) AddSource(id string) {
	if id == NoSource || slices.Contains(t.Sources, id) {
		return
	}
	t.Sources = append(t.Sources, id)
}

func (t *Table) Clone() *Table {
	c := *t
	c.Columns = slices.Clone(t.Columns)
	c.Hidden = slices.Clone(t.Hidden)
	c.RowFilter = slices.Clone(t.RowFilter)
	c.UniqueKeys = slices.Clone(t.UniqueKeys)
	c.Formulas = slices.Clone(t.Formulas)
	for i := range c.Formulas {
		c.Formulas[i].Columns = slices.Clone(c.Formulas[i].Columns)
	}
	c.Sources = slices.Clone(t.Sources)
	return &c
}
