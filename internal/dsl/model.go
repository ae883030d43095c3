package dsl

// TableDecl описывает таблицу из DSL
type TableDecl struct {
	Owner       string
	Name        string
	Description string
	Columns     []ColumnDecl
	UniqueKeys  []string
	Formulas    []FormulaDecl
}

// ColumnDecl описывает колонку таблицы
type ColumnDecl struct {
	Name    string
	Type    string            // string, int, float, bool, date, datetime
	Options map[string]string // hidden и прочие флаги
}

func (c ColumnDecl) Hidden() bool { return c.Options["hidden"] == "true" }

// FormulaDecl — formula <op>(a, b) as <name>
type FormulaDecl struct {
	Operation string
	Columns   []string
	Name      string
}
