package silo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Логика группы фильтра.
const (
	LogicAnd       = "AND"
	LogicOr        = "OR"
	LogicBlankChar = "BLANKCHAR"
)

// Операции группы фильтра.
const (
	OpEmpty    = "empty"
	OpNotEmpty = "nempty"
	OpEq       = "eq"
	OpNeq      = "neq"
)

// FilterGroup — одна запись декларативного фильтра строк.
// Для BLANKCHAR поле conditional содержит строку-заменитель пустоты (Blank),
// для остальных — список колонок (Columns).
type FilterGroup struct {
	Logic     string   `json:"logic"`
	Operation string   `json:"operation"`
	Number    string   `json:"number"`
	Columns   []string `json:"-"`
	Blank     string   `json:"-"`
}

type filterGroupJSON struct {
	Logic       string          `json:"logic"`
	Operation   string          `json:"operation"`
	Number      json.RawMessage `json:"number,omitempty"`
	Conditional json.RawMessage `json:"conditional,omitempty"`
}

func (g *FilterGroup) UnmarshalJSON(b []byte) error {
	var raw filterGroupJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := FilterGroup{Logic: raw.Logic, Operation: raw.Operation}

	// number: строка или число
	if n := bytes.TrimSpace(raw.Number); len(n) > 0 && !bytes.Equal(n, []byte("null")) {
		if n[0] == '"' {
			if err := json.Unmarshal(n, &out.Number); err != nil {
				return fmt.Errorf("filter number: %w", err)
			}
		} else {
			out.Number = string(n)
		}
	}

	// conditional: список колонок или строка
	if c := bytes.TrimSpace(raw.Conditional); len(c) > 0 && !bytes.Equal(c, []byte("null")) {
		switch c[0] {
		case '[':
			if err := json.Unmarshal(c, &out.Columns); err != nil {
				return fmt.Errorf("filter conditional: %w", err)
			}
		case '"':
			var s string
			if err := json.Unmarshal(c, &s); err != nil {
				return fmt.Errorf("filter conditional: %w", err)
			}
			if strings.EqualFold(out.Logic, LogicBlankChar) {
				out.Blank = s
			} else {
				out.Columns = []string{s}
			}
		default:
			return fmt.Errorf("filter conditional must be a list or a string")
		}
	}
	*g = out
	return nil
}

func (g FilterGroup) MarshalJSON() ([]byte, error) {
	var cond any = g.Columns
	if strings.EqualFold(g.Logic, LogicBlankChar) {
		cond = g.Blank
	} else if g.Columns == nil {
		cond = []string{}
	}
	return json.Marshal(struct {
		Logic       string `json:"logic"`
		Operation   string `json:"operation"`
		Number      string `json:"number"`
		Conditional any    `json:"conditional"`
	}{g.Logic, g.Operation, g.Number, cond})
}

// CompileFilter компилирует список групп в Predicate.
// BLANKCHAR собираются первым проходом, поэтому их позиция в списке не важна.
// Условия одной колонки сливаются отдельно внутри AND и внутри OR.
// Пустое значение: "" или BLANKCHAR; отсутствующее поле тоже пустое,
// а сохранённый null — нет.
func CompileFilter(groups []FilterGroup) (Predicate, error) {
	var p Predicate
	if len(groups) == 0 {
		return p, nil
	}

	// 1) пустые значения: "" и все BLANKCHAR
	blanks := []Value{String("")}
	for _, g := range groups {
		if strings.EqualFold(g.Logic, LogicBlankChar) {
			if g.Blank != "" {
				blanks = append(blanks, String(g.Blank))
			}
		}
	}

	// 2) условия копятся по колонке
	andIdx := map[string]int{}
	orIdx := map[string]int{}
	for i, g := range groups {
		logic := strings.ToUpper(strings.TrimSpace(g.Logic))
		switch logic {
		case LogicBlankChar:
			continue
		case LogicAnd, LogicOr:
		default:
			return Predicate{}, fmt.Errorf("filter group %d: unknown logic %q", i, g.Logic)
		}
		for _, col := range g.Columns {
			cond, err := groupCond(g, col, blanks)
			if err != nil {
				return Predicate{}, fmt.Errorf("filter group %d: %w", i, err)
			}
			if logic == LogicOr {
				if j, ok := orIdx[col]; ok {
					p.Or[j].merge(cond)
					continue
				}
				orIdx[col] = len(p.Or)
				p.Or = append(p.Or, cond)
				continue
			}
			if j, ok := andIdx[col]; ok {
				p.And[j].merge(cond)
				continue
			}
			andIdx[col] = len(p.And)
			p.And = append(p.And, cond)
		}
	}
	return p, nil
}

func groupCond(g FilterGroup, col string, blanks []Value) (ColumnCond, error) {
	c := ColumnCond{Column: col}
	switch strings.ToLower(strings.TrimSpace(g.Operation)) {
	case OpEmpty:
		c.In = append([]Value(nil), blanks...)
		c.OrMissing = true
	case OpNotEmpty:
		c.NotIn = append([]Value(nil), blanks...)
		c.Exists = true
	case OpEq:
		c.In = Variants(String(g.Number))
	case OpNeq:
		c.NotIn = Variants(String(g.Number))
	default:
		return c, &UnknownOperationError{Op: g.Operation}
	}
	return c, nil
}
