package pg

import (
	"encoding/json"
	"fmt"
	"strings"

	"tolatables/internal/silo"
)

// builder собирает позиционные параметры $1..$n.
type builder struct {
	args []any
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

// fieldExpr: значение поля как jsonb. Имя колонки идёт литералом, чтобы
// выражение совпадало с индексами уникальных ключей (data->'col').
func fieldExpr(column string) string { return "data->" + sqlLiteral(column) }

func hasField(column string) string { return "data ? " + sqlLiteral(column) }

func valuesJSON(vs []silo.Value) (string, error) {
	raw, err := json.Marshal(vs)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func hasNull(vs []silo.Value) bool {
	for _, v := range vs {
		if v.IsNull() {
			return true
		}
	}
	return false
}

// cond: та же семантика, что у silo.ColumnCond.Match. Для присутствующего поля
// сравнение идёт напрямую, отсутствующее решается отдельно через "?".
func (b *builder) cond(c silo.ColumnCond) (string, error) {
	field := fieldExpr(c.Column)
	var parts []string
	if len(c.In) > 0 {
		set, err := valuesJSON(c.In)
		if err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf("%s = any(array(select jsonb_array_elements(%s::jsonb)))", field, b.arg(set)))
	}
	if len(c.NotIn) > 0 {
		set, err := valuesJSON(c.NotIn)
		if err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf("%s <> all(array(select jsonb_array_elements(%s::jsonb)))", field, b.arg(set)))
	}

	missing := (len(c.In) == 0 || hasNull(c.In)) && !hasNull(c.NotIn)
	switch {
	case c.OrMissing:
		missing = true
	case c.Exists:
		missing = false
	}

	if len(parts) == 0 {
		if missing {
			return "true", nil
		}
		return "(" + hasField(c.Column) + ")", nil
	}
	body := strings.Join(parts, " and ")
	if missing {
		return "(not (" + hasField(c.Column) + ") or " + body + ")", nil
	}
	return "(" + hasField(c.Column) + " and " + body + ")", nil
}

// where: условие по таблице и предикату. table_id идёт литералом:
// так частичные индексы уникальных ключей подходят и для общего плана.
func (b *builder) where(tableID string, p silo.Predicate) (string, error) {
	clauses := []string{"table_id = " + sqlLiteral(tableID)}
	for _, c := range p.And {
		s, err := b.cond(c)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, s)
	}
	if len(p.Or) > 0 {
		ors := make([]string, 0, len(p.Or))
		for _, c := range p.Or {
			s, err := b.cond(c)
			if err != nil {
				return "", err
			}
			ors = append(ors, s)
		}
		clauses = append(clauses, "("+strings.Join(ors, " or ")+")")
	}
	return strings.Join(clauses, " and "), nil
}

// orderBy: ключи сортировки, затем порядок вставки; отсутствующее поле равно null.
func (b *builder) orderBy(keys []silo.SortKey) string {
	var parts []string
	for _, k := range keys {
		if k.Column == "" {
			continue
		}
		dir := "asc"
		if k.Desc {
			dir = "desc"
		}
		parts = append(parts, "coalesce("+fieldExpr(k.Column)+", 'null'::jsonb) "+dir)
	}
	parts = append(parts, "seq asc")
	return strings.Join(parts, ", ")
}
