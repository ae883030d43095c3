package silo

// ColumnCond — условие на одну колонку в духе $in/$nin:
// значение должно входить в In (если задан) и не входить в NotIn.
// Отсутствующее поле равно null, если не задан Exists или OrMissing.
// Exists: поле обязано быть. OrMissing: отсутствующее поле совпадает сразу.
type ColumnCond struct {
	Column    string  `json:"column"`
	In        []Value `json:"in,omitempty"`
	NotIn     []Value `json:"nin,omitempty"`
	Exists    bool    `json:"exists,omitempty"`
	OrMissing bool    `json:"or_missing,omitempty"`
}

func (c ColumnCond) Match(f *Fields) bool {
	v, ok := f.Get(c.Column)
	if !ok {
		if c.OrMissing {
			return true
		}
		if c.Exists {
			return false
		}
		v = Null()
	}
	if len(c.In) > 0 && !containsValue(c.In, v) {
		return false
	}
	if containsValue(c.NotIn, v) {
		return false
	}
	return true
}

// Predicate: все And и, если Or не пуст, хотя бы одно из Or.
// Пустой предикат совпадает со всем.
type Predicate struct {
	And []ColumnCond `json:"and,omitempty"`
	Or  []ColumnCond `json:"or,omitempty"`
}

func (p Predicate) IsEmpty() bool { return len(p.And) == 0 && len(p.Or) == 0 }

func (p Predicate) Match(r *Row) bool {
	for _, c := range p.And {
		if !c.Match(&r.Fields) {
			return false
		}
	}
	if len(p.Or) == 0 {
		return true
	}
	for _, c := range p.Or {
		if c.Match(&r.Fields) {
			return true
		}
	}
	return false
}

// Eq — условие равенства одному из вариантов значения.
func Eq(column string, v Value) ColumnCond {
	return ColumnCond{Column: column, In: Variants(v)}
}

// merge сливает условие той же колонки: списки складываются,
// Exists достаточно одного, OrMissing нужен обоим.
func (c *ColumnCond) merge(o ColumnCond) {
	c.In = append(c.In, o.In...)
	c.NotIn = append(c.NotIn, o.NotIn...)
	c.Exists = c.Exists || o.Exists
	c.OrMissing = c.OrMissing && o.OrMissing
}

// Variants — текстовые/числовые варианты значения: "1", 1.0, 1 совпадают друг с другом.
// Для "1" это ровно ["1", 1.0, 1]; "1.0" не входит.
func Variants(v Value) []Value {
	if v.IsNull() {
		return []Value{Null()}
	}
	out := []Value{v}
	text := v.Text()
	if v.Kind() != KindString {
		out = append(out, String(text))
	}
	if f, ok := v.Number(); ok {
		if v.Kind() != KindFloat {
			out = append(out, Float(f))
		}
		if f == float64(int64(f)) && v.Kind() != KindInt {
			out = append(out, Int(int64(f)))
		}
	}
	return out
}

func containsValue(set []Value, v Value) bool {
	for _, s := range set {
		if s.Equal(v) {
			return true
		}
	}
	return false
}
