package silo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Fields — упорядоченное отображение колонка -> значение.
// Нулевое значение готово к работе.
type Fields struct {
	keys []string
	vals map[string]Value
}

// FieldsFrom собирает Fields из пар ключ/значение: FieldsFrom("a", 1, "b", "x").
func FieldsFrom(kv ...any) Fields {
	var f Fields
	for i := 0; i+1 < len(kv); i += 2 {
		k, _ := kv[i].(string)
		f.Set(k, ValueOf(kv[i+1]))
	}
	return f
}

func (f *Fields) Len() int { return len(f.keys) }

func (f *Fields) Get(key string) (Value, bool) {
	v, ok := f.vals[key]
	return v, ok
}

func (f *Fields) Has(key string) bool {
	_, ok := f.vals[key]
	return ok
}

// Set добавляет ключ в конец или перезаписывает значение на месте.
func (f *Fields) Set(key string, v Value) {
	if f.vals == nil {
		f.vals = make(map[string]Value)
	}
	if _, ok := f.vals[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.vals[key] = v
}

func (f *Fields) Delete(key string) bool {
	if _, ok := f.vals[key]; !ok {
		return false
	}
	delete(f.vals, key)
	for i, k := range f.keys {
		if k == key {
			f.keys = append(f.keys[:i], f.keys[i+1:]...)
			break
		}
	}
	return true
}

// Keys — копия ключей в порядке добавления.
func (f *Fields) Keys() []string {
	return append([]string(nil), f.keys...)
}

func (f *Fields) Clone() Fields {
	out := Fields{
		keys: append([]string(nil), f.keys...),
		vals: make(map[string]Value, len(f.vals)),
	}
	for k, v := range f.vals {
		out.vals[k] = v
	}
	return out
}

// Merge — поле-в-поле: значения из other перезаписывают текущие, прочие поля не трогаются.
func (f *Fields) Merge(other Fields) {
	for _, k := range other.keys {
		f.Set(k, other.vals[k])
	}
}

// Select оставляет только перечисленные колонки в заданном порядке.
func (f *Fields) Select(columns []string) Fields {
	var out Fields
	for _, c := range columns {
		if v, ok := f.vals[c]; ok {
			out.Set(c, v)
		}
	}
	return out
}

// Map — плоская карта (для ответов API).
func (f *Fields) Map() map[string]any {
	out := make(map[string]any, len(f.keys))
	for _, k := range f.keys {
		out[k] = f.vals[k].Native()
	}
	return out
}

func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range f.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := f.vals[k].MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (f *Fields) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("silo: fields must be a JSON object")
	}
	var out Fields
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := kt.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var v Value
		if err := v.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		out.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*f = out
	return nil
}

func (f Fields) String() string {
	parts := make([]string, 0, len(f.keys))
	for _, k := range f.keys {
		parts = append(parts, k+"="+f.vals[k].Text())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
