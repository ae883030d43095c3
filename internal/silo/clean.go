package silo

import (
	"encoding/json"
	"html"
	"sort"
	"time"
)

// Clean рекурсивно очищает сырую запись:
// JSON-строки разбираются, прочие строки экранируются,
// ключи отображений проходят NormalizeKey.
func Clean(x any) any {
	if s, ok := x.(string); ok {
		if v, ok := parseJSONText(s); ok {
			return cleanParsed(v)
		}
		return html.EscapeString(s)
	}
	return cleanParsed(x)
}

// cleanParsed — как Clean, но строки больше не разбираются как JSON.
func cleanParsed(x any) any {
	switch t := x.(type) {
	case nil:
		return nil
	case string:
		return html.EscapeString(t)
	case Object:
		out := make(Object, 0, len(t))
		for _, p := range t {
			out = append(out, Pair{Key: NormalizeKey(p.Key), Value: Clean(p.Value)})
		}
		return out
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(Object, 0, len(t))
		for _, k := range keys {
			out = append(out, Pair{Key: NormalizeKey(k), Value: Clean(t[k])})
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Clean(e)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Clean(e)
		}
		return out
	case json.Number:
		return numberValue(t)
	case Value:
		if s, ok := t.AsString(); ok {
			return Clean(s)
		}
		return t.Native()
	case time.Time:
		return t.UTC()
	}
	return ValueOf(x).Native()
}

// FieldsOf превращает очищенное отображение в поля строки.
// Вложенные отображения разворачиваются через "/", последовательности
// хранятся JSON-текстом. Системные ключи отбрасываются; при совпадении
// нормализованных ключей побеждает первый.
func FieldsOf(cleaned any) (Fields, bool) {
	obj, ok := cleaned.(Object)
	if !ok {
		return Fields{}, false
	}
	var f Fields
	flattenInto(&f, "", obj)
	return f, true
}

func flattenInto(f *Fields, prefix string, obj Object) {
	for _, p := range obj {
		key := p.Key
		if prefix == "" {
			if isDroppedKey(key) {
				continue
			}
		} else {
			if key == "" {
				continue
			}
			key = prefix + "/" + key
		}
		switch v := p.Value.(type) {
		case Object:
			flattenInto(f, key, v)
			continue
		case []any:
			if f.Has(key) {
				continue
			}
			b, err := json.Marshal(v)
			if err != nil {
				f.Set(key, String("Error"))
				continue
			}
			f.Set(key, String(string(b)))
			continue
		}
		if f.Has(key) {
			continue
		}
		f.Set(key, ValueOf(p.Value))
	}
}

func isDroppedKey(k string) bool {
	return k == "" || k == keySiloID || k == keyReadID
}
