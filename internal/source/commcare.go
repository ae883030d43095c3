package source

import (
	"sort"

	"tolatables/internal/silo"
)

// FlattenCommCare разворачивает записи кейсов CommCare: поля из "properties"
// поднимаются на верхний уровень, вложенный case_id становится user_case_id.
// Ключи верхнего уровня записи имеют приоритет над свойствами.
func FlattenCommCare(records []any) []any {
	out := make([]any, 0, len(records))
	for _, rec := range records {
		obj, ok := asObject(rec)
		if !ok {
			out = append(out, rec)
			continue
		}
		out = append(out, flattenCase(obj))
	}
	return out
}

func flattenCase(obj silo.Object) silo.Object {
	var (
		top   silo.Object
		props silo.Object
	)
	for _, p := range obj {
		if p.Key == "properties" {
			if po, ok := asObject(p.Value); ok {
				props = po
				continue
			}
		}
		top = append(top, p)
	}
	seen := make(map[string]struct{}, len(top))
	for _, p := range top {
		seen[p.Key] = struct{}{}
	}
	out := append(silo.Object{}, top...)
	for _, p := range props {
		key := p.Key
		if key == "case_id" {
			key = "user_case_id"
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, silo.Pair{Key: key, Value: p.Value})
	}
	return out
}

// asObject принимает сырое отображение: silo.Object или map (ключи по алфавиту).
func asObject(x any) (silo.Object, bool) {
	switch t := x.(type) {
	case silo.Object:
		return t, true
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(silo.Object, 0, len(keys))
		for _, k := range keys {
			out = append(out, silo.Pair{Key: k, Value: t[k]})
		}
		return out, true
	}
	return nil, false
}
