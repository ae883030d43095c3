package api

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"tolatables/internal/silo"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
)

// parseListParams: _limit/_offset/_sort (и без подчёркивания), filter= — JSON-список групп.
// Без filter действует сохранённый фильтр таблицы; filter=[] — без фильтра.
func parseListParams(q url.Values) (silo.Query, error) {
	out := silo.Query{Limit: defaultLimit}

	// limit
	lv := q.Get("_limit")
	if lv == "" {
		lv = q.Get("limit")
	}
	if lv != "" {
		n, err := strconv.Atoi(lv)
		if err != nil || n < 0 || n > maxLimit {
			return out, fmt.Errorf("_limit must be between 0 and %d", maxLimit)
		}
		out.Limit = n
	}

	// offset
	ov := q.Get("_offset")
	if ov == "" {
		ov = q.Get("offset")
	}
	if ov != "" {
		n, err := strconv.Atoi(ov)
		if err != nil || n < 0 {
			return out, fmt.Errorf("_offset must be a non-negative integer")
		}
		out.Offset = n
	}

	// sort: "-a,b" — a по убыванию, затем b
	sv := strings.TrimSpace(q.Get("_sort"))
	if sv == "" {
		sv = strings.TrimSpace(q.Get("sort"))
	}
	for _, p := range strings.Split(sv, ",") {
		p = strings.TrimSpace(p)
		desc := false
		if strings.HasPrefix(p, "-") {
			desc = true
			p = strings.TrimPrefix(p, "-")
		} else {
			p = strings.TrimPrefix(p, "+")
		}
		if p = silo.NormalizeKey(p); p != "" {
			out.Sort = append(out.Sort, silo.SortKey{Column: p, Desc: desc})
		}
	}

	// filter
	if fv, ok := q["filter"]; ok && len(fv) > 0 {
		groups := []silo.FilterGroup{}
		if strings.TrimSpace(fv[0]) != "" {
			if err := json.Unmarshal([]byte(fv[0]), &groups); err != nil {
				return out, fmt.Errorf("filter: %w", err)
			}
		}
		groups = normalizedFilter(groups)
		out.Filter = &groups
	}
	return out, nil
}
