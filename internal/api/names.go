package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tolatables/internal/silo"
)

var errAmbiguousName = errors.New("table name is ambiguous, use the id")

func equalFoldTrim(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// resolveTable находит таблицу по ссылке из URL: сначала по ID,
// затем по имени без учёта регистра. Имя должно быть уникальным
// среди таблиц владельца (owner == "" — среди всех).
func (s *Server) resolveTable(ctx context.Context, ref, owner string) (*silo.Table, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: empty reference", silo.ErrTableNotFound)
	}

	// 1) прямой ID
	t, err := s.eng.GetTable(ctx, ref)
	if err == nil {
		return t, nil
	}

	// 2) имя — только если ровно одно совпадение
	tables, lerr := s.eng.ListTables(ctx, owner)
	if lerr != nil {
		return nil, lerr
	}
	var found *silo.Table
	for _, cand := range tables {
		if !equalFoldTrim(cand.Name, ref) {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%w: %q", errAmbiguousName, ref)
		}
		found = cand
	}
	if found == nil {
		return nil, err
	}
	return found, nil
}
