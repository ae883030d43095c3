package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"tolatables/internal/silo"
)

const utf8BOM = "\uFEFF"

// ReadCSV читает CSV с заголовком; каждая строка — silo.Object в порядке колонок.
// Пустые ячейки сохраняются как "", лишние ячейки получают имя col_N.
func ReadCSV(r io.Reader) ([]any, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return []any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var out []any
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		if blankRecord(rec) {
			continue
		}
		obj := make(silo.Object, 0, len(rec))
		for i, cell := range rec {
			obj = append(obj, silo.Pair{Key: headerKey(header, i), Value: cell})
		}
		out = append(out, obj)
	}
	if out == nil {
		out = []any{}
	}
	return out, nil
}

func headerKey(header []string, i int) string {
	if i < len(header) && header[i] != "" {
		return header[i]
	}
	return fmt.Sprintf("col_%d", i)
}

func blankRecord(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
