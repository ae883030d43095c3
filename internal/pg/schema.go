package pg

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"tolatables/internal/silo"

	"github.com/zeebo/xxh3"
)

const (
	rowsTable   = "silo_rows"
	tablesTable = "silo_tables"
)

// BaseDDL: таблица строк и её общие индексы. Таблица каталога создаётся gorm.
func BaseDDL() map[string]string {
	return map[string]string{
		"000_rows": `create table if not exists silo_rows (
  "seq" bigserial not null,
  "id" text primary key,
  "table_id" text not null,
  "source_id" text not null default '',
  "created_at" timestamp with time zone not null,
  "edited_at" timestamp with time zone not null,
  "keys" jsonb not null default '[]'::jsonb,
  "data" jsonb not null default '{}'::jsonb
);`,
		"010_rows_table_idx": `create index if not exists silo_rows_table_seq_idx on silo_rows(table_id, seq);`,
		"020_rows_data_gin":  `create index if not exists silo_rows_data_gin on silo_rows using gin (data);`,
	}
}

var identUnsafe = regexp.MustCompile(`[^a-z0-9_]+`)

// safeIndexName: имя индекса из произвольного текста (до 63 байт).
func safeIndexName(parts ...string) string {
	s := identUnsafe.ReplaceAllString(strings.ToLower(strings.Join(parts, "_")), "_")
	s = strings.Trim(s, "_")
	if len(s) > 63 {
		s = s[:63]
	}
	return s
}

func sqlLiteral(s string) string { return "'" + strings.ReplaceAll(s, "'", "''") + "'" }

// keyIndexPrefix: общее начало имён индексов уникальных ключей таблицы.
func keyIndexPrefix(tableID string) string {
	return safeIndexName("silo_uk", strings.ReplaceAll(tableID, "-", "")) + "_"
}

// uniqueKeyIndexName: имя индекса для набора ключей; пустой набор — без индекса.
func uniqueKeyIndexName(tableID string, keys []string) string {
	if len(keys) == 0 {
		return ""
	}
	sum := fmt.Sprintf("%016x", xxh3.HashString(strings.Join(keys, "\x00")))
	return safeIndexName(keyIndexPrefix(tableID) + sum[:8])
}

// UniqueKeyDDL: частичные индексы поиска по уникальным ключам таблиц.
// Имя индекса зависит от набора ключей; ключ map — "100_<table id>".
func UniqueKeyDDL(tables []*silo.Table) map[string]string {
	sorted := append([]*silo.Table(nil), tables...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	out := make(map[string]string, len(sorted))
	for _, t := range sorted {
		if len(t.UniqueKeys) == 0 {
			continue
		}
		exprs := make([]string, len(t.UniqueKeys))
		for i, k := range t.UniqueKeys {
			exprs[i] = fmt.Sprintf("(data->%s)", sqlLiteral(k))
		}
		out["100_"+t.ID] = fmt.Sprintf("create index if not exists %s on silo_rows(%s) where table_id = %s;",
			uniqueKeyIndexName(t.ID, t.UniqueKeys), strings.Join(exprs, ", "), sqlLiteral(t.ID))
	}
	return out
}
