package silo

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Системные ключи строки: в Fields не сохраняются.
const (
	keySiloID = "silo_id"
	keyReadID = "read_id"
)

var keyReplacer = strings.NewReplacer(
	".", "_",
	"$", "USD",
	"…", "",
)

// NormalizeKey приводит имя поля к имени колонки.
// "" и silo_id возвращаются как есть: вызывающий их отбрасывает.
func NormalizeKey(key string) string {
	if key == "" || key == keySiloID {
		return key
	}
	k := norm.NFC.String(key)

	// 1) переименования, совместимые с уже сохранёнными данными
	switch k {
	case "id", "_id":
		return "user_assigned_id"
	case "edit_date":
		return "editted_date"
	case "create_date":
		return "created_date"
	}

	// 2) пробелы: схлопнуть и обрезать
	k = strings.Join(strings.Fields(k), " ")

	// 3) недопустимые символы
	k = keyReplacer.Replace(k)

	// 4) ведущее подчёркивание запрещено хранилищем
	if strings.HasPrefix(k, "_") {
		k = "sys" + k
	}
	return k
}
