package silo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeKey(t *testing.T) {
	cases := map[string]string{
		"":                "",
		"silo_id":         "silo_id",
		"id":              "user_assigned_id",
		"_id":             "user_assigned_id",
		"edit_date":       "editted_date",
		"create_date":     "created_date",
		"  first   name":  "first name",
		"gps.lat":         "gps_lat",
		"price$":          "priceUSD",
		"long…":           "long",
		"_private":        "sys_private",
		"e\u0301te\u0301": "\u00e9t\u00e9",
		"plain":           "plain",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeKey(in), "key %q", in)
	}
}

func TestNormalizeKeyIdempotent(t *testing.T) {
	for _, k := range []string{"first  name", "a.b.c", "_x", "$", "id", "edit_date", "case_id"} {
		once := NormalizeKey(k)
		assert.Equal(t, once, NormalizeKey(k), "deterministic for %q", k)
		if once != "user_assigned_id" {
			assert.Equal(t, once, NormalizeKey(once), "stable for %q", k)
		}
	}
}
