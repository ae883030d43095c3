package pg

import (
	"strings"
	"testing"

	"tolatables/internal/silo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderWhere(t *testing.T) {
	var b builder
	p := silo.Predicate{
		And: []silo.ColumnCond{{Column: "village", In: []silo.Value{silo.String("A")}}},
		Or: []silo.ColumnCond{
			{Column: "x", NotIn: []silo.Value{silo.Null(), silo.String("")}},
			{Column: "y", In: []silo.Value{silo.Int(1)}},
		},
	}
	where, err := b.where("t1", p)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(where, "table_id = 't1' and "))
	assert.Contains(t, where, "(data ? 'village' and data->'village' = any(array(select jsonb_array_elements($1::jsonb))))")
	assert.Contains(t, where, "(data ? 'x' and data->'x' <> all(array(select jsonb_array_elements($2::jsonb))))")
	assert.Contains(t, where, " or ")
	require.Len(t, b.args, 3)
	assert.Equal(t, `["A"]`, b.args[0])
	assert.Equal(t, `[null,""]`, b.args[1])
}

func TestBuilderMissingField(t *testing.T) {
	cases := []struct {
		name string
		cond silo.ColumnCond
		want string
	}{
		{"in", silo.ColumnCond{Column: "a", In: []silo.Value{silo.Int(1)}},
			"(data ? 'a' and data->'a' = any(array(select jsonb_array_elements($1::jsonb))))"},
		{"in null", silo.ColumnCond{Column: "a", In: []silo.Value{silo.Null()}},
			"(not (data ? 'a') or data->'a' = any(array(select jsonb_array_elements($1::jsonb))))"},
		{"not in", silo.ColumnCond{Column: "a", NotIn: []silo.Value{silo.Int(1)}},
			"(not (data ? 'a') or data->'a' <> all(array(select jsonb_array_elements($1::jsonb))))"},
		{"or missing", silo.ColumnCond{Column: "a", In: []silo.Value{silo.String("")}, OrMissing: true},
			"(not (data ? 'a') or data->'a' = any(array(select jsonb_array_elements($1::jsonb))))"},
		{"exists", silo.ColumnCond{Column: "a", NotIn: []silo.Value{silo.String("")}, Exists: true},
			"(data ? 'a' and data->'a' <> all(array(select jsonb_array_elements($1::jsonb))))"},
		{"exists only", silo.ColumnCond{Column: "a", Exists: true}, "(data ? 'a')"},
		{"quoted", silo.ColumnCond{Column: "o'k", NotIn: []silo.Value{silo.Null()}},
			"(data ? 'o''k' and data->'o''k' <> all(array(select jsonb_array_elements($1::jsonb))))"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var b builder
			got, err := b.cond(tc.cond)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestBuilderKeyLookupMatchesIndex(t *testing.T) {
	tbl := &silo.Table{ID: "b-2", UniqueKeys: []string{"case_id"}}
	var b builder
	where, err := b.where(tbl.ID, silo.Predicate{And: []silo.ColumnCond{silo.Eq("case_id", silo.String("7"))}})
	require.NoError(t, err)

	idx := UniqueKeyDDL([]*silo.Table{tbl})["100_b-2"]
	assert.Contains(t, idx, "("+fieldExpr("case_id")+")")
	assert.Contains(t, idx, "where table_id = 'b-2'")
	assert.Contains(t, where, "table_id = 'b-2'")
	assert.Contains(t, where, fieldExpr("case_id")+" = any(")
	assert.NotContains(t, where, "coalesce")
}

func TestBuilderEmptyPredicate(t *testing.T) {
	var b builder
	where, err := b.where("t1", silo.Predicate{})
	require.NoError(t, err)
	assert.Equal(t, "table_id = 't1'", where)
	assert.Empty(t, b.args)
}

func TestBuilderOrderBy(t *testing.T) {
	var b builder
	got := b.orderBy([]silo.SortKey{{Column: "age", Desc: true}, {Column: ""}, {Column: "name"}})
	assert.Equal(t, "coalesce(data->'age', 'null'::jsonb) desc, coalesce(data->'name', 'null'::jsonb) asc, seq asc", got)
	assert.Empty(t, b.args)
}

func TestUniqueKeyDDL(t *testing.T) {
	tables := []*silo.Table{
		{ID: "b-2", UniqueKeys: []string{"case_id"}},
		{ID: "a-1"},
		{ID: "c'3", UniqueKeys: []string{"x", "y"}},
	}
	ddl := UniqueKeyDDL(tables)
	require.Len(t, ddl, 2)
	assert.Contains(t, ddl["100_b-2"], "on silo_rows((data->'case_id')) where table_id = 'b-2';")
	assert.Contains(t, ddl["100_c'3"], "(data->'x'), (data->'y')")
	assert.Contains(t, ddl["100_c'3"], "where table_id = 'c''3';")

	again := UniqueKeyDDL([]*silo.Table{{ID: "b-2", UniqueKeys: []string{"other"}}})
	assert.NotEqual(t, ddl["100_b-2"], again["100_b-2"], "index name follows the key set")
}

func TestDecodeFieldsKeepsOrder(t *testing.T) {
	f, err := decodeFields([]byte(`["b","a"]`), []byte(`{"a": 1, "b": "x", "z": true}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "z"}, f.Keys())
	v, _ := f.Get("a")
	assert.Equal(t, silo.Int(1), v)
}

func TestUniqueKeyIndexName(t *testing.T) {
	id := "0f9d2c3e-1111-4222-8333-944445555666"
	a := uniqueKeyIndexName(id, []string{"case_id"})
	b := uniqueKeyIndexName(id, []string{"case_id", "visit"})
	assert.True(t, strings.HasPrefix(a, keyIndexPrefix(id)))
	assert.True(t, strings.HasPrefix(b, keyIndexPrefix(id)))
	assert.NotEqual(t, a, b)
	assert.LessOrEqual(t, len(b), 63)
	assert.Empty(t, uniqueKeyIndexName(id, nil))
	assert.Contains(t, UniqueKeyDDL([]*silo.Table{{ID: id, UniqueKeys: []string{"case_id"}}})["100_"+id], "create index if not exists "+a+" ")
}
