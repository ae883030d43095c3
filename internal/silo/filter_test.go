package silo

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterGroupJSON(t *testing.T) {
	var groups []FilterGroup
	raw := `[
		{"logic":"AND","operation":"eq","number":"1","conditional":["a","b"]},
		{"logic":"OR","operation":"neq","number":2,"conditional":"c"},
		{"logic":"BLANKCHAR","operation":"","number":"","conditional":"N/A"}
	]`
	require.NoError(t, json.Unmarshal([]byte(raw), &groups))
	require.Len(t, groups, 3)
	assert.Equal(t, []string{"a", "b"}, groups[0].Columns)
	assert.Equal(t, "2", groups[1].Number)
	assert.Equal(t, []string{"c"}, groups[1].Columns)
	assert.Equal(t, "N/A", groups[2].Blank)
	assert.Empty(t, groups[2].Columns)

	out, err := json.Marshal(groups[2])
	require.NoError(t, err)
	assert.JSONEq(t, `{"logic":"BLANKCHAR","operation":"","number":"","conditional":"N/A"}`, string(out))
}

func rowOf(kv ...any) *Row { return &Row{Fields: FieldsFrom(kv...)} }

func TestCompileFilterEq(t *testing.T) {
	p, err := CompileFilter([]FilterGroup{{Logic: "AND", Operation: "eq", Number: "1", Columns: []string{"a", "b"}}})
	require.NoError(t, err)
	require.Len(t, p.And, 2)
	assert.True(t, p.Match(rowOf("a", 1, "b", 1)))
	assert.True(t, p.Match(rowOf("a", "1", "b", 1.0)))
	assert.False(t, p.Match(rowOf("a", 2, "b", 2)))
	assert.False(t, p.Match(rowOf("a", 1)))
}

func TestCompileFilterAndAccumulates(t *testing.T) {
	p, err := CompileFilter([]FilterGroup{
		{Logic: "AND", Operation: "nempty", Columns: []string{"a"}},
		{Logic: "and", Operation: "neq", Number: "5", Columns: []string{"a"}},
	})
	require.NoError(t, err)
	require.Len(t, p.And, 1)
	assert.True(t, p.Match(rowOf("a", 4)))
	assert.False(t, p.Match(rowOf("a", 5)))
	assert.False(t, p.Match(rowOf("a", "")))
	assert.False(t, p.Match(rowOf("b", 1)), "missing field is blank")
}

func TestCompileFilterFlatOr(t *testing.T) {
	p, err := CompileFilter([]FilterGroup{
		{Logic: "OR", Operation: "eq", Number: "1", Columns: []string{"a", "b"}},
		{Logic: "OR", Operation: "empty", Columns: []string{"c", "d"}},
	})
	require.NoError(t, err)
	assert.Empty(t, p.And)
	assert.Len(t, p.Or, 4)
	assert.True(t, p.Match(rowOf("a", 0, "b", 1, "c", "x", "d", "y")))
	assert.True(t, p.Match(rowOf("a", 0, "b", 0, "c", "x")))
	assert.False(t, p.Match(rowOf("a", 0, "b", 0, "c", "x", "d", "y")))
}

func TestCompileFilterBlankCharAnywhere(t *testing.T) {
	p, err := CompileFilter([]FilterGroup{
		{Logic: "AND", Operation: "empty", Columns: []string{"a"}},
		{Logic: "BLANKCHAR", Blank: "N/A"},
	})
	require.NoError(t, err)
	assert.True(t, p.Match(rowOf("a", "N/A")))
	assert.True(t, p.Match(rowOf("a", "")))
	assert.True(t, p.Match(rowOf("b", 1)))
	assert.False(t, p.Match(rowOf("a", "x")))
}

func TestCompileFilterErrors(t *testing.T) {
	_, err := CompileFilter([]FilterGroup{{Logic: "XOR", Operation: "eq", Columns: []string{"a"}}})
	assert.Error(t, err)

	_, err = CompileFilter([]FilterGroup{{Logic: "AND", Operation: "gt", Columns: []string{"a"}}})
	var opErr *UnknownOperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "gt", opErr.Op)

	p, err := CompileFilter(nil)
	require.NoError(t, err)
	assert.True(t, p.IsEmpty())
}

func TestCompileFilterOrAccumulates(t *testing.T) {
	p, err := CompileFilter([]FilterGroup{
		{Logic: "AND", Operation: "neq", Number: "0", Columns: []string{"b"}},
		{Logic: "AND", Operation: "neq", Number: "1", Columns: []string{"b"}},
		{Logic: "OR", Operation: "neq", Number: "2", Columns: []string{"b"}},
		{Logic: "OR", Operation: "neq", Number: "3", Columns: []string{"b"}},
	})
	require.NoError(t, err)
	require.Len(t, p.And, 1)
	require.Len(t, p.Or, 1)
	assert.Equal(t, []Value{String("0"), Float(0), Int(0), String("1"), Float(1), Int(1)}, p.And[0].NotIn)
	assert.Equal(t, []Value{String("2"), Float(2), Int(2), String("3"), Float(3), Int(3)}, p.Or[0].NotIn)

	assert.True(t, p.Match(rowOf("b", 4)))
	assert.False(t, p.Match(rowOf("b", 2)))
	assert.False(t, p.Match(rowOf("b", "3")))
	assert.False(t, p.Match(rowOf("b", 1)))
	assert.True(t, p.Match(rowOf("a", 1)), "missing field is outside every $nin")
}

// Наборы групп из прежней реализации QueryMaker: BLANKCHAR "---",
// AND по колонкам a, b и OR по колонкам c, d.
func TestCompileFilterQueryMakerCases(t *testing.T) {
	groups := func(op, andNum, orNum string) []FilterGroup {
		return []FilterGroup{
			{Logic: "BLANKCHAR", Blank: "---"},
			{Logic: "AND", Operation: op, Number: andNum, Columns: []string{"a", "b"}},
			{Logic: "OR", Operation: op, Number: orNum, Columns: []string{"c", "d"}},
		}
	}
	cases := []struct {
		name   string
		groups []FilterGroup
		row    *Row
		match  bool
	}{
		{"empty/all blank", groups("empty", "", ""), rowOf("a", "", "b", "---", "c", ""), true},
		{"empty/missing is blank", groups("empty", "", ""), rowOf("d", "---"), true},
		{"empty/and not blank", groups("empty", "", ""), rowOf("a", "x", "b", "", "c", ""), false},
		{"empty/no or blank", groups("empty", "", ""), rowOf("a", "", "b", "", "c", "x", "d", 0), false},
		{"empty/stored null", groups("empty", "", ""), rowOf("a", nil, "b", "", "c", ""), false},

		{"nempty/all set", groups("nempty", "", ""), rowOf("a", 1, "b", "x", "c", "y"), true},
		{"nempty/stored null", groups("nempty", "", ""), rowOf("a", nil, "b", "x", "d", "y"), true},
		{"nempty/missing", groups("nempty", "", ""), rowOf("b", "x", "c", "y"), false},
		{"nempty/blank char", groups("nempty", "", ""), rowOf("a", "---", "b", "x", "c", "y"), false},
		{"nempty/or all blank", groups("nempty", "", ""), rowOf("a", 1, "b", 2, "c", "", "d", "---"), false},

		{"eq/mixed kinds", groups("eq", "0", "0"), rowOf("a", 0, "b", "0", "d", 0.0), true},
		{"eq/and differs", groups("eq", "0", "0"), rowOf("a", 1, "b", 0, "c", 0), false},
		{"eq/and missing", groups("eq", "0", "0"), rowOf("b", 0, "c", 0), false},
		{"eq/no or", groups("eq", "0", "0"), rowOf("a", 0, "b", 0, "c", 1), false},
		{"eq/text spelling", groups("eq", "0", "0"), rowOf("a", "0.0", "b", 0, "c", 0), false},

		{"neq/others", groups("neq", "-1", "15"), rowOf("a", 0, "b", "x", "c", 14), true},
		{"neq/missing", groups("neq", "-1", "15"), rowOf("c", 1), true},
		{"neq/and hit", groups("neq", "-1", "15"), rowOf("a", -1.0, "c", 1), false},
		{"neq/or all hit", groups("neq", "-1", "15"), rowOf("a", 0, "c", "15", "d", 15), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := CompileFilter(tc.groups)
			require.NoError(t, err)
			require.Len(t, p.And, 2)
			require.Len(t, p.Or, 2)
			assert.Equal(t, tc.match, p.Match(tc.row))
		})
	}
}

func TestCompileFilterNullIsNotBlank(t *testing.T) {
	p, err := CompileFilter([]FilterGroup{{Logic: "AND", Operation: "empty", Columns: []string{"a"}}})
	require.NoError(t, err)
	require.Len(t, p.And, 1)
	assert.Equal(t, []Value{String("")}, p.And[0].In)
	assert.True(t, p.And[0].OrMissing)
	assert.False(t, p.Match(rowOf("a", nil)))
	assert.True(t, p.Match(rowOf("b", nil)))
}
