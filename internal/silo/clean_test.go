package silo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanScalars(t *testing.T) {
	assert.Equal(t, int64(40), Clean("40"))
	assert.Equal(t, 9.7, Clean("9.7"))
	assert.Equal(t, "1957-1980", Clean("1957-1980"))
	assert.Equal(t, "&lt;b&gt;Bob&lt;/b&gt;", Clean("<b>Bob</b>"))
	assert.Equal(t, true, Clean("true"))
	assert.Nil(t, Clean(nil))
}

func TestCleanParsesEmbeddedJSON(t *testing.T) {
	got := Clean(`{"first.name": "Bob", "tags": ["a", "1"]}`)
	obj, ok := got.(Object)
	require.True(t, ok)
	assert.Equal(t, []string{"first_name", "tags"}, obj.Keys())
	tags, _ := obj.Get("tags")
	assert.Equal(t, []any{"a", int64(1)}, tags)
}

func TestFieldsOf(t *testing.T) {
	raw := Object{
		{Key: "silo_id", Value: "x"},
		{Key: "read_id", Value: "y"},
		{Key: "", Value: "empty"},
		{Key: "id", Value: "H-1"},
		{Key: "age", Value: "40"},
		{Key: "gps", Value: Object{{Key: "lat", Value: "1.5"}, {Key: "lon", Value: 2}}},
		{Key: "tags", Value: []any{"a", "b"}},
		{Key: "first name", Value: "Bob"},
		{Key: "first  name", Value: "Robert"},
	}
	f, ok := FieldsOf(Clean(raw))
	require.True(t, ok)

	assert.Equal(t, []string{"user_assigned_id", "age", "gps/lat", "gps/lon", "tags", "first name"}, f.Keys())
	v, _ := f.Get("age")
	assert.Equal(t, Int(40), v)
	v, _ = f.Get("gps/lat")
	assert.Equal(t, Float(1.5), v)
	v, _ = f.Get("tags")
	assert.Equal(t, String(`["a","b"]`), v)
	v, _ = f.Get("first name")
	assert.Equal(t, String("Bob"), v, "first key wins")
}

func TestFieldsOfRejectsNonObject(t *testing.T) {
	_, ok := FieldsOf(Clean("hello"))
	assert.False(t, ok)
	_, ok = FieldsOf(Clean([]any{1, 2}))
	assert.False(t, ok)
}

func TestCleanMapSortsKeys(t *testing.T) {
	f, ok := FieldsOf(Clean(map[string]any{"b": "2", "a": "x"}))
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, f.Keys())
}
