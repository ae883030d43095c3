package reference

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestLoadSources(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "households.yaml", `
kind: CommCare
url: https://www.commcarehq.org/a/demo/api/v0.5/case/
username: ops@example.org
token: secret
page_size: 50
table: Households
`)
	writeFile(t, dir, "more.yml", `
sources:
  - name: prices
    kind: csv
    url: https://example.org/prices.csv
    schedule: Daily
  - id: fixed-id
    name: survey
    url: https://example.org/survey.json
`)
	writeFile(t, dir, "README.md", "ignored")

	got, err := LoadSources(dir)
	require.NoError(t, err)
	require.Len(t, got, 3)

	list := Sorted(got)
	assert.Equal(t, []string{"households", "prices", "survey"}, []string{list[0].Name, list[1].Name, list[2].Name})

	hh := list[0]
	assert.Equal(t, KindCommCare, hh.Kind)
	assert.Equal(t, ScheduleDisabled, hh.Schedule)
	assert.Equal(t, 50, hh.PageSize)
	assert.Equal(t, "secret", hh.Token)
	assert.NotEmpty(t, hh.ID)

	assert.Equal(t, ScheduleDaily, list[1].Schedule)
	assert.Equal(t, KindJSON, list[2].Kind)
	assert.Equal(t, "fixed-id", list[2].ID)

	again, err := LoadSources(dir)
	require.NoError(t, err)
	assert.Contains(t, again, hh.ID, "ids are derived from names")
}

func TestLoadSourcesErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.yaml", "kind: ftp\nurl: x\n")
	_, err := LoadSources(dir)
	assert.ErrorContains(t, err, "unknown kind")

	dir = t.TempDir()
	writeFile(t, dir, "a.yaml", "id: same\nname: a\n")
	writeFile(t, dir, "b.yaml", "id: same\nname: b\n")
	_, err = LoadSources(dir)
	assert.ErrorContains(t, err, "duplicate source id")

	_, err = LoadSources(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
