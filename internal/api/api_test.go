package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tolatables/internal/memstore"
	"tolatables/internal/reference"
	"tolatables/internal/silo"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, o Options) (*Server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if o.Engine == nil {
		o.Engine = silo.NewEngine(memstore.New())
	}
	s := NewServer(o)
	return s, NewRouter(s)
}

func do(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func createTable(t *testing.T, r http.Handler, body string) string {
	t.Helper()
	w := do(t, r, http.MethodPost, "/api/tables", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[map[string]any](t, w)["id"].(string)
}

func TestCreateIngestAndList(t *testing.T) {
	_, r := newTestServer(t, Options{})
	id := createTable(t, r, `{"name":"Households","owner":"alice","columns":[{"name":"household_id","type":"int"}],"unique_fields":["household_id"]}`)

	w := do(t, r, http.MethodPost, "/api/tables/"+id+"/_ingest?read_id=r1", `[{"household_id":1,"village":"A"},{"household_id":2,"village":"B"},"x"]`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[silo.IngestResult](t, w)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, []string{"record 2 is not an object"}, res.Skipped)

	// одна запись без массива — обновление по ключу
	w = do(t, r, http.MethodPost, "/api/tables/"+id+"/_ingest?read_id=r1", `{"household_id":1,"village":"C"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, decode[silo.IngestResult](t, w).Updated)

	// по имени без учёта регистра
	w = do(t, r, http.MethodGet, "/api/tables/households/rows", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "2", w.Header().Get("X-Total-Count"))
	rows := decode[[]map[string]any](t, w)
	require.Len(t, rows, 2)
	assert.Equal(t, "C", rows[0]["village"])
	assert.Equal(t, "r1", rows[0]["read_id"])

	// служебные поля первыми, поля строки в порядке каталога
	body := w.Body.String()
	assert.True(t, strings.HasPrefix(body, `[{"id":"`))
	assert.Less(t, strings.Index(body, `"household_id"`), strings.Index(body, `"village"`))

	w = do(t, r, http.MethodGet, "/api/tables/"+id+"/rows?_limit=1", "")
	assert.Equal(t, "2", w.Header().Get("X-Total-Count"))
	assert.Len(t, decode[[]map[string]any](t, w), 1)

	w = do(t, r, http.MethodGet, "/api/tables/"+id+"/_count", "")
	assert.Equal(t, float64(2), decode[map[string]any](t, w)["total"])
}

func TestIngestRejectsScalarBody(t *testing.T) {
	_, r := newTestServer(t, Options{})
	id := createTable(t, r, `{"name":"t"}`)
	w := do(t, r, http.MethodPost, "/api/tables/"+id+"/_ingest", `42`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, r, http.MethodPost, "/api/tables/"+id+"/_ingest", `{`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateTableValidation(t *testing.T) {
	_, r := newTestServer(t, Options{})
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/api/tables", `{"owner":"a"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/api/tables", `{"name":"x","columns":[{"name":"a","type":"blob"}]}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/api/tables", `{"name":"x","formula_columns":[{"operation":"cube","mapping":["a"]}]}`).Code)
}

func TestRowEndpoints(t *testing.T) {
	_, r := newTestServer(t, Options{})
	id := createTable(t, r, `{"name":"visits"}`)
	do(t, r, http.MethodPost, "/api/tables/"+id+"/_ingest", `[{"village":"A","n":1}]`)

	rows := decode[[]map[string]any](t, do(t, r, http.MethodGet, "/api/tables/"+id+"/rows", ""))
	require.Len(t, rows, 1)
	rowID := rows[0]["id"].(string)

	w := do(t, r, http.MethodGet, "/api/tables/"+id+"/rows/"+rowID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "A", decode[map[string]any](t, w)["village"])

	w = do(t, r, http.MethodPatch, "/api/tables/"+id+"/rows/"+rowID, `{"village":"Z"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Z", decode[map[string]any](t, w)["village"])

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPatch, "/api/tables/"+id+"/rows/"+rowID, `[1]`).Code)

	assert.Equal(t, http.StatusNoContent, do(t, r, http.MethodDelete, "/api/tables/"+id+"/rows/"+rowID, "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/api/tables/"+id+"/rows/"+rowID, "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodDelete, "/api/tables/"+id+"/rows/"+rowID, "").Code)
}

func TestResolveTableByName(t *testing.T) {
	_, r := newTestServer(t, Options{})
	createTable(t, r, `{"name":"Dup","owner":"a"}`)
	createTable(t, r, `{"name":"Dup","owner":"b"}`)

	assert.Equal(t, http.StatusConflict, do(t, r, http.MethodGet, "/api/tables/dup", "").Code)
	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/api/tables/dup?owner=a", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/api/tables/nope", "").Code)

	w := do(t, r, http.MethodGet, "/api/tables?owner=b", "")
	assert.Equal(t, "1", w.Header().Get("X-Total-Count"))
}

func TestDeleteTable(t *testing.T) {
	_, r := newTestServer(t, Options{})
	id := createTable(t, r, `{"name":"gone"}`)
	assert.Equal(t, http.StatusNoContent, do(t, r, http.MethodDelete, "/api/tables/"+id, "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/api/tables/"+id, "").Code)
}

func TestColumnCatalogEndpoints(t *testing.T) {
	_, r := newTestServer(t, Options{})
	id := createTable(t, r, `{"name":"cat","columns":[{"name":"a","type":"int"},{"name":"b","type":"int"}]}`)

	w := do(t, r, http.MethodPost, "/api/tables/"+id+"/columns", `{"columns":[{"name":"c"},{"name":"a"}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []any{"c"}, decode[map[string]any](t, w)["added"])

	w = do(t, r, http.MethodPost, "/api/tables/"+id+"/columns/_hide", `{"columns":["b"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"a", "c"}, decode[map[string]any](t, w)["visible_columns"])

	w = do(t, r, http.MethodPost, "/api/tables/"+id+"/columns/_unhide", `{"columns":["b"]}`)
	assert.Equal(t, []any{"a", "b", "c"}, decode[map[string]any](t, w)["visible_columns"])

	w = do(t, r, http.MethodPost, "/api/tables/"+id+"/formulas", `{"operation":"sum","mapping":["a","b"],"column_name":"total"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decode[map[string]any](t, w)["formula_columns"], 1)

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/api/tables/"+id+"/formulas", `{"operation":"cube","mapping":["a"]}`).Code)

	w = do(t, r, http.MethodPut, "/api/tables/"+id+"/row_filter", `[{"logic":"AND","operation":"eq","number":"1","conditional":["a"]}]`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, r, http.MethodPut, "/api/tables/"+id+"/unique_fields", `{"unique_fields":["a"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"a"}, decode[map[string]any](t, w)["unique_fields"])

	w = do(t, r, http.MethodGet, "/api/tables/"+id+"/_lint", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[map[string]any](t, w)["issues"])

	w = do(t, r, http.MethodDelete, "/api/tables/"+id+"/columns", `{"columns":["c"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, decode[map[string]any](t, w)["visible_columns"], "c")
}

func TestSetColumnTypeEndpoint(t *testing.T) {
	_, r := newTestServer(t, Options{})
	id := createTable(t, r, `{"name":"types"}`)
	do(t, r, http.MethodPost, "/api/tables/"+id+"/_ingest", `[{"n":"abc","m":"5"}]`)

	w := do(t, r, http.MethodPut, "/api/tables/"+id+"/columns/n/type", `{"type":"int"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, silo.StatusDanger, decode[silo.Result](t, w).Status)

	w = do(t, r, http.MethodPut, "/api/tables/"+id+"/columns/m/type", `{"type":"int"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, silo.StatusSuccess, decode[silo.Result](t, w).Status)

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPut, "/api/tables/"+id+"/columns/m/type", `{"type":"money"}`).Code)

	do(t, r, http.MethodPost, "/api/tables/"+id+"/_ingest", `[{"gps.lat":"5.5"}]`)
	w = do(t, r, http.MethodPut, "/api/tables/"+id+"/columns/gps.lat/type", `{"type":"float"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, silo.StatusSuccess, decode[silo.Result](t, w).Status)
}

func TestListRowsNormalizesFilterColumns(t *testing.T) {
	_, r := newTestServer(t, Options{})
	id := createTable(t, r, `{"name":"gps"}`)
	do(t, r, http.MethodPost, "/api/tables/"+id+"/_ingest", `[{"gps.lat":"1"},{"gps.lat":"2"}]`)

	filter := `[{"logic":"AND","operation":"eq","number":"2","conditional":["gps.lat"]}]`
	w := do(t, r, http.MethodGet, "/api/tables/"+id+"/rows?filter="+url.QueryEscape(filter)+"&_sort=-gps.lat", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "1", w.Header().Get("X-Total-Count"))
	rows := decode[[]map[string]any](t, w)
	require.Len(t, rows, 1)
	assert.Equal(t, "2", rows[0]["gps_lat"])
}

func TestMergeEndpointCreatesDestination(t *testing.T) {
	s, r := newTestServer(t, Options{})
	left := createTable(t, r, `{"name":"L","unique_fields":["number"],"columns":[{"name":"number"}]}`)
	right := createTable(t, r, `{"name":"R","unique_fields":["number"],"columns":[{"name":"number"}]}`)
	do(t, r, http.MethodPost, "/api/tables/"+left+"/_ingest", `[{"number":1,"first_name":"Bob"}]`)
	do(t, r, http.MethodPost, "/api/tables/"+right+"/_ingest", `[{"number":1,"last_name":"Marley"}]`)

	body := `{"mode":"merge","left":"L","right":"R","dest_name":"LR","mapping":{"columns":[{"left_table_cols":["number"],"right_table_col":"number"}]}}`
	w := do(t, r, http.MethodPost, "/api/merge", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	dest := decode[map[string]any](t, w)["dest"].(string)

	rows := decode[[]map[string]any](t, do(t, r, http.MethodGet, "/api/tables/"+dest+"/rows", ""))
	require.Len(t, rows, 1)
	assert.Equal(t, "Bob", rows[0]["first_name"])
	assert.Equal(t, "Marley", rows[0]["last_name"])

	// неудачный merge не оставляет новую таблицу
	plain := createTable(t, r, `{"name":"NoKeys"}`)
	body = `{"left":"L","right":"` + plain + `","dest_name":"Broken","mapping":{"columns":[{"left_table_cols":["number"],"right_table_col":"number"}]}}`
	w = do(t, r, http.MethodPost, "/api/merge", body)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	_, err := s.resolveTable(t.Context(), "Broken", "")
	assert.ErrorIs(t, err, silo.ErrTableNotFound)

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/api/merge", `{"mode":"zip","left":"L","right":"R","dest_name":"x"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/api/merge", `{"left":"L","right":"R"}`).Code)
}

func multipartCSV(t *testing.T, url, name, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, url, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadCSVAndDownload(t *testing.T) {
	_, r := newTestServer(t, Options{Blob: &LocalBlobStore{Root: t.TempDir()}})
	id := createTable(t, r, `{"name":"uploads"}`)
	content := "village,members\nA,4\nB,2\n"

	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartCSV(t, "/api/tables/"+id+"/_upload", "survey.csv", content))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out struct {
		Result silo.IngestResult `json:"result"`
		File   Stored            `json:"file"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, 2, out.Result.Inserted)
	assert.Equal(t, int64(len(content)), out.File.Size)
	require.NotEmpty(t, out.File.Key)

	rows := decode[[]map[string]any](t, do(t, r, http.MethodGet, "/api/tables/"+id+"/rows", ""))
	require.Len(t, rows, 2)
	assert.Equal(t, "upload:"+out.File.SHA256[:12], rows[0]["read_id"])

	w = do(t, r, http.MethodGet, "/api/uploads/"+out.File.Key, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, content, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="survey.csv"`)

	w = do(t, r, http.MethodPost, "/api/tables/"+id+"/_reingest/"+out.File.Key, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2, decode[silo.IngestResult](t, w).Inserted)

	rows = decode[[]map[string]any](t, do(t, r, http.MethodGet, "/api/tables/"+id+"/rows", ""))
	require.Len(t, rows, 4)
	for _, row := range rows {
		assert.Equal(t, "upload:"+out.File.SHA256[:12], row["read_id"], "reingested rows keep the file hash")
	}

	w = do(t, r, http.MethodPost, "/api/tables/"+id+"/_reingest/"+out.File.Key+"?read_id=manual", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rows = decode[[]map[string]any](t, do(t, r, http.MethodGet, "/api/tables/"+id+"/rows", ""))
	require.Len(t, rows, 6)
	assert.Equal(t, "manual", rows[5]["read_id"])

	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/api/uploads/2020/01/missing.csv", "").Code)
}

func TestUploadWithoutBlobStore(t *testing.T) {
	_, r := newTestServer(t, Options{})
	id := createTable(t, r, `{"name":"plain"}`)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartCSV(t, "/api/tables/"+id+"/_upload", "a.csv", "x\n1\n"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotContains(t, decode[map[string]any](t, w), "file")

	w = do(t, r, http.MethodPost, "/api/tables/"+id+"/_upload", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPullSource(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/broken" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"results":[{"x":1},{"x":2}]}`))
	}))
	defer feed.Close()

	_, r := newTestServer(t, Options{Sources: map[string]reference.Source{
		"s1": {ID: "s1", Name: "Feed", Kind: reference.KindJSON, URL: feed.URL + "/ok"},
		"s2": {ID: "s2", Name: "Broken", Kind: reference.KindJSON, URL: feed.URL + "/broken"},
	}})
	id := createTable(t, r, `{"name":"pulled"}`)

	w := do(t, r, http.MethodPost, "/api/tables/"+id+"/_pull/feed", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2, decode[silo.IngestResult](t, w).Inserted)

	tbl := decode[map[string]any](t, do(t, r, http.MethodGet, "/api/tables/"+id, ""))
	assert.Equal(t, []any{"s1"}, tbl["reads"])

	assert.Equal(t, http.StatusBadGateway, do(t, r, http.MethodPost, "/api/tables/"+id+"/_pull/s2", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodPost, "/api/tables/"+id+"/_pull/none", "").Code)

	srcs := decode[[]map[string]any](t, do(t, r, http.MethodGet, "/api/sources", ""))
	require.Len(t, srcs, 2)
	assert.Equal(t, "Broken", srcs[0]["name"])
	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/api/sources/feed", "").Code)
}

const reloadDSL = `
owner alice

table Households:
  household_id: int
  members: int
  constraints:
    unique(household_id)
`

func TestAdminReload(t *testing.T) {
	tables := t.TempDir()
	sources := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tables, "households.dsl"), []byte(reloadDSL), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(sources, "feed.yaml"), []byte("kind: json\nurl: http://example.invalid/feed\n"), 0o600))

	_, r := newTestServer(t, Options{TablesDir: tables, SourcesDir: sources})

	w := do(t, r, http.MethodPost, "/api/admin/reload", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decode[map[string]any](t, w)
	assert.Equal(t, float64(1), out["created"])
	assert.Equal(t, float64(1), out["sources"])

	srcs := decode[[]map[string]any](t, do(t, r, http.MethodGet, "/api/sources", ""))
	require.Len(t, srcs, 1)
	assert.Equal(t, "feed", srcs[0]["name"])

	// повторная загрузка ничего не создаёт
	out = decode[map[string]any](t, do(t, r, http.MethodPost, "/api/admin/reload", `{}`))
	assert.Equal(t, float64(0), out["created"])

	w = do(t, r, http.MethodGet, "/api/tables/households?owner=alice", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminReloadBlocksOnLintIssues(t *testing.T) {
	tables := t.TempDir()
	bad := "table Broken:\n  a: int\n  constraints:\n    unique(missing)\n"
	require.NoError(t, os.WriteFile(filepath.Join(tables, "bad.dsl"), []byte(bad), 0o600))

	_, r := newTestServer(t, Options{})
	w := do(t, r, http.MethodPost, "/api/admin/reload", `{"tables_dir":"`+filepath.ToSlash(tables)+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	tbls := decode[[]map[string]any](t, do(t, r, http.MethodGet, "/api/tables", ""))
	assert.Empty(t, tbls)
}

func TestLintTables(t *testing.T) {
	tbl := &silo.Table{
		Name:       "t",
		Columns:    []silo.Column{{Name: "a", Type: silo.TypeInt}, {Name: "total", Type: silo.TypeString}},
		UniqueKeys: []string{"missing"},
		Hidden:     []string{"ghost"},
		Formulas:   []silo.FormulaColumn{{Operation: "sum", Columns: []string{"a", "b"}, Name: "total"}},
	}
	var codes []string
	for _, it := range LintTables([]*silo.Table{tbl}) {
		codes = append(codes, it.Code)
	}
	assert.ElementsMatch(t, []string{
		"unique_key_undeclared",
		"formula_column_undeclared",
		"formula_column_type",
		"hidden_column_undeclared",
	}, codes)
}

func TestMeta(t *testing.T) {
	_, r := newTestServer(t, Options{})
	w := do(t, r, http.MethodGet, "/api/meta", "")
	require.Equal(t, http.StatusOK, w.Code)
	m := decode[metaInfo](t, w)
	assert.Contains(t, m.FormulaOperations, "median")
	assert.Contains(t, m.MergeTypes, "Join")
	assert.Contains(t, m.ColumnTypes, silo.TypeDatetime)
}

func TestParseListParams(t *testing.T) {
	q, err := parseListParams(map[string][]string{"_limit": {"10"}, "_offset": {"5"}, "_sort": {"-a, b"}, "filter": {""}})
	require.NoError(t, err)
	assert.Equal(t, 10, q.Limit)
	assert.Equal(t, 5, q.Offset)
	assert.Equal(t, []silo.SortKey{{Column: "a", Desc: true}, {Column: "b"}}, q.Sort)
	require.NotNil(t, q.Filter)
	assert.Empty(t, *q.Filter)

	q, err = parseListParams(map[string][]string{})
	require.NoError(t, err)
	assert.Equal(t, defaultLimit, q.Limit)
	assert.Nil(t, q.Filter)

	q, err = parseListParams(map[string][]string{
		"_sort":  {"gps.lat"},
		"filter": {`[{"logic":"OR","operation":"empty","conditional":["gps.lat"," a  b "]},{"logic":"BLANKCHAR","conditional":"N.A"}]`},
	})
	require.NoError(t, err)
	assert.Equal(t, []silo.SortKey{{Column: "gps_lat"}}, q.Sort)
	require.NotNil(t, q.Filter)
	require.Len(t, *q.Filter, 2)
	assert.Equal(t, []string{"gps_lat", "a b"}, (*q.Filter)[0].Columns)
	assert.Equal(t, "N.A", (*q.Filter)[1].Blank)

	_, err = parseListParams(map[string][]string{"_limit": {"5000"}})
	assert.Error(t, err)
	_, err = parseListParams(map[string][]string{"filter": {"{"}})
	assert.Error(t, err)
}

func TestLocalBlobStoreRejectsTraversal(t *testing.T) {
	s := &LocalBlobStore{Root: t.TempDir()}
	_, err := s.Path("../etc/passwd")
	assert.Error(t, err)
	_, err = s.Path("")
	assert.Error(t, err)
}
