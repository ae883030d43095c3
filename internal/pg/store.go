package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"tolatables/internal/silo"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store: silo.Store поверх Postgres: каталог в silo_tables (gorm),
// строки в silo_rows (jsonb, database/sql).
type Store struct {
	db  *sql.DB
	orm *gorm.DB
	log *zap.Logger

	mu      sync.Mutex
	entropy io.Reader
	keyIdx  map[string]string // table id -> индекс уникальных ключей
}

var _ silo.Store = (*Store)(nil)

func New(db *sql.DB, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	orm, err := openGorm(db)
	if err != nil {
		return nil, fmt.Errorf("gorm: %w", err)
	}
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Store{db: db, orm: orm, log: log, entropy: ulid.Monotonic(src, 0), keyIdx: map[string]string{}}, nil
}

// Migrate создаёт таблицы и индексы уникальных ключей уже существующих силосов.
func (s *Store) Migrate(ctx context.Context) error {
	if err := ApplyDDL(ctx, s.db, BaseDDL(), s.log); err != nil {
		return err
	}
	if err := s.orm.WithContext(ctx).AutoMigrate(&tableRecord{}); err != nil {
		return fmt.Errorf("migrate %s: %w", tablesTable, err)
	}
	tables, err := s.ListTables(ctx, "")
	if err != nil {
		return err
	}
	for _, t := range tables {
		if err := s.ensureKeyIndex(ctx, t); err != nil {
			return err
		}
	}
	s.log.Info("Schema is up to date", zap.Int("tables", len(tables)))
	return nil
}

func (s *Store) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// encodeFields: jsonb не хранит порядок ключей, поэтому порядок лежит отдельно в keys.
func encodeFields(f silo.Fields) (keys, data string, err error) {
	kb, err := json.Marshal(f.Keys())
	if err != nil {
		return "", "", err
	}
	db, err := json.Marshal(f)
	if err != nil {
		return "", "", err
	}
	return string(kb), string(db), nil
}

func decodeFields(keysRaw, dataRaw []byte) (silo.Fields, error) {
	var keys []string
	if err := json.Unmarshal(keysRaw, &keys); err != nil {
		return silo.Fields{}, fmt.Errorf("row keys: %w", err)
	}
	var vals map[string]silo.Value
	if err := json.Unmarshal(dataRaw, &vals); err != nil {
		return silo.Fields{}, fmt.Errorf("row data: %w", err)
	}
	var f silo.Fields
	for _, k := range keys {
		if v, ok := vals[k]; ok {
			f.Set(k, v)
			delete(vals, k)
		}
	}
	// ключи вне списка (правка в обход Store) — в конец
	for _, k := range sortedKeys(vals) {
		f.Set(k, vals[k])
	}
	return f, nil
}

func sortedKeys(m map[string]silo.Value) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

const rowColumns = "id, table_id, source_id, created_at, edited_at, keys, data"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(sc rowScanner) (*silo.Row, error) {
	var (
		r          silo.Row
		keys, data []byte
	)
	if err := sc.Scan(&r.ID, &r.TableID, &r.SourceID, &r.CreatedAt, &r.EditedAt, &keys, &data); err != nil {
		return nil, err
	}
	f, err := decodeFields(keys, data)
	if err != nil {
		return nil, err
	}
	r.Fields = f
	r.CreatedAt = r.CreatedAt.UTC()
	r.EditedAt = r.EditedAt.UTC()
	return &r, nil
}

func (s *Store) InsertRow(ctx context.Context, r *silo.Row) error {
	if r.ID == "" {
		r.ID = s.newID()
	}
	keys, data, err := encodeFields(r.Fields)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`insert into silo_rows (id, table_id, source_id, created_at, edited_at, keys, data)
		 select $1, $2, $3, $4, $5, $6::jsonb, $7::jsonb
		 where exists (select 1 from silo_tables where id = $2)`,
		r.ID, r.TableID, r.SourceID, r.CreatedAt, r.EditedAt, keys, data)
	if err != nil {
		return fmt.Errorf("insert row %s: %w", r.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", silo.ErrTableNotFound, r.TableID)
	}
	return nil
}

func (s *Store) UpdateRow(ctx context.Context, r *silo.Row) error {
	keys, data, err := encodeFields(r.Fields)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`update silo_rows set source_id = $3, created_at = $4, edited_at = $5, keys = $6::jsonb, data = $7::jsonb
		 where table_id = $1 and id = $2`,
		r.TableID, r.ID, r.SourceID, r.CreatedAt, r.EditedAt, keys, data)
	if err != nil {
		return fmt.Errorf("update row %s: %w", r.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", silo.ErrRowNotFound, r.ID)
	}
	return nil
}

func (s *Store) GetRow(ctx context.Context, tableID, id string) (*silo.Row, bool, error) {
	row := s.db.QueryRowContext(ctx,
		"select "+rowColumns+" from silo_rows where table_id = $1 and id = $2", tableID, id)
	r, err := scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return r, true, nil
}

func (s *Store) FindRows(ctx context.Context, tableID string, p silo.Predicate, opts silo.FindOptions) ([]*silo.Row, error) {
	var b builder
	where, err := b.where(tableID, p)
	if err != nil {
		return nil, err
	}
	var q strings.Builder
	q.WriteString("select " + rowColumns + " from silo_rows where " + where)
	q.WriteString(" order by " + b.orderBy(opts.Sort))
	if opts.Limit > 0 {
		q.WriteString(" limit " + b.arg(opts.Limit))
	}
	if opts.Offset > 0 {
		q.WriteString(" offset " + b.arg(opts.Offset))
	}

	rows, err := s.db.QueryContext(ctx, q.String(), b.args...)
	if err != nil {
		return nil, fmt.Errorf("find rows %s: %w", tableID, err)
	}
	defer rows.Close()

	out := []*silo.Row{}
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) CountRows(ctx context.Context, tableID string, p silo.Predicate) (int, error) {
	var b builder
	where, err := b.where(tableID, p)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "select count(*) from silo_rows where "+where, b.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows %s: %w", tableID, err)
	}
	return n, nil
}

func (s *Store) DeleteRow(ctx context.Context, tableID, id string) error {
	res, err := s.db.ExecContext(ctx, "delete from silo_rows where table_id = $1 and id = $2", tableID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", silo.ErrRowNotFound, id)
	}
	return nil
}

func (s *Store) UnsetField(ctx context.Context, tableID, column string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`update silo_rows
		 set data = data - $2::text,
		     keys = coalesce((select jsonb_agg(k order by o) from jsonb_array_elements_text(keys) with ordinality as e(k, o) where k <> $2::text), '[]'::jsonb)
		 where table_id = $1 and data ? $2::text`,
		tableID, column)
	if err != nil {
		return 0, fmt.Errorf("unset %s.%s: %w", tableID, column, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
