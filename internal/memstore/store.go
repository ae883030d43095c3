package memstore

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"time"

	"tolatables/internal/silo"

	"github.com/oklog/ulid/v2"
)

// Store — silo.Store в памяти: таблицы и строки под одним RWMutex.
// Наружу отдаются только копии.
type Store struct {
	mu      sync.RWMutex
	tables  map[string]*silo.Table
	rows    map[string]map[string]*silo.Row // tableID -> rowID -> строка
	order   map[string][]string             // tableID -> rowID в порядке вставки
	entropy io.Reader
}

var _ silo.Store = (*Store)(nil)

func New() *Store {
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Store{
		tables:  make(map[string]*silo.Table),
		rows:    make(map[string]map[string]*silo.Row),
		order:   make(map[string][]string),
		entropy: ulid.Monotonic(src, 0),
	}
}

// newID вызывается под s.mu: монотонный генератор не потокобезопасен.
func (s *Store) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *Store) CreateTable(_ context.Context, t *silo.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[t.ID]; ok {
		return fmt.Errorf("table %s already exists", t.ID)
	}
	s.tables[t.ID] = t.Clone()
	s.rows[t.ID] = make(map[string]*silo.Row)
	return nil
}

func (s *Store) GetTable(_ context.Context, id string) (*silo.Table, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[id]
	if !ok {
		return nil, false, nil
	}
	return t.Clone(), true, nil
}

// ListTables: owner == "" — все таблицы. Порядок — по времени создания, затем по имени.
func (s *Store) ListTables(_ context.Context, owner string) ([]*silo.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*silo.Table, 0, len(s.tables))
	for _, t := range s.tables {
		if owner != "" && t.Owner != owner {
			continue
		}
		out = append(out, t.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) SaveTable(_ context.Context, t *silo.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[t.ID]; !ok {
		return silo.ErrTableNotFound
	}
	s.tables[t.ID] = t.Clone()
	return nil
}

func (s *Store) DeleteTable(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, id)
	delete(s.rows, id)
	delete(s.order, id)
	return nil
}

func (s *Store) InsertRow(_ context.Context, r *silo.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[r.TableID]
	if !ok {
		return fmt.Errorf("%w: %s", silo.ErrTableNotFound, r.TableID)
	}
	if r.ID == "" {
		r.ID = s.newID()
	}
	if _, dup := m[r.ID]; dup {
		return fmt.Errorf("row %s already exists", r.ID)
	}
	m[r.ID] = r.Clone()
	s.order[r.TableID] = append(s.order[r.TableID], r.ID)
	return nil
}

func (s *Store) UpdateRow(_ context.Context, r *silo.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.rows[r.TableID]
	if _, ok := m[r.ID]; !ok {
		return fmt.Errorf("%w: %s", silo.ErrRowNotFound, r.ID)
	}
	m[r.ID] = r.Clone()
	return nil
}

func (s *Store) GetRow(_ context.Context, tableID, id string) (*silo.Row, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rows[tableID][id]
	if !ok {
		return nil, false, nil
	}
	return r.Clone(), true, nil
}

// matching — строки таблицы в порядке вставки, прошедшие предикат. Под s.mu.
func (s *Store) matching(tableID string, p silo.Predicate) []*silo.Row {
	m := s.rows[tableID]
	var out []*silo.Row
	for _, id := range s.order[tableID] {
		r, ok := m[id]
		if !ok {
			continue
		}
		if p.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

func (s *Store) FindRows(_ context.Context, tableID string, p silo.Predicate, opts silo.FindOptions) ([]*silo.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.matching(tableID, p)
	sortRows(rows, opts.Sort)

	// 1) offset
	if opts.Offset > 0 {
		if opts.Offset >= len(rows) {
			rows = nil
		} else {
			rows = rows[opts.Offset:]
		}
	}
	// 2) limit
	if opts.Limit > 0 && len(rows) > opts.Limit {
		rows = rows[:opts.Limit]
	}
	out := make([]*silo.Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out, nil
}

func (s *Store) CountRows(_ context.Context, tableID string, p silo.Predicate) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matching(tableID, p)), nil
}

func (s *Store) DeleteRow(_ context.Context, tableID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.rows[tableID]
	if _, ok := m[id]; !ok {
		return fmt.Errorf("%w: %s", silo.ErrRowNotFound, id)
	}
	delete(m, id)
	ids := s.order[tableID]
	for i, x := range ids {
		if x == id {
			s.order[tableID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) UnsetField(_ context.Context, tableID, column string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.rows[tableID] {
		if r.Fields.Delete(column) {
			n++
		}
	}
	return n, nil
}

// sortRows — устойчивая сортировка по нескольким ключам; отсутствующее поле — null (в начале при asc).
func sortRows(rows []*silo.Row, keys []silo.SortKey) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, k := range keys {
			if k.Column == "" {
				continue
			}
			a, _ := rows[i].Fields.Get(k.Column)
			b, _ := rows[j].Fields.Get(k.Column)
			c := silo.Compare(a, b)
			if k.Desc {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
}
