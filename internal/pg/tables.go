package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tolatables/internal/silo"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// tableRecord: строка каталога silo_tables (через gorm).
type tableRecord struct {
	ID          string               `gorm:"primaryKey"`
	Owner       string               `gorm:"index;not null"`
	Name        string               `gorm:"not null"`
	Description string               `gorm:"not null;default:''"`
	Columns     []silo.Column        `gorm:"type:jsonb;serializer:json"`
	Hidden      []string             `gorm:"type:jsonb;serializer:json"`
	RowFilter   []silo.FilterGroup   `gorm:"type:jsonb;serializer:json"`
	UniqueKeys  []string             `gorm:"type:jsonb;serializer:json"`
	Formulas    []silo.FormulaColumn `gorm:"type:jsonb;serializer:json"`
	Sources     []string             `gorm:"type:jsonb;serializer:json"`
	CreatedAt   time.Time            `gorm:"not null"`
	UpdatedAt   time.Time
}

func (tableRecord) TableName() string { return tablesTable }

func recordOf(t *silo.Table) tableRecord {
	c := t.Clone()
	return tableRecord{
		ID:          c.ID,
		Owner:       c.Owner,
		Name:        c.Name,
		Description: c.Description,
		Columns:     c.Columns,
		Hidden:      c.Hidden,
		RowFilter:   c.RowFilter,
		UniqueKeys:  c.UniqueKeys,
		Formulas:    c.Formulas,
		Sources:     c.Sources,
		CreatedAt:   c.CreatedAt,
	}
}

func (r tableRecord) table() *silo.Table {
	return &silo.Table{
		ID:          r.ID,
		Owner:       r.Owner,
		Name:        r.Name,
		Description: r.Description,
		Columns:     r.Columns,
		Hidden:      r.Hidden,
		RowFilter:   r.RowFilter,
		UniqueKeys:  r.UniqueKeys,
		Formulas:    r.Formulas,
		Sources:     r.Sources,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

func (s *Store) CreateTable(ctx context.Context, t *silo.Table) error {
	rec := recordOf(t)
	if err := s.orm.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("create table %s: %w", t.ID, err)
	}
	return s.ensureKeyIndex(ctx, t)
}

func (s *Store) GetTable(ctx context.Context, id string) (*silo.Table, bool, error) {
	var rec tableRecord
	err := s.orm.WithContext(ctx).Where("id = ?", id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return rec.table(), true, nil
}

func (s *Store) ListTables(ctx context.Context, owner string) ([]*silo.Table, error) {
	q := s.orm.WithContext(ctx).Order("created_at, name")
	if owner != "" {
		q = q.Where("owner = ?", owner)
	}
	var recs []tableRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*silo.Table, len(recs))
	for i, r := range recs {
		out[i] = r.table()
	}
	return out, nil
}

func (s *Store) SaveTable(ctx context.Context, t *silo.Table) error {
	rec := recordOf(t)
	res := s.orm.WithContext(ctx).Model(&tableRecord{ID: t.ID}).
		Select("*").Omit("id", "created_at").
		Updates(&rec)
	if res.Error != nil {
		return fmt.Errorf("save table %s: %w", t.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return silo.ErrTableNotFound
	}
	return s.ensureKeyIndex(ctx, t)
}

// DeleteTable удаляет строки и запись каталога в одной транзакции,
// затем индексы уникальных ключей таблицы.
func (s *Store) DeleteTable(ctx context.Context, id string) error {
	err := s.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("delete from "+rowsTable+" where table_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&tableRecord{}).Error
	})
	if err != nil {
		return err
	}
	if err := s.dropKeyIndexes(ctx, id, ""); err != nil {
		return fmt.Errorf("unique key index %s: %w", id, err)
	}
	s.mu.Lock()
	delete(s.keyIdx, id)
	s.mu.Unlock()
	return nil
}

// ensureKeyIndex приводит индекс уникальных ключей к текущему набору:
// индексы прежних наборов удаляются, DDL идёт только при смене набора.
func (s *Store) ensureKeyIndex(ctx context.Context, t *silo.Table) error {
	want := uniqueKeyIndexName(t.ID, t.UniqueKeys)
	s.mu.Lock()
	have, known := s.keyIdx[t.ID]
	s.mu.Unlock()
	if known && have == want {
		return nil
	}

	// 1) прежние наборы ключей
	if err := s.dropKeyIndexes(ctx, t.ID, want); err != nil {
		return fmt.Errorf("unique key index %s: %w", t.ID, err)
	}
	// 2) текущий набор
	if want != "" {
		if err := ApplyDDL(ctx, s.db, UniqueKeyDDL([]*silo.Table{t}), s.log); err != nil {
			return fmt.Errorf("unique key index %s: %w", t.ID, err)
		}
	}

	s.mu.Lock()
	s.keyIdx[t.ID] = want
	s.mu.Unlock()
	return nil
}

// dropKeyIndexes удаляет индексы уникальных ключей таблицы, кроме keep.
func (s *Store) dropKeyIndexes(ctx context.Context, tableID, keep string) error {
	prefix := keyIndexPrefix(tableID)
	rows, err := s.db.QueryContext(ctx,
		`select indexname from pg_indexes where tablename = $1 and left(indexname, $2) = $3`,
		rowsTable, len(prefix), prefix)
	if err != nil {
		return err
	}
	var stale []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		if name != keep {
			stale = append(stale, name)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, name := range stale {
		if _, err := s.db.ExecContext(ctx, "drop index if exists "+pgx.Identifier{name}.Sanitize()); err != nil {
			return fmt.Errorf("drop %s: %w", name, err)
		}
		s.log.Info("Dropped unique key index", zap.String("table", tableID), zap.String("index", name))
	}
	return nil
}
