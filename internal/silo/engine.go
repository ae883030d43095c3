package silo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Observer получает итоги пакетных операций (метрики).
type Observer interface {
	IngestDone(tableID string, res IngestResult)
	MergeDone(mode string, res Result)
}

type nopObserver struct{}

func (nopObserver) IngestDone(string, IngestResult) {}
func (nopObserver) MergeDone(string, Result)        {}

// Engine — движок загрузки и сверки таблиц поверх Store.
type Engine struct {
	store    Store
	log      *zap.Logger
	now      func() time.Time
	observer Observer
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		log:      zap.NewNop(),
		now:      func() time.Time { return time.Now().UTC() },
		observer: nopObserver{},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) Store() Store { return e.store }

func (e *Engine) table(ctx context.Context, id string) (*Table, error) {
	t, ok, err := e.store.GetTable(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get table %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, id)
	}
	return t, nil
}

// CreateTable создаёт пустую таблицу; ID присваивается, если не задан.
func (e *Engine) CreateTable(ctx context.Context, t *Table) (*Table, error) {
	if strings.TrimSpace(t.Name) == "" {
		return nil, errors.New("table name is required")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = e.now()
	}
	if err := ValidateFormulas(t.Formulas); err != nil {
		return nil, err
	}
	if _, err := CompileFilter(t.RowFilter); err != nil {
		return nil, err
	}
	if err := e.store.CreateTable(ctx, t); err != nil {
		e.log.Error("Failed to create table", zap.String("name", t.Name), zap.Error(err))
		return nil, err
	}
	e.log.Info("Table created", zap.String("table", t.ID), zap.String("name", t.Name))
	return t, nil
}

func (e *Engine) GetTable(ctx context.Context, id string) (*Table, error) {
	return e.table(ctx, id)
}

func (e *Engine) ListTables(ctx context.Context, owner string) ([]*Table, error) {
	return e.store.ListTables(ctx, owner)
}

func (e *Engine) DeleteTable(ctx context.Context, id string) error {
	if _, err := e.table(ctx, id); err != nil {
		return err
	}
	if err := e.store.DeleteTable(ctx, id); err != nil {
		e.log.Error("Failed to delete table", zap.String("table", id), zap.Error(err))
		return err
	}
	return nil
}

// updateTable — чтение, изменение и сохранение записи таблицы.
func (e *Engine) updateTable(ctx context.Context, id string, fn func(t *Table) error) (*Table, error) {
	t, err := e.table(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(t); err != nil {
		return nil, err
	}
	if err := e.store.SaveTable(ctx, t); err != nil {
		e.log.Error("Failed to save table", zap.String("table", id), zap.Error(err))
		return nil, err
	}
	return t, nil
}

func (e *Engine) DeclareColumns(ctx context.Context, tableID string, names []string, types map[string]ColumnType) ([]string, error) {
	for n, typ := range types {
		if !typ.Valid() {
			return nil, fmt.Errorf("column %q: unknown type %q", n, typ)
		}
	}
	var added []string
	_, err := e.updateTable(ctx, tableID, func(t *Table) error {
		var err error
		added, err = t.DeclareColumns(names, types)
		return err
	})
	return added, err
}

func (e *Engine) HideColumns(ctx context.Context, tableID string, names []string) (*Table, error) {
	return e.updateTable(ctx, tableID, func(t *Table) error {
		t.Hide(names)
		return nil
	})
}

func (e *Engine) UnhideColumns(ctx context.Context, tableID string, names []string) (*Table, error) {
	return e.updateTable(ctx, tableID, func(t *Table) error {
		t.Unhide(names)
		return nil
	})
}

// DeleteColumns убирает колонки из каталога; strip — ещё и вычищает поля из строк.
func (e *Engine) DeleteColumns(ctx context.Context, tableID string, names []string, strip bool) (*Table, error) {
	t, err := e.updateTable(ctx, tableID, func(t *Table) error {
		t.DeleteColumns(names)
		return nil
	})
	if err != nil || !strip {
		return t, err
	}
	for _, n := range names {
		cnt, err := e.store.UnsetField(ctx, tableID, n)
		if err != nil {
			e.log.Error("Failed to strip column from rows", zap.String("table", tableID), zap.String("column", n), zap.Error(err))
			return t, err
		}
		e.log.Debug("Column stripped", zap.String("table", tableID), zap.String("column", n), zap.Int("rows", cnt))
	}
	return t, nil
}

func (e *Engine) SetUniqueKeys(ctx context.Context, tableID string, keys []string) (*Table, error) {
	return e.updateTable(ctx, tableID, func(t *Table) error {
		seen := map[string]struct{}{}
		out := make([]string, 0, len(keys))
		for _, k := range keys {
			k = NormalizeKey(strings.TrimSpace(k))
			if k == "" {
				continue
			}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
		t.UniqueKeys = out
		return nil
	})
}

// SetRowFilter сохраняет фильтр строк после проверки компиляцией.
func (e *Engine) SetRowFilter(ctx context.Context, tableID string, groups []FilterGroup) (*Table, error) {
	if _, err := CompileFilter(groups); err != nil {
		return nil, err
	}
	return e.updateTable(ctx, tableID, func(t *Table) error {
		t.RowFilter = groups
		return nil
	})
}

// AddFormulaColumn объявляет колонку формулы и пересчитывает все строки.
func (e *Engine) AddFormulaColumn(ctx context.Context, tableID string, fc FormulaColumn) (*Table, error) {
	fc.Operation = strings.ToLower(strings.TrimSpace(fc.Operation))
	if err := ValidateFormulas([]FormulaColumn{fc}); err != nil {
		return nil, err
	}
	if fc.Name == "" {
		fc.Name = fc.Operation
	}
	t, err := e.updateTable(ctx, tableID, func(t *Table) error {
		for i, f := range t.Formulas {
			if f.Name == fc.Name {
				t.Formulas[i] = fc
				_, err := t.DeclareColumns([]string{fc.Name}, map[string]ColumnType{fc.Name: TypeFloat})
				return err
			}
		}
		t.Formulas = append(t.Formulas, fc)
		_, err := t.DeclareColumns([]string{fc.Name}, map[string]ColumnType{fc.Name: TypeFloat})
		return err
	})
	if err != nil {
		return nil, err
	}

	rows, err := e.store.FindRows(ctx, tableID, Predicate{}, FindOptions{})
	if err != nil {
		return t, err
	}
	now := e.now()
	for _, r := range rows {
		if err := EvaluateFormulas(r, []FormulaColumn{fc}, now); err != nil {
			return t, err
		}
		if err := e.store.UpdateRow(ctx, r); err != nil {
			e.log.Error("Failed to update row", zap.String("table", tableID), zap.String("row", r.ID), zap.Error(err))
			return t, err
		}
	}
	return t, nil
}

func (e *Engine) GetRow(ctx context.Context, tableID, rowID string) (*Row, error) {
	r, ok, err := e.store.GetRow(ctx, tableID, rowID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRowNotFound, rowID)
	}
	return r, nil
}

// UpdateRow — ручная правка полей строки (слияние по полям, формулы пересчитываются).
func (e *Engine) UpdateRow(ctx context.Context, tableID, rowID string, raw any) (*Row, error) {
	t, err := e.table(ctx, tableID)
	if err != nil {
		return nil, err
	}
	r, ok, err := e.store.GetRow(ctx, tableID, rowID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRowNotFound, rowID)
	}
	fields, ok := FieldsOf(Clean(raw))
	if !ok {
		return nil, errors.New("row update must be an object")
	}
	r.Fields.Merge(fields)
	r.EditedAt = e.now()
	if err := EvaluateFormulas(r, t.Formulas, r.EditedAt); err != nil {
		return nil, err
	}
	added, err := t.DeclareColumns(newColumns(t, fields.Keys()), nil)
	if err != nil {
		return nil, err
	}
	if err := e.store.UpdateRow(ctx, r); err != nil {
		return nil, err
	}
	if len(added) > 0 {
		if err := e.store.SaveTable(ctx, t); err != nil {
			return r, fmt.Errorf("declare columns %v: %w", added, err)
		}
	}
	return r, nil
}

func (e *Engine) DeleteRow(ctx context.Context, tableID, rowID string) error {
	if _, ok, err := e.store.GetRow(ctx, tableID, rowID); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: %s", ErrRowNotFound, rowID)
	}
	return e.store.DeleteRow(ctx, tableID, rowID)
}

// newColumns — имена, которых ещё нет в каталоге, без повторов, в порядке появления.
func newColumns(t *Table, names []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, n := range names {
		if t.HasColumn(n) {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
