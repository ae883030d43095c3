package silo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// IngestResult — итог пакета загрузки.
type IngestResult struct {
	Processed int      `json:"processed"`
	Inserted  int      `json:"inserted"`
	Updated   int      `json:"updated"`
	Skipped   []string `json:"skipped"`
}

// Ingest сверяет сырые записи с таблицей: очистка, upsert по уникальному ключу,
// формулы, затем однократное объявление новых колонок.
// Ошибки отдельных записей в результат, ошибки хранилища — наверх.
func (e *Engine) Ingest(ctx context.Context, tableID string, records []any, sourceID string) (IngestResult, error) {
	res := IngestResult{Skipped: []string{}}
	t, err := e.table(ctx, tableID)
	if err != nil {
		return res, err
	}
	// неизвестная операция формулы — ошибка конфигурации, до первой записи
	if err := ValidateFormulas(t.Formulas); err != nil {
		return res, err
	}

	skipped := map[string]struct{}{}
	var observed []string
	seenCols := map[string]struct{}{}

	for i, raw := range records {
		if err := ctx.Err(); err != nil {
			return e.finishIngest(ctx, t, res, skipped, observed, sourceID, err)
		}
		fields, ok := FieldsOf(Clean(raw))
		if !ok {
			skipped[fmt.Sprintf("record %d is not an object", i)] = struct{}{}
			e.log.Info("Skipping non-object record", zap.String("table", tableID), zap.Int("index", i))
			continue
		}

		outcome, err := e.reconcile(ctx, t, fields, sourceID)
		if err != nil {
			return e.finishIngest(ctx, t, res, skipped, observed, sourceID, err)
		}
		switch outcome.kind {
		case outcomeSkipped:
			skipped[outcome.diagnostic] = struct{}{}
			continue
		case outcomeInserted:
			res.Inserted++
		case outcomeUpdated:
			res.Updated++
		}
		res.Processed++
		for _, k := range outcome.columns {
			if _, ok := seenCols[k]; !ok {
				seenCols[k] = struct{}{}
				observed = append(observed, k)
			}
		}
	}
	return e.finishIngest(ctx, t, res, skipped, observed, sourceID, nil)
}

func (e *Engine) finishIngest(ctx context.Context, t *Table, res IngestResult, skipped map[string]struct{}, observed []string, sourceID string, cause error) (IngestResult, error) {
	for s := range skipped {
		res.Skipped = append(res.Skipped, s)
	}
	sort.Strings(res.Skipped)

	// каталог дописывается один раз в конце пакета (и при прерывании)
	if _, err := t.DeclareColumns(newColumns(t, observed), nil); err != nil {
		return res, err
	}
	if res.Processed > 0 {
		t.AddSource(sourceID)
	}
	if err := e.store.SaveTable(ctx, t); err != nil {
		e.log.Error("Failed to save table catalog", zap.String("table", t.ID), zap.Error(err))
		if cause == nil {
			cause = err
		}
	}
	e.observer.IngestDone(t.ID, res)
	if cause != nil {
		return res, cause
	}
	e.log.Info("Ingest done",
		zap.String("table", t.ID),
		zap.Int("processed", res.Processed),
		zap.Int("inserted", res.Inserted),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", len(res.Skipped)))
	return res, nil
}

type outcomeKind int

const (
	outcomeInserted outcomeKind = iota
	outcomeUpdated
	outcomeSkipped
)

type reconcileOutcome struct {
	kind       outcomeKind
	diagnostic string
	columns    []string
}

// reconcile решает insert/update для одной очищенной записи.
func (e *Engine) reconcile(ctx context.Context, t *Table, fields Fields, sourceID string) (reconcileOutcome, error) {
	now := e.now()

	// 1) без уникального ключа — всегда вставка
	if len(t.UniqueKeys) == 0 {
		return e.insert(ctx, t, fields, sourceID, now)
	}

	// 2) фильтр по присутствующим колонкам ключа
	var (
		pred  Predicate
		parts []string
	)
	for _, k := range t.UniqueKeys {
		v, ok := fields.Get(k)
		if !ok {
			e.log.Info("Unique key column missing from record", zap.String("table", t.ID), zap.String("column", k))
			continue
		}
		pred.And = append(pred.And, Eq(k, v))
		parts = append(parts, k+"="+v.Text())
	}

	// 3) не больше двух совпадений достаточно для решения
	found, err := e.store.FindRows(ctx, t.ID, pred, FindOptions{Limit: 2})
	if err != nil {
		e.log.Error("Failed to look up unique key", zap.String("table", t.ID), zap.Error(err))
		return reconcileOutcome{}, err
	}
	switch len(found) {
	case 0:
		return e.insert(ctx, t, fields, sourceID, now)
	case 1:
		r := found[0]
		r.Fields.Merge(fields)
		r.EditedAt = now
		r.SourceID = sourceID
		if err := EvaluateFormulas(r, t.Formulas, now); err != nil {
			return reconcileOutcome{}, err
		}
		if err := e.store.UpdateRow(ctx, r); err != nil {
			e.log.Error("Failed to update row", zap.String("table", t.ID), zap.String("row", r.ID), zap.Error(err))
			return reconcileOutcome{}, err
		}
		return reconcileOutcome{kind: outcomeUpdated, columns: r.Fields.Keys()}, nil
	}
	diag := strings.Join(parts, ", ")
	if diag == "" {
		diag = "no unique key values"
	}
	e.log.Warn("Multiple rows match unique key, record skipped", zap.String("table", t.ID), zap.String("filter", diag))
	return reconcileOutcome{kind: outcomeSkipped, diagnostic: diag}, nil
}

func (e *Engine) insert(ctx context.Context, t *Table, fields Fields, sourceID string, now time.Time) (reconcileOutcome, error) {
	r := &Row{
		TableID:   t.ID,
		SourceID:  sourceID,
		CreatedAt: now,
		EditedAt:  now,
		Fields:    fields,
	}
	if err := EvaluateFormulas(r, t.Formulas, now); err != nil {
		return reconcileOutcome{}, err
	}
	if err := e.store.InsertRow(ctx, r); err != nil {
		e.log.Error("Failed to insert row", zap.String("table", t.ID), zap.Error(err))
		return reconcileOutcome{}, err
	}
	return reconcileOutcome{kind: outcomeInserted, columns: r.Fields.Keys()}, nil
}
