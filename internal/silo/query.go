package silo

import (
	"context"
	"time"
)

// Query — параметры чтения строк таблицы.
// Filter == nil — берётся сохранённый фильтр таблицы; указатель на пустой список — без фильтра.
type Query struct {
	Filter *[]FilterGroup
	Sort   []SortKey
	Limit  int
	Offset int
}

// RowView — строка, урезанная до видимых колонок в порядке каталога.
type RowView struct {
	ID        string    `json:"id"`
	SourceID  string    `json:"read_id,omitempty"`
	CreatedAt time.Time `json:"create_date"`
	EditedAt  time.Time `json:"edit_date"`
	Fields    Fields    `json:"fields"`
}

// QueryRows возвращает страницу строк и общее число совпадений.
func (e *Engine) QueryRows(ctx context.Context, tableID string, q Query) ([]RowView, int, error) {
	t, err := e.table(ctx, tableID)
	if err != nil {
		return nil, 0, err
	}
	groups := t.RowFilter
	if q.Filter != nil {
		groups = *q.Filter
	}
	pred, err := CompileFilter(groups)
	if err != nil {
		return nil, 0, err
	}

	total, err := e.store.CountRows(ctx, tableID, pred)
	if err != nil {
		return nil, 0, err
	}
	rows, err := e.store.FindRows(ctx, tableID, pred, FindOptions{Sort: q.Sort, Limit: q.Limit, Offset: q.Offset})
	if err != nil {
		return nil, 0, err
	}

	visible := t.ListVisible()
	out := make([]RowView, 0, len(rows))
	for _, r := range rows {
		out = append(out, RowView{
			ID:        r.ID,
			SourceID:  r.SourceID,
			CreatedAt: r.CreatedAt,
			EditedAt:  r.EditedAt,
			Fields:    r.Fields.Select(visible),
		})
	}
	return out, total, nil
}

// CountRows — число строк под фильтром (nil — сохранённый фильтр таблицы).
func (e *Engine) CountRows(ctx context.Context, tableID string, filter *[]FilterGroup) (int, error) {
	t, err := e.table(ctx, tableID)
	if err != nil {
		return 0, err
	}
	groups := t.RowFilter
	if filter != nil {
		groups = *filter
	}
	pred, err := CompileFilter(groups)
	if err != nil {
		return 0, err
	}
	return e.store.CountRows(ctx, tableID, pred)
}
