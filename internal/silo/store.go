package silo

import (
	"context"
	"time"
)

// NoSource — идентификатор источника для строк, пришедших не из Source.
const NoSource = ""

// Row — одна запись силоса.
type Row struct {
	ID        string    `json:"id"`
	TableID   string    `json:"silo_id"`
	SourceID  string    `json:"read_id"`
	CreatedAt time.Time `json:"create_date"`
	EditedAt  time.Time `json:"edit_date"`
	Fields    Fields    `json:"fields"`
}

func (r *Row) Clone() *Row {
	c := *r
	c.Fields = r.Fields.Clone()
	return &c
}

type SortKey struct {
	Column string
	Desc   bool
}

type FindOptions struct {
	Sort   []SortKey
	Limit  int // 0 — без ограничения
	Offset int
}

// TableStore хранит записи таблиц (каталог, ключи, формулы, фильтр).
type TableStore interface {
	CreateTable(ctx context.Context, t *Table) error
	// GetTable: ok=false, если таблицы нет.
	GetTable(ctx context.Context, id string) (*Table, bool, error)
	ListTables(ctx context.Context, owner string) ([]*Table, error)
	SaveTable(ctx context.Context, t *Table) error
	// DeleteTable удаляет таблицу вместе со всеми строками.
	DeleteTable(ctx context.Context, id string) error
}

// RowStore — бессхемное хранилище строк, логически разбитое по TableID.
type RowStore interface {
	// InsertRow присваивает ID, если он пуст.
	InsertRow(ctx context.Context, r *Row) error
	UpdateRow(ctx context.Context, r *Row) error
	GetRow(ctx context.Context, tableID, id string) (*Row, bool, error)
	FindRows(ctx context.Context, tableID string, p Predicate, opts FindOptions) ([]*Row, error)
	CountRows(ctx context.Context, tableID string, p Predicate) (int, error)
	DeleteRow(ctx context.Context, tableID, id string) error
	// UnsetField удаляет поле из всех строк таблицы; возвращает число изменённых.
	UnsetField(ctx context.Context, tableID, column string) (int, error)
}

type Store interface {
	TableStore
	RowStore
}
