package silo

import (
	"errors"
	"fmt"
)

var (
	ErrTableNotFound  = errors.New("table not found")
	ErrColumnNotFound = errors.New("column not found")
	ErrRowNotFound    = errors.New("row not found")
)

type DuplicateColumnError struct {
	Column string
}

func (e *DuplicateColumnError) Error() string {
	return fmt.Sprintf("duplicate column %q in batch", e.Column)
}

// TypeCoercionError — первое значение колонки, не приводимое к типу.
type TypeCoercionError struct {
	Column string
	Value  Value
	Type   ColumnType
}

func (e *TypeCoercionError) Error() string {
	return fmt.Sprintf("column %q: value %q cannot be converted to %s", e.Column, e.Value.Text(), e.Type)
}

type UnknownOperationError struct {
	Op string
}

func (e *UnknownOperationError) Error() string {
	return fmt.Sprintf("unknown operation %q", e.Op)
}

type IncompatibleUniqueKeysError struct {
	Left, Right string // имена таблиц
	// Missing — имя таблицы без уникального ключа; пусто, если ключи есть у обеих, но различаются.
	Missing string
}

func (e *IncompatibleUniqueKeysError) Error() string {
	if e.Missing != "" {
		return fmt.Sprintf("The table, %s, does not have a column set as unique field (merging %s and %s)", e.Missing, e.Left, e.Right)
	}
	return fmt.Sprintf("Both tables (%s, %s) must have the same column set as unique fields", e.Left, e.Right)
}

// Статусы пользовательских операций.
const (
	StatusSuccess = "success"
	StatusDanger  = "danger"
)

// Result — итог пользовательской операции (merge, смена типа колонки).
type Result struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (r Result) OK() bool { return r.Status == StatusSuccess }

func success(format string, args ...any) Result {
	return Result{Status: StatusSuccess, Message: fmt.Sprintf(format, args...)}
}

func danger(err error) Result {
	return Result{Status: StatusDanger, Message: err.Error(), Err: err}
}
