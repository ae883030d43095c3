package silo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

var errNotCoercible = errors.New("not coercible")

// Coerce приводит значение к типу колонки. null остаётся null.
func Coerce(v Value, t ColumnType) (Value, error) {
	if v.IsNull() {
		return v, nil
	}
	switch t {
	case TypeString:
		return String(v.Text()), nil
	case TypeInt:
		n, err := toIntStrict(v)
		return Int(n), err
	case TypeFloat:
		f, ok := v.Number()
		if !ok {
			return v, errNotCoercible
		}
		return Float(f), nil
	case TypeBool:
		b, err := toBoolStrict(v)
		return Bool(b), err
	case TypeDate:
		tm, err := toTimeStrict(v, dateLayout)
		if err != nil {
			return v, err
		}
		y, m, d := tm.Date()
		return Time(time.Date(y, m, d, 0, 0, 0, 0, time.UTC)), nil
	case TypeDatetime:
		tm, err := toTimeStrict(v, time.RFC3339Nano)
		return Time(tm), err
	}
	return v, fmt.Errorf("unknown column type %q", t)
}

func toIntStrict(v Value) (int64, error) {
	switch v.Kind() {
	case KindInt:
		n, _ := v.AsInt()
		return n, nil
	case KindFloat:
		// дробная часть недопустима
		f, _ := v.AsFloat()
		if f != math.Trunc(f) || math.IsInf(f, 0) {
			return 0, errNotCoercible
		}
		return int64(f), nil
	case KindString:
		s, _ := v.AsString()
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0, errNotCoercible
		}
		return n, nil
	}
	return 0, errNotCoercible
}

func toBoolStrict(v Value) (bool, error) {
	switch v.Kind() {
	case KindBool:
		b, _ := v.AsBool()
		return b, nil
	case KindInt:
		n, _ := v.AsInt()
		if n == 0 || n == 1 {
			return n == 1, nil
		}
	case KindString:
		s, _ := v.AsString()
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "1", "yes", "y", "on":
			return true, nil
		case "false", "0", "no", "n", "off":
			return false, nil
		}
	}
	return false, errNotCoercible
}

func toTimeStrict(v Value, layout string) (time.Time, error) {
	switch v.Kind() {
	case KindTime:
		t, _ := v.AsTime()
		return t, nil
	case KindString:
		s, _ := v.AsString()
		s = strings.TrimSpace(s)
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
		// дата принимает и полный datetime, datetime — и голую дату
		alt := dateLayout
		if layout == dateLayout {
			alt = time.RFC3339Nano
		}
		if t, err := time.Parse(alt, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errNotCoercible
}

// SetColumnType меняет объявленный тип колонки. Сначала полный проход по строкам:
// первое неприводимое значение даёт TypeCoercionError и ничего не меняется.
// Затем значения колонки переписываются в новом типе.
func (e *Engine) SetColumnType(ctx context.Context, tableID, column string, typ ColumnType) Result {
	if !typ.Valid() {
		return danger(fmt.Errorf("unknown column type %q", typ))
	}
	t, err := e.table(ctx, tableID)
	if err != nil {
		return danger(err)
	}
	idx := t.columnIndex(column)
	if idx < 0 {
		return danger(fmt.Errorf("%w: %s", ErrColumnNotFound, column))
	}
	rows, err := e.store.FindRows(ctx, tableID, Predicate{}, FindOptions{})
	if err != nil {
		e.log.Error("Failed to scan rows", zap.String("table", tableID), zap.Error(err))
		return danger(err)
	}

	// 1) проверка без изменений
	type change struct {
		row *Row
		val Value
	}
	var changes []change
	for _, r := range rows {
		v, ok := r.Fields.Get(column)
		if !ok {
			continue
		}
		cv, err := Coerce(v, typ)
		if err != nil {
			return danger(&TypeCoercionError{Column: column, Value: v, Type: typ})
		}
		if cv != v {
			changes = append(changes, change{row: r, val: cv})
		}
	}

	// 2) запись
	for _, c := range changes {
		c.row.Fields.Set(column, c.val)
		if err := e.store.UpdateRow(ctx, c.row); err != nil {
			e.log.Error("Failed to rewrite row", zap.String("table", tableID), zap.String("row", c.row.ID), zap.Error(err))
			return danger(err)
		}
	}
	t.Columns[idx].Type = typ
	if err := e.store.SaveTable(ctx, t); err != nil {
		return danger(err)
	}
	return success("Column %s converted to %s (%d rows rewritten)", column, typ, len(changes))
}
