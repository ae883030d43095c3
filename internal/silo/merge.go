package silo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
	"go.uber.org/zap"
)

// Режимы TableMerger (метка метрик).
const (
	ModeMerge  = "merge"
	ModeAppend = "append"
)

// Редукторы сопоставленных колонок.
const (
	ReduceNone = ""
	ReduceSum  = "Sum"
	ReduceAvg  = "Avg"
	ReduceJoin = "Join"
)

// ColumnMapping: одна или несколько колонок левой таблицы и колонка правой
// сводятся в колонку назначения с именем RightColumn.
type ColumnMapping struct {
	LeftColumns []string `json:"left_table_cols"`
	RightColumn string   `json:"right_table_col"`
	Reducer     string   `json:"merge_type"`
}

// MergeMapping — описание слияния двух таблиц.
// nil в LeftUnmapped/RightUnmapped — переносить все несопоставленные колонки стороны,
// пустой список — не переносить ничего.
type MergeMapping struct {
	Columns       []ColumnMapping `json:"columns"`
	LeftUnmapped  []string        `json:"left_unmapped_cols"`
	RightUnmapped []string        `json:"right_unmapped_cols"`
}

// UnmarshalJSON принимает и форму {"columns": [...]}, и исходную
// {"0": {...}, "1": {...}, "left_unmapped_cols": [...], "right_unmapped_cols": [...]}.
func (m *MergeMapping) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := MergeMapping{}
	var numbered []int
	byNum := map[int]ColumnMapping{}
	for k, v := range raw {
		switch k {
		case "left_unmapped_cols":
			if err := decodeCarry(v, &out.LeftUnmapped); err != nil {
				return fmt.Errorf("left_unmapped_cols: %w", err)
			}
		case "right_unmapped_cols":
			if err := decodeCarry(v, &out.RightUnmapped); err != nil {
				return fmt.Errorf("right_unmapped_cols: %w", err)
			}
		case "columns":
			if err := json.Unmarshal(v, &out.Columns); err != nil {
				return fmt.Errorf("columns: %w", err)
			}
		default:
			n, err := strconv.Atoi(k)
			if err != nil {
				return fmt.Errorf("unexpected mapping key %q", k)
			}
			var cm ColumnMapping
			if err := json.Unmarshal(v, &cm); err != nil {
				return fmt.Errorf("mapping %q: %w", k, err)
			}
			numbered = append(numbered, n)
			byNum[n] = cm
		}
	}
	sort.Ints(numbered)
	for _, n := range numbered {
		out.Columns = append(out.Columns, byNum[n])
	}
	*m = out
	return nil
}

// decodeCarry: null/отсутствие — nil, [] — пустой, но не nil.
func decodeCarry(raw json.RawMessage, dst *[]string) error {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		*dst = nil
		return nil
	}
	var xs []string
	if err := json.Unmarshal(raw, &xs); err != nil {
		return err
	}
	if xs == nil {
		xs = []string{}
	}
	*dst = xs
	return nil
}

func (m MergeMapping) validate() error {
	for i, c := range m.Columns {
		if c.RightColumn == "" {
			return fmt.Errorf("mapping %d: right_table_col is required", i)
		}
		if len(c.LeftColumns) == 0 && c.Reducer != ReduceNone {
			return fmt.Errorf("mapping %d: %s needs left_table_cols", i, c.Reducer)
		}
		if _, err := reducerName(c.Reducer); err != nil {
			return err
		}
	}
	return nil
}

func reducerName(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return ReduceNone, nil
	case "sum":
		return ReduceSum, nil
	case "avg":
		return ReduceAvg, nil
	case "join":
		return ReduceJoin, nil
	}
	return "", &UnknownOperationError{Op: s}
}

// MergeTables соединяет две таблицы по общему уникальному ключу в dest.
func (e *Engine) MergeTables(ctx context.Context, m MergeMapping, leftID, rightID, destID string) Result {
	res := e.merge(ctx, m, leftID, rightID, destID)
	e.observer.MergeDone(ModeMerge, res)
	return res
}

// AppendTables копирует все строки обеих таблиц в dest без сверки.
func (e *Engine) AppendTables(ctx context.Context, m MergeMapping, leftID, rightID, destID string) Result {
	res := e.appendRows(ctx, m, leftID, rightID, destID)
	e.observer.MergeDone(ModeAppend, res)
	return res
}

type mergeInputs struct {
	left, right, dest   *Table
	leftRows, rightRows []*Row
}

func (e *Engine) loadMergeInputs(ctx context.Context, m MergeMapping, leftID, rightID, destID string) (*mergeInputs, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	if destID == leftID || destID == rightID {
		return nil, errors.New("destination table must differ from the source tables")
	}
	in := &mergeInputs{}
	var err error
	if in.left, err = e.table(ctx, leftID); err != nil {
		return nil, err
	}
	if in.right, err = e.table(ctx, rightID); err != nil {
		return nil, err
	}
	if in.dest, err = e.table(ctx, destID); err != nil {
		return nil, err
	}
	n, err := e.store.CountRows(ctx, destID, Predicate{})
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, fmt.Errorf("destination table, %s, must be empty", in.dest.Name)
	}
	return in, nil
}

func (e *Engine) loadRows(ctx context.Context, in *mergeInputs) error {
	var err error
	if in.leftRows, err = e.store.FindRows(ctx, in.left.ID, Predicate{}, FindOptions{}); err != nil {
		return err
	}
	if in.rightRows, err = e.store.FindRows(ctx, in.right.ID, Predicate{}, FindOptions{}); err != nil {
		return err
	}
	return nil
}

func (e *Engine) merge(ctx context.Context, m MergeMapping, leftID, rightID, destID string) Result {
	in, err := e.loadMergeInputs(ctx, m, leftID, rightID, destID)
	if err != nil {
		return e.mergeFailed(ModeMerge, err)
	}

	// 1) уникальные ключи: непустые и одинаковые у обеих сторон
	if err := compatibleKeys(in.left, in.right); err != nil {
		return e.mergeFailed(ModeMerge, err)
	}
	keys := in.left.UniqueKeys

	if err := e.loadRows(ctx, in); err != nil {
		return e.mergeFailed(ModeMerge, err)
	}

	// 2) группы по значениям ключа
	groups := groupByKey(keys, in.leftRows, in.rightRows)

	// 3) раскладка колонок назначения
	plan := newMergePlan(m, keys, in.left, consumedColumns(in.leftRows), in.right, consumedColumns(in.rightRows))

	// 4) все строки считаются до первой записи
	now := e.now()
	out := make([]*Row, 0, len(groups))
	for _, g := range groups {
		f, err := plan.mergeGroup(keys, g)
		if err != nil {
			return e.mergeFailed(ModeMerge, err)
		}
		src := NoSource
		if g.left != nil {
			src = g.leftSource
		} else if g.right != nil {
			src = g.rightSource
		}
		out = append(out, &Row{TableID: in.dest.ID, SourceID: src, CreatedAt: now, EditedAt: now, Fields: f})
	}

	in.dest.UniqueKeys = slices.Clone(keys)
	if err := e.writeDestination(ctx, in, out); err != nil {
		return e.mergeFailed(ModeMerge, err)
	}
	e.log.Info("Tables merged", zap.String("left", in.left.ID), zap.String("right", in.right.ID), zap.String("dest", in.dest.ID), zap.Int("rows", len(out)))
	return success("Merged data successfully (%d rows)", len(out))
}

func (e *Engine) appendRows(ctx context.Context, m MergeMapping, leftID, rightID, destID string) Result {
	in, err := e.loadMergeInputs(ctx, m, leftID, rightID, destID)
	if err != nil {
		return e.mergeFailed(ModeAppend, err)
	}
	if err := e.loadRows(ctx, in); err != nil {
		return e.mergeFailed(ModeAppend, err)
	}
	// правая сторона копируется как есть, её колонки в раскладке не участвуют
	plan := newMergePlan(m, nil, in.left, consumedColumns(in.leftRows), nil, nil)

	now := e.now()
	out := make([]*Row, 0, len(in.leftRows)+len(in.rightRows))
	for _, r := range in.leftRows {
		f, err := plan.mapLeft(r.Fields)
		if err != nil {
			return e.mergeFailed(ModeAppend, err)
		}
		out = append(out, &Row{TableID: in.dest.ID, SourceID: r.SourceID, CreatedAt: now, EditedAt: now, Fields: f})
	}
	for _, r := range in.rightRows {
		out = append(out, &Row{TableID: in.dest.ID, SourceID: r.SourceID, CreatedAt: now, EditedAt: now, Fields: r.Fields.Clone()})
	}
	if err := e.writeDestination(ctx, in, out); err != nil {
		return e.mergeFailed(ModeAppend, err)
	}
	e.log.Info("Tables appended", zap.String("left", in.left.ID), zap.String("right", in.right.ID), zap.String("dest", in.dest.ID), zap.Int("rows", len(out)))
	return success("Appended data successfully (%d rows)", len(out))
}

func (e *Engine) mergeFailed(mode string, err error) Result {
	e.log.Warn("Table merge failed", zap.String("mode", mode), zap.Error(err))
	return danger(err)
}

func compatibleKeys(left, right *Table) error {
	switch {
	case len(left.UniqueKeys) == 0:
		return &IncompatibleUniqueKeysError{Left: left.Name, Right: right.Name, Missing: left.Name}
	case len(right.UniqueKeys) == 0:
		return &IncompatibleUniqueKeysError{Left: left.Name, Right: right.Name, Missing: right.Name}
	}
	a, b := slices.Clone(left.UniqueKeys), slices.Clone(right.UniqueKeys)
	slices.Sort(a)
	slices.Sort(b)
	if !slices.Equal(a, b) {
		return &IncompatibleUniqueKeysError{Left: left.Name, Right: right.Name}
	}
	return nil
}

// writeDestination вставляет строки и обновляет каталог назначения.
func (e *Engine) writeDestination(ctx context.Context, in *mergeInputs, rows []*Row) error {
	var names []string
	for _, r := range rows {
		names = append(names, r.Fields.Keys()...)
	}
	types := map[string]ColumnType{}
	for _, t := range []*Table{in.right, in.left} {
		for _, c := range t.Columns {
			types[c.Name] = c.Type
		}
	}
	if _, err := in.dest.DeclareColumns(newColumns(in.dest, names), types); err != nil {
		return err
	}
	for _, s := range in.left.Sources {
		in.dest.AddSource(s)
	}
	for _, s := range in.right.Sources {
		in.dest.AddSource(s)
	}
	for _, r := range rows {
		if err := e.store.InsertRow(ctx, r); err != nil {
			e.log.Error("Failed to insert merged row", zap.String("table", in.dest.ID), zap.Error(err))
			return err
		}
	}
	return e.store.SaveTable(ctx, in.dest)
}

// consumedColumns — все поля строк стороны в порядке первого появления.
func consumedColumns(rows []*Row) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, r := range rows {
		for _, k := range r.Fields.Keys() {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				out = append(out, k)
			}
		}
	}
	return out
}

type mergeGroup struct {
	key                     []string
	left, right             *Fields
	leftSource, rightSource string
}

// groupByKey: xxh3 по каноническому тексту ключа, затем точное сравнение.
// Порядок — сначала группы левой стороны, затем только правые.
func groupByKey(keys []string, left, right []*Row) []*mergeGroup {
	buckets := map[uint64][]*mergeGroup{}
	var order []*mergeGroup

	find := func(k []string) *mergeGroup {
		h := hashKey(k)
		for _, g := range buckets[h] {
			if slices.Equal(g.key, k) {
				return g
			}
		}
		g := &mergeGroup{key: k}
		buckets[h] = append(buckets[h], g)
		order = append(order, g)
		return g
	}

	for _, r := range left {
		g := find(canonicalKey(keys, &r.Fields))
		if g.left == nil {
			f := r.Fields.Clone()
			g.left, g.leftSource = &f, r.SourceID
		} else {
			g.left.Merge(r.Fields)
		}
	}
	for _, r := range right {
		g := find(canonicalKey(keys, &r.Fields))
		if g.right == nil {
			f := r.Fields.Clone()
			g.right, g.rightSource = &f, r.SourceID
		} else {
			g.right.Merge(r.Fields)
		}
	}
	return order
}

func hashKey(k []string) uint64 {
	return xxh3.HashString(strings.Join(k, "\x1f"))
}

// canonicalKey: числа по значению ("1", 1, 1.0 совпадают), null отдельно от "".
func canonicalKey(keys []string, f *Fields) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		v, ok := f.Get(k)
		switch {
		case !ok || v.IsNull():
			out[i] = "\x00"
		default:
			if x, ok := v.Number(); ok {
				out[i] = "n:" + strconv.FormatFloat(x, 'g', -1, 64)
			} else {
				out[i] = "s:" + v.Text()
			}
		}
	}
	return out
}

// mergePlan — имена колонок назначения, вычисленные один раз на операцию.
type mergePlan struct {
	mappings   []ColumnMapping
	leftCarry  []carried
	rightCarry []carried
}

type carried struct {
	from, to string
}

// right == nil — раскладка только для левой стороны (append).
func newMergePlan(m MergeMapping, keys []string, left *Table, leftCols []string, right *Table, rightCols []string) *mergePlan {
	p := &mergePlan{mappings: m.Columns}

	taken := map[string]struct{}{}
	leftUsed := map[string]struct{}{}
	rightUsed := map[string]struct{}{}
	for _, k := range keys {
		taken[k] = struct{}{}
		leftUsed[k] = struct{}{}
		rightUsed[k] = struct{}{}
	}
	for _, c := range m.Columns {
		taken[c.RightColumn] = struct{}{}
		rightUsed[c.RightColumn] = struct{}{}
		for _, l := range c.LeftColumns {
			leftUsed[l] = struct{}{}
		}
	}

	lc := carryList(m.LeftUnmapped, unionCols(left.ListAll(), leftCols), leftUsed)
	var rc []string
	if right != nil {
		rc = carryList(m.RightUnmapped, unionCols(right.ListAll(), rightCols), rightUsed)
	}

	inRight := map[string]struct{}{}
	for _, c := range rc {
		inRight[c] = struct{}{}
	}
	inLeft := map[string]struct{}{}
	for _, c := range lc {
		inLeft[c] = struct{}{}
	}
	for _, c := range lc {
		_, clash := taken[c]
		if _, both := inRight[c]; both {
			clash = true
		}
		to := c
		if clash {
			to = "left_" + c
		}
		p.leftCarry = append(p.leftCarry, carried{from: c, to: to})
	}
	for _, c := range rc {
		_, clash := taken[c]
		if _, both := inLeft[c]; both {
			clash = true
		}
		to := c
		if clash {
			to = "right_" + c
		}
		p.rightCarry = append(p.rightCarry, carried{from: c, to: to})
	}
	return p
}

func unionCols(a, b []string) []string {
	out := slices.Clone(a)
	for _, c := range b {
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

// carryList: явный список как есть (без уже использованных), nil — все неиспользованные.
func carryList(explicit, all []string, used map[string]struct{}) []string {
	src := explicit
	if explicit == nil {
		src = all
	}
	var out []string
	for _, c := range src {
		if _, ok := used[c]; ok {
			continue
		}
		if slices.Contains(out, c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (p *mergePlan) mergeGroup(keys []string, g *mergeGroup) (Fields, error) {
	var out Fields
	var empty Fields
	left, right := g.left, g.right
	if left == nil {
		left = &empty
	}
	if right == nil {
		right = &empty
	}

	// ключ: слева, иначе справа
	for _, k := range keys {
		if v, ok := left.Get(k); ok {
			out.Set(k, v)
		} else if v, ok := right.Get(k); ok {
			out.Set(k, v)
		}
	}

	for _, c := range p.mappings {
		var vals []Value
		for _, l := range c.LeftColumns {
			if v, ok := left.Get(l); ok && !v.IsNull() {
				vals = append(vals, v)
			}
		}
		if v, ok := right.Get(c.RightColumn); ok && !v.IsNull() {
			vals = append(vals, v)
		}
		if len(vals) == 0 {
			continue
		}
		v, err := reduce(c.Reducer, vals)
		if err != nil {
			return Fields{}, err
		}
		out.Set(c.RightColumn, v)
	}

	for _, c := range p.leftCarry {
		if v, ok := left.Get(c.from); ok {
			out.Set(c.to, v)
		}
	}
	for _, c := range p.rightCarry {
		if v, ok := right.Get(c.from); ok && !out.Has(c.to) {
			out.Set(c.to, v)
		}
	}
	return out, nil
}

// mapLeft — строка левой таблицы через сопоставление (append).
func (p *mergePlan) mapLeft(f Fields) (Fields, error) {
	var out Fields
	for _, c := range p.mappings {
		var vals []Value
		for _, l := range c.LeftColumns {
			if v, ok := f.Get(l); ok && !v.IsNull() {
				vals = append(vals, v)
			}
		}
		if len(vals) == 0 {
			continue
		}
		v, err := reduce(c.Reducer, vals)
		if err != nil {
			return Fields{}, err
		}
		out.Set(c.RightColumn, v)
	}
	for _, c := range p.leftCarry {
		if v, ok := f.Get(c.from); ok {
			out.Set(c.to, v)
		}
	}
	return out, nil
}

// reduce: без редуктора — первое присутствующее значение (левое приоритетнее).
func reduce(name string, vals []Value) (Value, error) {
	r, err := reducerName(name)
	if err != nil {
		return Value{}, err
	}
	switch r {
	case ReduceNone:
		return vals[0], nil
	case ReduceJoin:
		parts := make([]string, len(vals))
		for i, v := range vals {
			parts[i] = v.Text()
		}
		return String(strings.Join(parts, " ")), nil
	}
	var sum float64
	for _, v := range vals {
		x, ok := v.Number()
		if !ok {
			return Value{}, fmt.Errorf("The merge-type, %s, requires a numeric value. But the value, %s, is not a numeric value.", r, v.Text())
		}
		sum += x
	}
	if r == ReduceAvg {
		return Float(sum / float64(len(vals))), nil
	}
	return Float(sum), nil
}
