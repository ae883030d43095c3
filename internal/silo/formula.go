package silo

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FormulaError — значение, которое пишется в колонку формулы при ошибке.
const FormulaError = "Error"

type reducer func(xs []float64) float64

var formulaOps = map[string]reducer{
	"sum":    sumOf,
	"mean":   meanOf,
	"median": medianOf,
	"mode":   modeOf,
	"max":    func(xs []float64) float64 { return slices.Max(xs) },
	"min":    func(xs []float64) float64 { return slices.Min(xs) },
}

// FormulaOperations — поддерживаемые операции (для валидации на входе API).
func FormulaOperations() []string {
	out := make([]string, 0, len(formulaOps))
	for k := range formulaOps {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// ValidateFormulas проверяет, что все операции известны. Вызывается до записи.
func ValidateFormulas(defs []FormulaColumn) error {
	for _, d := range defs {
		if _, ok := formulaOps[strings.ToLower(d.Operation)]; !ok {
			return &UnknownOperationError{Op: d.Operation}
		}
	}
	return nil
}

// EvaluateFormulas считает формулы на строке. Ошибки по данным строки
// не возвращаются: в колонку пишется "Error". EditedAt обновляется всегда.
func EvaluateFormulas(r *Row, defs []FormulaColumn, now time.Time) error {
	if len(defs) == 0 {
		return nil
	}
	if err := ValidateFormulas(defs); err != nil {
		return err
	}
	for _, d := range defs {
		reduce := formulaOps[strings.ToLower(d.Operation)]
		xs, ok := numericValues(&r.Fields, d.Columns)
		if !ok {
			r.Fields.Set(d.Name, String(FormulaError))
			continue
		}
		r.Fields.Set(d.Name, Float(round4(reduce(xs))))
	}
	r.EditedAt = now
	return nil
}

func numericValues(f *Fields, cols []string) ([]float64, bool) {
	if len(cols) == 0 {
		return nil, false
	}
	xs := make([]float64, 0, len(cols))
	for _, c := range cols {
		v, ok := f.Get(c)
		if !ok {
			return nil, false
		}
		x, ok := v.Number()
		if !ok {
			return nil, false
		}
		xs = append(xs, x)
	}
	return xs, true
}

// round4: округление до 4 знаков по десятичной записи числа, половина от нуля.
func round4(x float64) float64 {
	return decimal.NewFromFloat(x).Round(4).InexactFloat64()
}

func sumOf(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}

func meanOf(xs []float64) float64 { return sumOf(xs) / float64(len(xs)) }

// medianOf: при чётном числе — меньшее из двух средних.
func medianOf(xs []float64) float64 {
	s := slices.Clone(xs)
	slices.Sort(s)
	return s[(len(s)-1)/2]
}

// modeOf: самое частое значение; при равенстве — наименьшее.
func modeOf(xs []float64) float64 {
	counts := make(map[float64]int, len(xs))
	for _, x := range xs {
		counts[x]++
	}
	best, bestN := 0.0, 0
	for x, n := range counts {
		if n > bestN || (n == bestN && x < best) {
			best, bestN = x, n
		}
	}
	return best
}
