package binder

import (
	"fmt"
	"math/big"
	"unicode/utf8"

	"github.com/danthegoodman1/tablesync/logical"
	"github.com/danthegoodman1/tablesync/table"
	"github.com/shopspring/decimal"
)

// OverflowPolicy decides what happens to a value that does not fit its
// column: a number out of range or a key string over the VARCHAR limit.
type OverflowPolicy int

const (
	// NullOnOverflow binds NULL for the column, records a NULLED change in the
	// row's meta and keeps the rest of the row.
	NullOnOverflow OverflowPolicy = iota
	// FailOnOverflow rejects the whole row with an OverflowError.
	FailOnOverflow
)

func (p OverflowPolicy) String() string {
	if p == FailOnOverflow {
		return "fail"
	}
	return "null"
}

// Bounds is the range of the physical columns with a size limit: BIGINT for
// integers, NUMERIC(p, s) for decimals and VARCHAR(n) for indexed strings.
type Bounds struct {
	MaxIntegerDigits int
	Scale            int32
	MaxStringLength  int
}

type OverflowError struct {
	Column string
	Value  string
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("value %s out of range for column %s", e.Value, e.Column)
}

func (e *OverflowError) IsPermanent() bool {
	return true
}

func BoundsFor(layout *table.Layout) Bounds {
	return Bounds{
		MaxIntegerDigits: layout.MaxDecimalIntegerDigits,
		Scale:            layout.DecimalScale,
		MaxStringLength:  layout.MaxIndexedStringLength,
	}
}

// Integer returns i as an int64, or false if it does not fit BIGINT.
func (b Bounds) Integer(i *big.Int) (int64, bool) {
	if i == nil || !i.IsInt64() {
		return 0, false
	}
	return i.Int64(), true
}

// Number returns d rounded to the column scale, or false if its integer part
// has too many digits. Excess fractional digits are rounded, not rejected.
func (b Bounds) Number(d decimal.Decimal) (decimal.Decimal, bool) {
	// checked before rounding so a huge exponent is never expanded
	if logical.IntegerDigits(d) > b.MaxIntegerDigits+1 {
		return decimal.Decimal{}, false
	}
	r := d.Round(b.Scale)
	if logical.IntegerDigits(r) > b.MaxIntegerDigits {
		return decimal.Decimal{}, false
	}
	return r, true
}

// IndexedString reports whether s fits a VARCHAR key column. The limit
// counts characters, not bytes.
func (b Bounds) IndexedString(s string) bool {
	return utf8.RuneCountInString(s) <= b.MaxStringLength
}
