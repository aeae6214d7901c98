package logical

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxDecimalExponent bounds the exponent ParseDecimal accepts, as the
// distance of the least significant digit from the decimal point. Any value
// past it is far outside NUMERIC(38, 9) and would otherwise make rounding
// and printing expand it digit by digit.
const MaxDecimalExponent = 400

var ErrInvalidDecimal = fmt.Errorf("invalid decimal")

// ParseDecimal parses plain and exponent notation (`-12.5`, `1e-3`).
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, ErrInvalidDecimal
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("error parsing %q: %w", s, ErrInvalidDecimal)
	}
	if exp := d.Exponent(); exp > MaxDecimalExponent || exp < -MaxDecimalExponent {
		return decimal.Decimal{}, fmt.Errorf("exponent of %q out of range: %w", s, ErrInvalidDecimal)
	}
	return d, nil
}

// IntegerDigits is the number of digits left of the decimal point, ignoring
// leading zeros.
func IntegerDigits(d decimal.Decimal) int {
	intPart := d.Abs().Truncate(0)
	if intPart.IsZero() {
		return 0
	}
	return len(intPart.Coefficient().String()) + int(intPart.Exponent())
}
