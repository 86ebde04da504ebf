package helpers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidPrice = errors.New("invalid price format")

// ParsePrice keeps only the ASCII digits and dots of s and parses what is
// left, so "55.000 VND" yields 55. A string without digits is invalid.
func ParsePrice(s string) (decimal.Decimal, error) {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}

	filtered := b.String()
	if strings.Count(filtered, ".") > 1 || strings.Trim(filtered, ".") == "" {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidPrice, s)
	}

	price, err := decimal.NewFromString(filtered)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidPrice, s)
	}
	return price, nil
}

// ParsePositivePrice is ParsePrice for user input that must be a charge.
func ParsePositivePrice(s string) (decimal.Decimal, error) {
	price, err := ParsePrice(s)
	if err != nil {
		return decimal.Zero, err
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %q is not a positive amount", ErrInvalidPrice, s)
	}
	return price, nil
}

func StringToInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
