package misc

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

var nonPriceCharRegex = regexp.MustCompile(`[^0-9.]`)

func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

func StringLimit(s string, n int) string {
	if n < 0 {
		return ""
	}
	if n <= 3 {
		return s[:Min(n, len(s))]
	}
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

func BytesLimit(bs []byte, n int) []byte {
	if n < 0 {
		return nil
	}
	if n <= 3 {
		return bs[:Min(n, len(bs))]
	}
	if len(bs) > n {
		out := make([]byte, 0, n)
		out = append(out, bs[:n-3]...)
		return append(out, "..."...)
	}
	return bs
}

// Chunk splits s into consecutive batches of at most size elements.
func Chunk[T any](s []T, size int) [][]T {
	if size <= 0 || len(s) == 0 {
		return nil
	}
	chunks := make([][]T, 0, (len(s)+size-1)/size)
	for start := 0; start < len(s); start += size {
		chunks = append(chunks, s[start:Min(start+size, len(s))])
	}
	return chunks
}

// ParsePriceString turns a storefront price label such as "$26.99", "CA$ 1,299.00"
// or "Free" into a number. "Free" and "Included" are zero.
func ParsePriceString(s string) (float64, error) {
	trimmed := strings.TrimSpace(s)
	switch strings.ToLower(trimmed) {
	case "free", "included":
		return 0, nil
	}
	cleaned := nonPriceCharRegex.ReplaceAllString(trimmed, "")
	if cleaned == "" {
		return 0, errors.Errorf("no digits in price string: %#v", s)
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid price string: %#v", s)
	}
	return RoundCents(f), nil
}

func RoundCents(f float64) float64 {
	return math.Round(f*100) / 100
}
