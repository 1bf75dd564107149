package definition

import (
	"strconv"
	"strings"
	"time"

	"github.com/p2community/badge-hub/internal/domain/shared"
)

// ParseISODuration parses an ISO-8601 style time duration of the form
// "PT1H30M25.500S". The leading "PT" is optional so definition authors can
// write "1H30M" directly. Seconds may carry a fractional part; precision
// beyond milliseconds is preserved by time.Duration.
func ParseISODuration(s string) (time.Duration, error) {
	orig := s
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "PT")
	s = strings.TrimPrefix(s, "P")

	if s == "" {
		return 0, shared.NewDomainError("definition", "ParseISODuration", shared.ErrInvalidDuration,
			"empty duration string")
	}

	var total time.Duration
	seen := map[byte]bool{}
	num := strings.Builder{}

	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= '0' && c <= '9') || c == '.' {
			num.WriteByte(c)
			continue
		}

		var unit time.Duration
		switch c {
		case 'H':
			unit = time.Hour
		case 'M':
			unit = time.Minute
		case 'S':
			unit = time.Second
		default:
			return 0, shared.NewDomainError("definition", "ParseISODuration", shared.ErrInvalidDuration,
				"unexpected character "+strconv.QuoteRune(rune(c))+" in duration "+strconv.Quote(orig))
		}

		if num.Len() == 0 {
			return 0, shared.NewDomainError("definition", "ParseISODuration", shared.ErrInvalidDuration,
				"missing value before unit in duration "+strconv.Quote(orig))
		}
		if seen[c] {
			return 0, shared.NewDomainError("definition", "ParseISODuration", shared.ErrInvalidDuration,
				"repeated unit in duration "+strconv.Quote(orig))
		}
		seen[c] = true

		value, err := strconv.ParseFloat(num.String(), 64)
		if err != nil {
			return 0, shared.WrapError("definition", "ParseISODuration", shared.ErrInvalidDuration,
				"invalid number in duration "+strconv.Quote(orig), err)
		}
		num.Reset()

		total += time.Duration(value * float64(unit))
	}

	if num.Len() != 0 {
		return 0, shared.NewDomainError("definition", "ParseISODuration", shared.ErrInvalidDuration,
			"trailing value without unit in duration "+strconv.Quote(orig))
	}

	return total, nil
}
