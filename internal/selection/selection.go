// Package selection parses the compact pair selection syntax: comma separated
// 1-based indices and inclusive ranges ("1,3,5-7"), or the test token "t".
package selection

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// TestToken selects the synthetic pair set.
const TestToken = "t"

// TestPairs is the fixed pair set used in test mode; prices come from the
// synthetic source, never from the exchange.
var TestPairs = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}

// ErrEmpty is returned for blank input.
var ErrEmpty = errors.New("selection is empty")

// ValidationError describes a rejected token.
type ValidationError struct {
	Token  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid selection token %q: %s", e.Token, e.Reason)
}

// Selection is the parsed result.
type Selection struct {
	Indices  []int
	TestMode bool
}

// MaxUnbounded caps indices when Parse has no symbol count to check against.
const MaxUnbounded = 10000

// Parse validates input against a list of count entries. count <= 0 checks
// against MaxUnbounded instead.
func Parse(input string, count int) (Selection, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Selection{}, ErrEmpty
	}
	if strings.EqualFold(input, TestToken) {
		return Selection{TestMode: true}, nil
	}

	var indices []int
	for _, raw := range strings.Split(input, ",") {
		token := strings.TrimSpace(raw)
		switch {
		case token == "":
			return Selection{}, &ValidationError{Token: raw, Reason: "empty entry"}
		case strings.EqualFold(token, TestToken):
			return Selection{}, &ValidationError{Token: token, Reason: "test token cannot be combined with indices"}
		}

		if left, right, isRange := strings.Cut(token, "-"); isRange {
			start, err := parseIndex(token, left, count)
			if err != nil {
				return Selection{}, err
			}
			end, err := parseIndex(token, right, count)
			if err != nil {
				return Selection{}, err
			}
			if start > end {
				return Selection{}, &ValidationError{Token: token, Reason: fmt.Sprintf("reversed range %d-%d", start, end)}
			}
			for i := start; i <= end; i++ {
				indices = append(indices, i)
			}
			continue
		}

		idx, err := parseIndex(token, token, count)
		if err != nil {
			return Selection{}, err
		}
		indices = append(indices, idx)
	}

	indices = lo.Uniq(indices)
	sort.Ints(indices)
	return Selection{Indices: indices}, nil
}

func parseIndex(token, part string, count int) (int, error) {
	part = strings.TrimSpace(part)
	n, err := strconv.Atoi(part)
	if err != nil {
		return 0, &ValidationError{Token: token, Reason: fmt.Sprintf("%q is not a number", part)}
	}
	if n < 1 {
		return 0, &ValidationError{Token: token, Reason: fmt.Sprintf("index %d out of bounds (minimum 1)", n)}
	}
	limit := count
	if limit <= 0 {
		limit = MaxUnbounded
	}
	if n > limit {
		return 0, &ValidationError{Token: token, Reason: fmt.Sprintf("index %d out of bounds (maximum %d)", n, limit)}
	}
	return n, nil
}

// Resolve maps the selection onto symbols (index 1 is symbols[0]).
func (s Selection) Resolve(symbols []string) ([]string, error) {
	if s.TestMode {
		return append([]string(nil), TestPairs...), nil
	}
	if len(s.Indices) == 0 {
		return nil, ErrEmpty
	}
	out := make([]string, 0, len(s.Indices))
	for _, idx := range s.Indices {
		if idx < 1 || idx > len(symbols) {
			return nil, &ValidationError{Token: strconv.Itoa(idx), Reason: fmt.Sprintf("index out of bounds (maximum %d)", len(symbols))}
		}
		out = append(out, symbols[idx-1])
	}
	return out, nil
}
