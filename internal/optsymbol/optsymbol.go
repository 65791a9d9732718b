// Package optsymbol formats and parses the engine's option ticker
// convention: UNDERLYING-YYMMDD-[C|P]-STRIKE. All tickers are uppercased
// at ingress.
package optsymbol

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSymbol is returned when a string does not match the
// UNDERLYING-YYMMDD-[C|P]-STRIKE grammar.
var ErrInvalidSymbol = errors.New("optsymbol: invalid option symbol format")

// symbolRegex matches: UNDERLYING-YYMMDD-[C|P]-STRIKE
// Example: NVDA-250815-C-750, NVDA-250815-C-750.5
var symbolRegex = regexp.MustCompile(
	`^([A-Z.]+)-(\d{6})-([CP])-(\d+(?:\.\d+)?)$`,
)

// Symbol is a parsed option ticker.
type Symbol struct {
	Underlying string
	Expiry     time.Time // calendar date, UTC midnight
	Type       string    // "call" | "put"
	Strike     float64
}

// Format renders the canonical ticker for the given contract fields.
// expiry is truncated to its calendar date; strike is rendered without a
// trailing ".0" for whole-dollar strikes.
func Format(underlying string, expiry time.Time, optionType string, strike float64) string {
	letter := "C"
	if strings.EqualFold(optionType, "put") {
		letter = "P"
	}
	return fmt.Sprintf("%s-%s-%s-%s",
		strings.ToUpper(underlying),
		expiry.Format("060102"),
		letter,
		formatStrike(strike),
	)
}

// Parse parses and validates a ticker string of the form
// UNDERLYING-YYMMDD-[C|P]-STRIKE.
func Parse(ticker string) (*Symbol, error) {
	matches := symbolRegex.FindStringSubmatch(strings.ToUpper(ticker))
	if matches == nil {
		return nil, fmt.Errorf("%w: %s (expected UNDERLYING-YYMMDD-[C|P]-STRIKE)", ErrInvalidSymbol, ticker)
	}

	underlying := matches[1]
	dateStr := matches[2]
	letter := matches[3]
	strikeStr := matches[4]

	expiry, err := time.Parse("060102", dateStr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %s", ErrInvalidSymbol, dateStr)
	}

	strike, err := strconv.ParseFloat(strikeStr, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid strike %s", ErrInvalidSymbol, strikeStr)
	}

	optionType := "call"
	if letter == "P" {
		optionType = "put"
	}

	return &Symbol{
		Underlying: underlying,
		Expiry:     expiry,
		Type:       optionType,
		Strike:     strike,
	}, nil
}

// formatStrike renders a strike without an unnecessary trailing ".0".
func formatStrike(strike float64) string {
	s := strconv.FormatFloat(strike, 'f', -1, 64)
	return s
}
