package banner

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/antzucaro/matchr"
)

var ErrInvalidTerm = errors.New("invalid term")

// Term is one of the four canonical term names.
type Term string

const (
	Winter Term = "WINTER"
	Spring Term = "SPRING"
	Summer Term = "SUMMER"
	Fall   Term = "FALL"
)

// Terms lists the canonical terms in calendar order.
var Terms = []Term{Winter, Spring, Summer, Fall}

var termMonths = map[Term]string{
	Winter: "01",
	Spring: "05",
	Summer: "07",
	Fall:   "09",
}

func validTermList() string {
	names := make([]string, len(Terms))
	for i, t := range Terms {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

// ParseTerm accepts a term name in any case and returns its canonical form.
func ParseTerm(name string) (Term, error) {
	term := Term(strings.ToUpper(strings.TrimSpace(name)))
	if _, ok := termMonths[term]; ok {
		return term, nil
	}

	suggestion := suggestTerm(name)
	if suggestion != "" {
		return "", fmt.Errorf(
			"%w %q (did you mean %s?), valid terms are %s",
			ErrInvalidTerm, name, suggestion, validTermList(),
		)
	}
	return "", fmt.Errorf("%w %q, valid terms are %s", ErrInvalidTerm, name, validTermList())
}

func suggestTerm(name string) Term {
	input := strings.ToUpper(strings.TrimSpace(name))
	if input == "" {
		return ""
	}

	var best Term
	bestScore := 0.8
	for _, t := range Terms {
		score := matchr.JaroWinkler(input, string(t), false)
		if score >= bestScore {
			best = t
			bestScore = score
		}
	}
	return best
}

// TermCode returns the YYYYMM code the portal uses for a term.
func TermCode(year int, term Term) (string, error) {
	canonical, err := ParseTerm(string(term))
	if err != nil {
		return "", err
	}
	if year < 1000 || year > 9999 {
		return "", fmt.Errorf("%w: year %d is not four digits", ErrInvalidTerm, year)
	}
	return fmt.Sprintf("%04d%s", year, termMonths[canonical]), nil
}

// CurrentTerm guesses the term registration is open for from the calendar
// month. The boundaries are approximate and do not follow the registrar's
// published calendar.
func CurrentTerm(now time.Time) (int, Term) {
	month := now.Month()
	switch {
	case month >= time.September:
		return now.Year(), Fall
	case month >= time.May:
		return now.Year(), Summer
	case month >= time.January:
		return now.Year(), Winter
	}
	return now.Year() - 1, Fall
}
