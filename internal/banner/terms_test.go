package banner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTermCode(t *testing.T) {
	table := []struct {
		year     int
		term     Term
		expected string
	}{
		{year: 2024, term: Fall, expected: "202409"},
		{year: 2025, term: Winter, expected: "202501"},
		{year: 2025, term: Spring, expected: "202505"},
		{year: 2025, term: Summer, expected: "202507"},
		{year: 2025, term: "fall", expected: "202509"},
	}
	for _, row := range table {
		code, err := TermCode(row.year, row.term)
		require.NoError(t, err)
		require.Equal(t, row.expected, code)
	}
}

func TestTermCodeInvalid(t *testing.T) {
	_, err := TermCode(2024, "AUTUMN")
	require.ErrorIs(t, err, ErrInvalidTerm)

	_, err = TermCode(24, Fall)
	require.ErrorIs(t, err, ErrInvalidTerm)

	_, err = TermCode(20245, Fall)
	require.ErrorIs(t, err, ErrInvalidTerm)
}

func TestParseTermSuggestion(t *testing.T) {
	_, err := ParseTerm("Fal")
	require.ErrorIs(t, err, ErrInvalidTerm)
	require.Contains(t, err.Error(), "did you mean FALL?")

	_, err = ParseTerm("xyz")
	require.ErrorIs(t, err, ErrInvalidTerm)
	require.NotContains(t, err.Error(), "did you mean")

	term, err := ParseTerm("  summer ")
	require.NoError(t, err)
	require.Equal(t, Summer, term)
}

func TestCurrentTerm(t *testing.T) {
	table := []struct {
		month time.Month
		term  Term
	}{
		{month: time.January, term: Winter},
		{month: time.April, term: Winter},
		{month: time.May, term: Summer},
		{month: time.August, term: Summer},
		{month: time.September, term: Fall},
		{month: time.December, term: Fall},
	}
	for _, row := range table {
		year, term := CurrentTerm(time.Date(2025, row.month, 15, 0, 0, 0, 0, time.UTC))
		require.Equal(t, 2025, year)
		require.Equal(t, row.term, term, row.month.String())
	}
}
