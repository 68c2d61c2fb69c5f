package timezone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNowIsRegistrarLocal(t *testing.T) {
	now := Now()
	require.Equal(t, Location, now.Location())

	// CST all year round
	_, offset := time.Date(2024, time.July, 1, 12, 0, 0, 0, Location).Zone()
	require.Equal(t, -6*60*60, offset)
	_, offset = time.Date(2024, time.January, 1, 12, 0, 0, 0, Location).Zone()
	require.Equal(t, -6*60*60, offset)
}
