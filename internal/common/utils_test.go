package common

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContainsAny(t *testing.T) {
	require.True(t, ContainsAny("Patchy light Drizzle", "rain", "drizzle"))
	require.True(t, ContainsAny("SUNNY", "sunny"))
	require.False(t, ContainsAny("Overcast", "rain", "snow"))
	require.False(t, ContainsAny("anything"))
}
