package mqttsource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicMatchesExactLiteral(t *testing.T) {
	assert.True(t, topicMatches("sensors/room1/temperature", "sensors/room1/temperature"))
	assert.False(t, topicMatches("sensors/room1/temperature", "sensors/room1/humidity"))
}

func TestTopicMatchesSingleLevelWildcard(t *testing.T) {
	assert.True(t, topicMatches("sensors/+/temperature", "sensors/room1/temperature"))
	assert.True(t, topicMatches("sensors/+/temperature", "sensors/room2/temperature"))
	assert.False(t, topicMatches("sensors/+/temperature", "sensors/room1/sub/temperature"))
}

func TestTopicMatchesMultiLevelWildcard(t *testing.T) {
	assert.True(t, topicMatches("sensors/#", "sensors/room1/temperature"))
	assert.True(t, topicMatches("sensors/#", "sensors"))
	assert.False(t, topicMatches("sensors/#", "actuators/room1"))
}

func TestRouterFirstMatchWins(t *testing.T) {
	r := NewRouter()
	r.Add("sensors/+/temperature", "temperature-mapping")
	r.Add("sensors/#", "catch-all-mapping")

	mapping, ok := r.Match("sensors/room1/temperature")
	require.True(t, ok)
	assert.Equal(t, "temperature-mapping", mapping)

	mapping, ok = r.Match("sensors/room1/humidity")
	require.True(t, ok)
	assert.Equal(t, "catch-all-mapping", mapping)
}

func TestRouterNoMatch(t *testing.T) {
	r := NewRouter()
	r.Add("sensors/+/temperature", "temperature-mapping")

	_, ok := r.Match("actuators/door1/state")
	assert.False(t, ok)
}
