package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMembers(t *testing.T) {
	members, err := parseMembers("momentum:0.6, meanreversion:0.4")
	require.NoError(t, err)
	require.Len(t, members, 2)

	assert.Equal(t, "momentum", members[0].Strategy)
	assert.Equal(t, 0.6, members[0].Weight)
	assert.Equal(t, "meanreversion", members[1].Strategy)
	assert.Equal(t, 0.4, members[1].Weight)
}

func TestParseMembers_BareNameGetsEqualShare(t *testing.T) {
	members, err := parseMembers("momentum,breakout")
	require.NoError(t, err)
	require.Len(t, members, 2)

	assert.Equal(t, 1.0, members[0].Weight)
	assert.Equal(t, 1.0, members[1].Weight)
}

func TestParseMembers_UnknownFamily(t *testing.T) {
	_, err := parseMembers("hodl:1.0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown strategy")
}

func TestParseMembers_BadWeight(t *testing.T) {
	_, err := parseMembers("momentum:heavy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weight for momentum")
}

func TestParseMembers_Empty(t *testing.T) {
	_, err := parseMembers(" , ")
	assert.Error(t, err)
}
