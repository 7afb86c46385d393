package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReactionSetToggle(t *testing.T) {
	set := ReactionSet{}

	added := set.Toggle("👍", 7)
	assert.True(t, added)
	assert.True(t, set.Has("👍", 7))

	// toggling twice returns the set to its original state
	added = set.Toggle("👍", 7)
	assert.False(t, added)
	assert.False(t, set.Has("👍", 7))
	_, ok := set["👍"]
	assert.False(t, ok, "empty emoji keys must be dropped")

	set.Toggle("👍", 7)
	set.Toggle("👍", 8)
	set.Toggle("👍", 7)
	assert.Equal(t, []int64{8}, set["👍"])
}

func TestReactionSetScanValue(t *testing.T) {
	set := ReactionSet{"🔥": {1, 2}}
	val, err := set.Value()
	require.NoError(t, err)

	scanned := ReactionSet{}
	require.NoError(t, scanned.Scan(val))
	assert.Equal(t, set, scanned)

	var nilSet ReactionSet
	val, err = nilSet.Value()
	require.NoError(t, err)
	assert.Nil(t, val)

	require.NoError(t, scanned.Scan(nil))
	assert.Empty(t, scanned)
}
