package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-dataport/internal/features/imports"
)

func TestResolutionDefaultsByConfidence(t *testing.T) {
	set := NewResolutionSet([]imports.DuplicateRecord{
		{ImportRow: 2, Confidence: 95},
		{ImportRow: 5, Confidence: 90}, // boundary is inclusive on the skip side
		{ImportRow: 7, Confidence: 89.9},
		{ImportRow: 9, Confidence: 40},
	})

	get := func(row int) imports.Resolution {
		res, ok := set.Get(row)
		require.True(t, ok)
		return res
	}
	assert.Equal(t, imports.ResolutionSkip, get(2))
	assert.Equal(t, imports.ResolutionSkip, get(5))
	assert.Equal(t, imports.ResolutionCreateNew, get(7))
	assert.Equal(t, imports.ResolutionCreateNew, get(9))
}

func TestResolutionSetOverride(t *testing.T) {
	set := NewResolutionSet([]imports.DuplicateRecord{
		{ImportRow: 2, Confidence: 95},
	})

	require.NoError(t, set.Set(2, imports.ResolutionUpdate))
	res, _ := set.Get(2)
	assert.Equal(t, imports.ResolutionUpdate, res)

	assert.Error(t, set.Set(3, imports.ResolutionSkip), "row 3 is not a duplicate")
	assert.Error(t, set.Set(2, "merge"), "unknown resolution value")
}

func TestResolutionApplyAll(t *testing.T) {
	set := NewResolutionSet([]imports.DuplicateRecord{
		{ImportRow: 2, Confidence: 95},
		{ImportRow: 5, Confidence: 50},
		{ImportRow: 8, Confidence: 91},
	})

	require.NoError(t, set.ApplyAll(imports.ResolutionUpdate))
	for _, row := range []int{2, 5, 8} {
		res, _ := set.Get(row)
		assert.Equal(t, imports.ResolutionUpdate, res)
	}

	assert.Error(t, set.ApplyAll("drop"))
}

func TestResolutionMappingRequiresCompleteness(t *testing.T) {
	set := NewResolutionSet([]imports.DuplicateRecord{
		{ImportRow: 4, Confidence: 95},
		{ImportRow: 2, Confidence: 50},
	})

	// Defaults make the set complete from the start.
	mapping, err := set.Mapping()
	require.NoError(t, err)
	assert.Len(t, mapping, 2)

	set.Clear(4)
	assert.Equal(t, []int{4}, set.Unresolved())

	_, err = set.Mapping()
	assert.Error(t, err, "a partial mapping must be rejected, not defaulted")

	require.NoError(t, set.Set(4, imports.ResolutionSkip))
	assert.Empty(t, set.Unresolved())
	mapping, err = set.Mapping()
	require.NoError(t, err)
	assert.Equal(t, imports.ResolutionSkip, mapping[4])
	assert.Equal(t, imports.ResolutionCreateNew, mapping[2])
}
