package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	n, err := NewNormalizer(nil)
	require.NoError(t, err)

	testCases := map[string]Status{
		"available":  Available,
		" Running ":  Running,
		"COMPLETE":   Complete,
		"offline":    Offline,
		"active":     Running,
		"inactive":   Available,
		"finished":   Complete,
		"spin-cycle": Unknown,
		"":           Unknown,
	}
	for raw, want := range testCases {
		assert.Equal(t, want, n.Normalize(raw), "raw=%q", raw)
	}

	_, err = n.Parse("spin-cycle")
	assert.Error(t, err)
}

func TestNormalizerSpellings(t *testing.T) {
	n, err := NewNormalizer(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"complete", "done", "finished"}, n.Spellings(Complete))
	assert.Equal(t, []string{"offline", "out_of_order"}, n.Spellings(Offline))

	custom, err := NewNormalizer(map[string]string{"Broken": "offline"})
	require.NoError(t, err)
	assert.Equal(t, []string{"broken", "offline"}, custom.Spellings(Offline))
	assert.Equal(t, []string{"complete"}, custom.Spellings(Complete))
}

func TestNewNormalizer_RejectsNonCanonicalTarget(t *testing.T) {
	_, err := NewNormalizer(map[string]string{"busy": "washing"})
	assert.Error(t, err)

	n, err := NewNormalizer(map[string]string{"Busy": "Running"})
	require.NoError(t, err)
	assert.Equal(t, Running, n.Normalize("busy"))
	// Custom alias tables replace the defaults entirely.
	assert.Equal(t, Unknown, n.Normalize("active"))
}

func TestBuckets(t *testing.T) {
	_, err := NewBuckets([]string{"available", "complete"}, []string{"running", "complete"})
	assert.Error(t, err, "overlapping buckets must be rejected")

	_, err = NewBuckets([]string{"free"}, nil)
	assert.Error(t, err)

	b, err := NewBuckets([]string{"available", "complete"}, []string{"running"})
	require.NoError(t, err)
	assert.Equal(t, BucketAvailable, b.Of(Complete))
	assert.Equal(t, BucketInUse, b.Of(Running))
	assert.Equal(t, BucketNone, b.Of(Offline))
	assert.Equal(t, BucketNone, b.Of(Unknown))

	d := DefaultBuckets()
	assert.Equal(t, BucketInUse, d.Of(Complete))
	assert.Equal(t, BucketAvailable, d.Of(Available))
}
