package clustering

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func defaultParams() Params {
	return Params{ConfidenceThreshold: 0.60, ProximitySeconds: 5, CorrectionWindow: 20}
}

func TestCluster_EmptyInput(t *testing.T) {
	assert.Empty(t, Cluster(nil, defaultParams()))
}

func TestCluster_AllAboveThreshold(t *testing.T) {
	words := []Word{
		{Text: "hello", Start: 0, End: 0.5, Probability: 0.95},
		{Text: "world", Start: 0.5, End: 1.0, Probability: 0.80},
	}
	assert.Empty(t, Cluster(words, defaultParams()))
}

// Scenario 1 from spec.md §8: single low-confidence word surrounded by
// confident words yields one cluster floored at clipStart=0.
func TestCluster_SingleWordCluster(t *testing.T) {
	words := []Word{
		{Text: "Hello", Start: 0, End: 0.5, Probability: 0.95},
		{Text: "world", Start: 0.5, End: 1.0, Probability: 0.45},
		{Text: "test", Start: 1.0, End: 1.5, Probability: 0.90},
	}

	clusters := Cluster(words, defaultParams())

	if assert.Len(t, clusters, 1) {
		c := clusters[0]
		assert.Equal(t, 0.0, c.ClipStart)
		assert.InDelta(t, 10.75, c.ClipEnd, 1e-9)
		assert.InDelta(t, 0.45, c.AverageConfidence, 1e-9)
		assert.Len(t, c.Words, 1)
	}
}

// Scenario 2 from spec.md §8: two low-confidence words 10s apart form
// two pre-merge clusters whose 20s windows overlap, collapsing to one.
func TestCluster_DistantPairMergesAfterWindowing(t *testing.T) {
	words := []Word{
		{Text: "a", Start: 0, End: 0.5, Probability: 0.40},
		{Text: "b", Start: 10, End: 10.5, Probability: 0.40},
	}

	clusters := Cluster(words, defaultParams())

	if assert.Len(t, clusters, 1) {
		c := clusters[0]
		assert.Len(t, c.Words, 2)
		assert.InDelta(t, 0.0, c.ClipStart, 1e-9)
		assert.InDelta(t, 20.25, c.ClipEnd, 1e-9)
	}
}

func TestCluster_DistantPairNoMergeWithoutWindowOverlap(t *testing.T) {
	words := []Word{
		{Text: "a", Start: 0, End: 0.5, Probability: 0.40},
		{Text: "b", Start: 100, End: 100.5, Probability: 0.40},
	}

	clusters := Cluster(words, defaultParams())

	assert.Len(t, clusters, 2)
}

// Invariant from spec.md §8: each low-confidence word farther than p
// from its neighbor emits its own pre-merge cluster; with widely
// spaced words and a small window, the clusters also stay unmerged.
func TestCluster_EachFarWordOwnCluster(t *testing.T) {
	words := []Word{
		{Text: "a", Start: 0, End: 0.2, Probability: 0.1},
		{Text: "b", Start: 50, End: 50.2, Probability: 0.1},
		{Text: "c", Start: 200, End: 200.2, Probability: 0.1},
	}
	params := Params{ConfidenceThreshold: 0.60, ProximitySeconds: 5, CorrectionWindow: 4}

	clusters := Cluster(words, params)

	assert.Len(t, clusters, 3)
	for _, c := range clusters {
		assert.Len(t, c.Words, 1)
	}
}

func TestCluster_ZeroGapDoesNotBreakProximity(t *testing.T) {
	words := []Word{
		{Text: "a", Start: 1.0, End: 1.0, Probability: 0.1},
		{Text: "b", Start: 1.0, End: 1.5, Probability: 0.1},
	}

	clusters := Cluster(words, defaultParams())

	if assert.Len(t, clusters, 1) {
		assert.Len(t, clusters[0].Words, 2)
	}
}

func TestCluster_NonOverlappingOutputIntervals(t *testing.T) {
	words := []Word{
		{Text: "a", Start: 0, End: 0.5, Probability: 0.1},
		{Text: "b", Start: 40, End: 40.5, Probability: 0.1},
		{Text: "c", Start: 80, End: 80.5, Probability: 0.1},
	}
	params := Params{ConfidenceThreshold: 0.60, ProximitySeconds: 5, CorrectionWindow: 10}

	clusters := Cluster(words, params)

	for i := 1; i < len(clusters); i++ {
		assert.Less(t, clusters[i-1].ClipEnd, clusters[i].ClipStart)
		assert.Less(t, clusters[i].ClipStart, clusters[i].ClipEnd)
	}
}
