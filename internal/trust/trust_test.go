package trust

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"indie-blog-circles/internal/model"
)

func hop(v int) *int { return &v }

func TestTrustFromSeeds_RootIgnoresIncoming(t *testing.T) {
	in := Input{IsRootSeed: true, Incoming: []Incoming{{SourceTrust: 0.2, SourceHop: hop(3), Confidence: 0.1}}}
	assert.Equal(t, 1.0, TrustFromSeeds(in))
	require.NotNil(t, HopCount(in))
	assert.Equal(t, 0, *HopCount(in))
	assert.Equal(t, 1.0, FinalTrust(in, Quality{PostsPerDay: 100}))
}

func TestTrustFromSeeds_NoIncomingIsFloor(t *testing.T) {
	assert.Equal(t, MinTrust, TrustFromSeeds(Input{}))
	assert.Nil(t, HopCount(Input{}))
}

func TestTrustFromSeeds_SingleHeuristicEdge(t *testing.T) {
	in := Input{Incoming: []Incoming{{SourceTrust: 1.0, SourceHop: hop(0), Confidence: 0.9, Method: model.MethodHeuristic}}}
	assert.InDelta(t, 0.72, TrustFromSeeds(in), 1e-9)
	assert.Equal(t, 1, *HopCount(in))
}

func TestTrustFromSeeds_MaxNotSum(t *testing.T) {
	in := Input{Incoming: []Incoming{
		{SourceTrust: 0.5, Confidence: 0.6, Method: model.MethodHeuristic},    // 0.24
		{SourceTrust: 0.9, Confidence: 0.9, Method: model.MethodXFN},          // 0.72
		{SourceTrust: 0.3, Confidence: 0.95, Method: model.MethodOPML},        // 0.24
		{SourceTrust: 0.6, Confidence: 0.85, Method: model.MethodMicroformat}, // 0.456
	}}
	assert.InDelta(t, 0.72, TrustFromSeeds(in), 1e-9)
}

func TestEdgeTrust_BonusCappedAtOne(t *testing.T) {
	assert.InDelta(t, 0.8, EdgeTrust(Incoming{SourceTrust: 1, Confidence: 0.95, Method: model.MethodOPML}), 1e-9)
	assert.InDelta(t, 0.4, EdgeTrust(Incoming{SourceTrust: 1, Confidence: 0.5, Method: "unknown"}), 1e-9)
	assert.Greater(t, MethodBonus(model.MethodOPML), MethodBonus(model.MethodXFN))
	assert.Equal(t, MethodBonus(model.MethodXFN), MethodBonus(model.MethodMicroformat))
	assert.Zero(t, MethodBonus(model.MethodHeuristic))
}

func TestHopCount_IgnoresUnknownSources(t *testing.T) {
	in := Input{Incoming: []Incoming{
		{SourceHop: nil},
		{SourceHop: hop(4)},
		{SourceHop: hop(2)},
	}}
	assert.Equal(t, 3, *HopCount(in))
	assert.Nil(t, HopCount(Input{Incoming: []Incoming{{SourceHop: nil}}}))
}

func TestContentQuality(t *testing.T) {
	assert.InDelta(t, 0.95, ContentQuality(Quality{}), 1e-9)
	assert.InDelta(t, 1.02, ContentQuality(Quality{HasAuthorInfo: true, HasOriginalDates: true}), 1e-9)
	// 20 篇/天 -> 除以 2
	assert.InDelta(t, 0.5, ContentQuality(Quality{PostsPerDay: 20, HasAuthorInfo: true}), 1e-9)
	// 下限 0.3
	assert.Equal(t, 0.3, ContentQuality(Quality{PostsPerDay: 1000}))
	// 10 篇/天不算刷屏
	assert.InDelta(t, 1.0, ContentQuality(Quality{PostsPerDay: 10, HasAuthorInfo: true}), 1e-9)
}

func TestFinalTrust_Clamped(t *testing.T) {
	in := Input{Incoming: []Incoming{{SourceTrust: 1.0, SourceHop: hop(0), Confidence: 1.0, Method: model.MethodOPML}}}
	q := Quality{HasAuthorInfo: true, HasOriginalDates: true}
	assert.InDelta(t, 0.816, FinalTrust(in, q), 1e-9)
	assert.LessOrEqual(t, FinalTrust(Input{Incoming: []Incoming{{SourceTrust: 5, Confidence: 1}}}, q), 1.0)
}

func TestShouldPromoteToDerivedSeed(t *testing.T) {
	ok := Candidate{TrustScore: 0.8, HasOPML: true, FriendLinkCount: 10}
	assert.True(t, ShouldPromoteToDerivedSeed(ok))

	cases := map[string]Candidate{
		"trust below": {TrustScore: 0.79999, HasOPML: true, FriendLinkCount: 10},
		"no opml":     {TrustScore: 0.95, HasOPML: false, FriendLinkCount: 50},
		"few links":   {TrustScore: 0.95, HasOPML: true, FriendLinkCount: 9},
		"none":        {},
	}
	for name, c := range cases {
		assert.False(t, ShouldPromoteToDerivedSeed(c), name)
	}
}
