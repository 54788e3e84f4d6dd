package views

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAll_RegistersSevenViews(t *testing.T) {
	names := make([]string, 0)
	for _, v := range All(testParams()) {
		names = append(names, v.Name())
	}
	assert.Equal(t, []string{
		NameNetwork, NameTimeline, NameParticles, NameGeoFlows,
		NameWashRing, NameMarketplaces, NameStats,
	}, names)
}

func TestAll_ArtifactsCarryMetadata(t *testing.T) {
	l := genLedger(1500, 31)
	for _, v := range All(testParams()) {
		arts, err := v.Build(context.Background(), l, NewRand(7, v.Name()))
		require.NoError(t, err, v.Name())

		for _, art := range arts {
			data, err := json.Marshal(art.Payload)
			require.NoError(t, err, art.Name)

			var doc map[string]interface{}
			if json.Unmarshal(data, &doc) != nil {
				// 看板导出是数组
				continue
			}
			if art.Name == NameCategories {
				continue
			}
			meta, ok := doc["metadata"].(map[string]interface{})
			require.True(t, ok, "%s has metadata", art.Name)
			assert.NotEmpty(t, meta, art.Name)
		}
	}
}

func TestBuild_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, v := range All(testParams()) {
		_, err := v.Build(ctx, genLedger(10, 1), NewRand(1, v.Name()))
		assert.ErrorIs(t, err, context.Canceled, v.Name())
	}
}
