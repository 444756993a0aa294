package tuning

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stocknotify/strategy-backend/internal/technical"
	"github.com/stocknotify/strategy-backend/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(zap.NewNop(), t.TempDir(), t.TempDir())
}

func TestLoadStateFreshStart(t *testing.T) {
	store := newTestStore(t)

	state, err := store.LoadState()
	require.NoError(t, err)

	assert.Equal(t, 1, state.Version)
	assert.Equal(t, RegimeSideways, state.CurrentRegime)
	assert.Equal(t, DefaultParams(), state.CurrentParams)
	assert.Empty(t, state.TuningHistory)
}

func TestStateRoundTrip(t *testing.T) {
	store := newTestStore(t)

	state, err := store.LoadState()
	require.NoError(t, err)
	state.CurrentParams["top_n"] = 7
	state.CurrentRegime = RegimeBullish
	state.RegimeConfidence = 0.8
	state.LastTunedAt = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveState(state))

	loaded, err := store.LoadState()
	require.NoError(t, err)
	assert.Equal(t, 7.0, loaded.CurrentParams["top_n"])
	assert.Equal(t, RegimeBullish, loaded.CurrentRegime)
	assert.InDelta(t, 0.8, loaded.RegimeConfidence, 1e-9)
	assert.True(t, loaded.LastTunedAt.Equal(state.LastTunedAt))
}

func TestSaveStateCapsInlineHistory(t *testing.T) {
	store := newTestStore(t)

	state, err := store.LoadState()
	require.NoError(t, err)
	for i := 0; i < 25; i++ {
		state.TuningHistory = append(state.TuningHistory, HistoryEntry{
			Timestamp: time.Now().UTC().Add(time.Duration(i) * time.Hour),
			Regime:    RegimeSideways,
			Params:    DefaultParams(),
		})
	}
	require.NoError(t, store.SaveState(state))

	loaded, err := store.LoadState()
	require.NoError(t, err)
	assert.Len(t, loaded.TuningHistory, stateHistoryCap)
}

func TestSaveStateSurvivesInfiniteProfitFactor(t *testing.T) {
	store := newTestStore(t)

	state, err := store.LoadState()
	require.NoError(t, err)
	state.TuningHistory = append(state.TuningHistory, HistoryEntry{
		Timestamp: time.Now().UTC(),
		Summary:   types.Summary{TotalTrades: 3, ProfitFactor: math.Inf(1)},
	})

	require.NoError(t, store.SaveState(state))
	loaded, err := store.LoadState()
	require.NoError(t, err)
	assert.InDelta(t, 9999.0, loaded.TuningHistory[0].Summary.ProfitFactor, 1e-9)
}

func TestWeightsRoundTripAndOverlay(t *testing.T) {
	store := newTestStore(t)

	// missing file falls back to defaults
	weights, err := store.LoadWeights()
	require.NoError(t, err)
	assert.Equal(t, technical.DefaultWeights(), weights)

	weights[technical.WeightGoldenCross] = 1.8
	require.NoError(t, store.SaveWeights(weights))

	loaded, err := store.LoadWeights()
	require.NoError(t, err)
	assert.InDelta(t, 1.8, loaded[technical.WeightGoldenCross], 1e-9)
	assert.Equal(t, 1.0, loaded[technical.WeightBreakout])
}

func TestAppendHistoryCap(t *testing.T) {
	dataDir := t.TempDir()
	store := NewStore(zap.NewNop(), t.TempDir(), dataDir)

	for i := 0; i < historyFileCap+5; i++ {
		err := store.AppendHistory(HistoryEntry{
			Timestamp: time.Now().UTC(),
			Regime:    RegimeSideways,
			Params:    ParamSet{"top_n": float64(i)},
		})
		require.NoError(t, err, fmt.Sprintf("append %d", i))
	}

	raw, err := os.ReadFile(filepath.Join(dataDir, historyFile))
	require.NoError(t, err)
	var history []HistoryEntry
	require.NoError(t, json.Unmarshal(raw, &history))

	assert.Len(t, history, historyFileCap)
	// oldest entries were trimmed, newest kept
	assert.Equal(t, 5.0, history[0].Params["top_n"])
	assert.Equal(t, float64(historyFileCap+4), history[len(history)-1].Params["top_n"])
}
