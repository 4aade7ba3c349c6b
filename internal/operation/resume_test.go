package operation

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"didibot/internal/model"
	"didibot/internal/store/operations"
)

func openRepo(t *testing.T) *operations.Store {
	t.Helper()
	s, err := operations.Open(context.Background(), "sqlite3://"+filepath.Join(t.TempDir(), "ops.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestResumeKeepsPositions(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)

	first := backtestOperation()
	first.Mode = model.ModeTest
	got, err := Resume(ctx, repo, first)
	require.NoError(t, err)
	got.Monitors[0].Position = model.Position{Side: model.SideLong, Size: 1, EnterPrice: 100, ByScore: 0.5}
	require.NoError(t, repo.SaveMonitor(ctx, got.Monitors[0]))

	second := backtestOperation()
	second.ID = "op-2"
	second.Mode = model.ModeTest
	second.Setup.Trading.Leverage = 2
	second.Monitors = second.Monitors[:1]
	resumed, err := Resume(ctx, repo, second)
	require.NoError(t, err)

	assert.Equal(t, "op-1", resumed.ID)
	assert.Equal(t, 2.0, resumed.Setup.Trading.Leverage)
	require.Len(t, resumed.Monitors, 2)
	btcMon := resumed.MonitorBySymbol("BTCUSDT")
	assert.Equal(t, model.SideLong, btcMon.Position.Side)
	assert.True(t, btcMon.IsActive)
	assert.False(t, resumed.MonitorBySymbol("ETHUSDT").IsActive)
}

func TestResumeRestartsBacktests(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)

	_, err := Resume(ctx, repo, backtestOperation())
	require.NoError(t, err)

	again := backtestOperation()
	again.ID = "op-9"
	got, err := Resume(ctx, repo, again)
	require.NoError(t, err)
	assert.Equal(t, "op-9", got.ID)

	loaded, err := repo.LoadOperation(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, "op-9", loaded.ID)
}
