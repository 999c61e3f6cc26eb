package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"strategy-backtester/internal/model"
)

func newSim(feeRate float64) *SimulatedExecutor {
	return NewSimulatedExecutor(SimConfig{InitialCapital: 10000, FeeRate: feeRate}, zap.NewNop().Sugar())
}

func TestSimulatedExecutorFillsAtSignalPrice(t *testing.T) {
	e := newSim(0.001)

	fill, err := e.PlaceOrder(context.Background(), model.DirLong, 2, 100)
	require.NoError(t, err)
	assert.Equal(t, 100.0, fill.Price)
	assert.Equal(t, 2.0, fill.Quantity)
	assert.InDelta(t, 0.2, fill.Fee, 1e-9)
	assert.Equal(t, 1, e.FillCount())
}

func TestSimulatedExecutorRejectsInvalidOrders(t *testing.T) {
	e := newSim(0)

	_, err := e.PlaceOrder(context.Background(), model.DirLong, 0, 100)
	assert.Error(t, err)
	_, err = e.PlaceOrder(context.Background(), model.DirShort, 1, -5)
	assert.Error(t, err)
	assert.Zero(t, e.FillCount())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.PlaceOrder(ctx, model.DirLong, 1, 100)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSimulatedExecutorEquityHighWaterMark(t *testing.T) {
	e := newSim(0)

	e.RecordRealized(500)
	e.RecordRealized(-200)

	assert.Equal(t, 10300.0, e.Equity())
	assert.Equal(t, 10500.0, e.MaxEquity())
}
