package exchange

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/overseer/internal/types"
)

func TestPlaceOrderIsIdempotent(t *testing.T) {
	p := NewPaperClient(decimal.NewFromInt(10000))
	ctx := context.Background()
	spec := OrderSpec{Symbol: "BTCUSDT", Side: types.Long, Size: decimal.NewFromInt(1), LimitPrice: decimal.NewFromInt(50000)}

	id1, err := p.PlaceOrder(ctx, spec, "key-1")
	require.NoError(t, err)
	id2, err := p.PlaceOrder(ctx, spec, "key-1")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	id3, err := p.PlaceOrder(ctx, spec, "key-2")
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
}

func TestLimitOrderFillsOnCross(t *testing.T) {
	p := NewPaperClient(decimal.NewFromInt(10000))
	ctx := context.Background()
	spec := OrderSpec{Symbol: "BTCUSDT", Side: types.Long, Size: decimal.NewFromInt(1), LimitPrice: decimal.NewFromInt(50000)}

	id, err := p.PlaceOrder(ctx, spec, "key-1")
	require.NoError(t, err)

	// Above the limit: no fill for a long.
	p.MarkPrice("BTCUSDT", decimal.NewFromInt(50100))
	st, err := p.Order(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, OrderOpen, st.Status)

	p.MarkPrice("BTCUSDT", decimal.NewFromInt(49900))
	st, err = p.Order(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, OrderFilled, st.Status)
	assert.True(t, st.FillPrice.Equal(spec.LimitPrice))

	pos, err := p.OpenPosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, types.Long, pos.Side)
}

func TestStopTriggerClosesAndDebits(t *testing.T) {
	p := NewPaperClient(decimal.NewFromInt(10000))
	ctx := context.Background()
	spec := OrderSpec{Symbol: "BTCUSDT", Side: types.Long, Size: decimal.NewFromInt(1), LimitPrice: decimal.NewFromInt(50000)}

	_, err := p.PlaceOrder(ctx, spec, "key-1")
	require.NoError(t, err)
	p.MarkPrice("BTCUSDT", decimal.NewFromInt(50000))

	require.NoError(t, p.ModifyStop(ctx, "BTCUSDT", decimal.NewFromInt(49500)))
	p.MarkPrice("BTCUSDT", decimal.NewFromInt(49400))

	pos, err := p.OpenPosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Nil(t, pos)

	bal, err := p.Balance(ctx)
	require.NoError(t, err)
	// Entry 50000, stop exit 49500, one unit: -500.
	assert.True(t, bal.Equal(decimal.NewFromInt(9500)))
}

func TestCancelAfterFillReportsFilled(t *testing.T) {
	p := NewPaperClient(decimal.NewFromInt(10000))
	ctx := context.Background()
	spec := OrderSpec{Symbol: "BTCUSDT", Side: types.Long, Size: decimal.NewFromInt(1), LimitPrice: decimal.NewFromInt(50000)}

	id, err := p.PlaceOrder(ctx, spec, "key-1")
	require.NoError(t, err)
	p.MarkPrice("BTCUSDT", decimal.NewFromInt(49999))

	final, err := p.CancelOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, OrderFilled, final.Status)
}

func TestCancelOpenOrder(t *testing.T) {
	p := NewPaperClient(decimal.NewFromInt(10000))
	ctx := context.Background()
	spec := OrderSpec{Symbol: "BTCUSDT", Side: types.Long, Size: decimal.NewFromInt(1), LimitPrice: decimal.NewFromInt(50000)}

	id, err := p.PlaceOrder(ctx, spec, "key-1")
	require.NoError(t, err)

	final, err := p.CancelOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, OrderCanceled, final.Status)

	_, err = p.Order(ctx, "missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestClosePositionAtMark(t *testing.T) {
	p := NewPaperClient(decimal.NewFromInt(10000))
	ctx := context.Background()
	spec := OrderSpec{Symbol: "BTCUSDT", Side: types.Long, Size: decimal.NewFromInt(1), LimitPrice: decimal.NewFromInt(50000)}

	// Closing while flat is a no-op.
	require.NoError(t, p.ClosePosition(ctx, "BTCUSDT"))

	_, err := p.PlaceOrder(ctx, spec, "key-1")
	require.NoError(t, err)
	p.MarkPrice("BTCUSDT", decimal.NewFromInt(50000))

	p.MarkPrice("BTCUSDT", decimal.NewFromInt(50500))
	require.NoError(t, p.ClosePosition(ctx, "BTCUSDT"))

	pos, err := p.OpenPosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Nil(t, pos)

	bal, err := p.Balance(ctx)
	require.NoError(t, err)
	// Entry 50000, closed at the 50500 mark, one unit: +500.
	assert.True(t, bal.Equal(decimal.NewFromInt(10500)))
}

func TestShortFillAndStop(t *testing.T) {
	p := NewPaperClient(decimal.NewFromInt(10000))
	ctx := context.Background()
	spec := OrderSpec{Symbol: "ETHUSDT", Side: types.Short, Size: decimal.NewFromInt(2), LimitPrice: decimal.NewFromInt(3000)}

	_, err := p.PlaceOrder(ctx, spec, "key-1")
	require.NoError(t, err)

	// Short fills when price rises to the limit.
	p.MarkPrice("ETHUSDT", decimal.NewFromInt(3000))
	pos, err := p.OpenPosition(ctx, "ETHUSDT")
	require.NoError(t, err)
	require.NotNil(t, pos)

	require.NoError(t, p.ModifyStop(ctx, "ETHUSDT", decimal.NewFromInt(3100)))
	p.MarkPrice("ETHUSDT", decimal.NewFromInt(3150))

	bal, err := p.Balance(ctx)
	require.NoError(t, err)
	// Short from 3000, stopped at 3100, two units: -200.
	assert.True(t, bal.Equal(decimal.NewFromInt(9800)))
}
