package portfolio

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/penny/internal/domain"
)

func TestLoadReturnsNilWhenNoSnapshot(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	state, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	pos := domain.Position{
		ID:         "XYZ-1",
		Symbol:     "XYZ",
		ProductID:  "XYZ-USDT",
		EntryPrice: decimal.RequireFromString("0.5"),
		Quantity:   decimal.RequireFromString("199.5"),
		Invested:   decimal.NewFromInt(100),
		BuyFee:     decimal.RequireFromString("0.25"),
		EntryTime:  time.Now().Truncate(time.Second),
	}
	require.NoError(t, store.Save(State{
		Cash:      decimal.NewFromInt(9900),
		Positions: []domain.Position{pos},
		ClosedTrades: []domain.ClosedTrade{{
			Position:   pos,
			ExitPrice:  decimal.RequireFromString("0.55"),
			ExitReason: domain.ExitReasonProfitTarget,
		}},
	}))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.True(t, loaded.Cash.Equal(decimal.NewFromInt(9900)))
	require.Len(t, loaded.Positions, 1)
	assert.Equal(t, "XYZ-1", loaded.Positions[0].ID)
	assert.True(t, loaded.Positions[0].Quantity.Equal(pos.Quantity))
	require.Len(t, loaded.ClosedTrades, 1)
	assert.Equal(t, domain.ExitReasonProfitTarget, loaded.ClosedTrades[0].ExitReason)
	assert.False(t, loaded.UpdatedAt.IsZero())
}

func TestSaveOverwritesPreviousSnapshot(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save(State{Cash: decimal.NewFromInt(10000)}))
	require.NoError(t, store.Save(State{Cash: decimal.NewFromInt(7500)}))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, loaded.Cash.Equal(decimal.NewFromInt(7500)))
}
