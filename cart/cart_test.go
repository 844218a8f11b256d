package cart

import (
	"math"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/filmarket/types"
)

var (
	storage = types.Product{
		ID:         1,
		Name:       "Decentralized Storage Plan - 100GB",
		Category:   "storage",
		UnitPrice:  decimal.RequireFromString("5.99"),
		ChainPrice: decimal.RequireFromString("0.15"),
	}
	nftAccess = types.Product{
		ID:         2,
		Name:       "NFT Marketplace Access",
		Category:   "digital",
		UnitPrice:  decimal.RequireFromString("29.99"),
		ChainPrice: decimal.RequireFromString("0.75"),
	}
)

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestTotals(t *testing.T) {
	c := New()
	c.Add(storage)
	c.Add(storage)
	c.Add(nftAccess)

	assertDecimal(t, "41.97", c.TotalUSD())
	assertDecimal(t, "1.05", c.TotalNative())
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, 3, c.ItemCount())
}

func TestTotalsIndependentOfOrder(t *testing.T) {
	a := New()
	a.Add(storage)
	a.Add(nftAccess)
	a.Add(storage)

	b := New()
	b.Add(nftAccess)
	b.Add(storage)
	b.Add(storage)

	assert.True(t, a.TotalUSD().Equal(b.TotalUSD()))
	assert.True(t, a.TotalNative().Equal(b.TotalNative()))
}

func TestTotalsRoundHalfUp(t *testing.T) {
	c := New()
	c.Add(types.Product{ID: 9, UnitPrice: decimal.RequireFromString("0.005"), ChainPrice: decimal.RequireFromString("0.125")})

	assertDecimal(t, "0.01", c.TotalUSD())
	assertDecimal(t, "0.13", c.TotalNative())
}

func TestEmptyCart(t *testing.T) {
	c := New()
	assert.True(t, c.TotalUSD().IsZero())
	assert.True(t, c.TotalNative().IsZero())
	assert.Empty(t, c.Lines())
	assert.Equal(t, 0, c.ItemCount())
}

func TestAddIncrements(t *testing.T) {
	c := New()
	c.Add(storage)
	c.Add(storage)

	lines := c.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Equal(t, storage.ID, lines[0].Product.ID)
}

func TestLinesKeepInsertionOrder(t *testing.T) {
	c := New()
	c.Add(nftAccess)
	c.Add(storage)
	c.Add(nftAccess)

	lines := c.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, nftAccess.ID, lines[0].Product.ID)
	assert.Equal(t, storage.ID, lines[1].Product.ID)

	// mutating the copy leaves the cart alone
	lines[0].Quantity = 99
	assert.Equal(t, 2, c.Lines()[0].Quantity)
}

func TestSetQuantityDelta(t *testing.T) {
	c := New()
	c.Add(storage)

	c.SetQuantityDelta(storage.ID, 3)
	assert.Equal(t, 4, c.Lines()[0].Quantity)

	c.SetQuantityDelta(storage.ID, -1)
	assert.Equal(t, 3, c.Lines()[0].Quantity)

	c.SetQuantityDelta(storage.ID, -3)
	assert.Empty(t, c.Lines())

	// unknown id is ignored
	c.SetQuantityDelta(42, 1)
	assert.Equal(t, 0, c.Len())
}

func TestQuantityNeverBelowOne(t *testing.T) {
	c := New()
	c.Add(storage)
	c.Add(nftAccess)

	c.SetQuantityDelta(nftAccess.ID, -10)

	for _, line := range c.Lines() {
		assert.Positive(t, line.Quantity)
	}
	assert.Equal(t, 1, c.Len())
}

func TestSetQuantityDeltaSaturates(t *testing.T) {
	c := New()
	c.Add(storage)
	c.Add(storage)

	c.SetQuantityDelta(storage.ID, math.MaxInt)
	require.Equal(t, 1, c.Len())
	assert.Equal(t, math.MaxInt, c.Lines()[0].Quantity)

	c.SetQuantityDelta(storage.ID, 1)
	assert.Equal(t, math.MaxInt, c.Lines()[0].Quantity)
}

func TestRemoveAndClear(t *testing.T) {
	c := New()
	c.Add(storage)
	c.Add(nftAccess)

	c.Remove(storage.ID)
	require.Len(t, c.Lines(), 1)
	assert.Equal(t, nftAccess.ID, c.Lines()[0].Product.ID)

	c.Remove(storage.ID)
	assert.Equal(t, 1, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.True(t, c.TotalNative().IsZero())

	c.Add(storage)
	assert.Equal(t, 1, c.Len())
}

func TestConcurrentAdds(t *testing.T) {
	c := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Add(storage)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, c.ItemCount())
	assertDecimal(t, "299.5", c.TotalUSD())
}
