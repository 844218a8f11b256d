// Package cart holds the in-memory shopping cart.
package cart

import (
	"math"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/vitwit/filmarket/types"
	"github.com/vitwit/filmarket/utils"
)

// Cart is a set of product lines, at most one per product, kept in the
// order products were first added. All operations are total.
type Cart struct {
	mu    sync.Mutex
	lines map[types.ProductID]*types.CartLine
	order []types.ProductID
}

func New() *Cart {
	return &Cart{lines: make(map[types.ProductID]*types.CartLine)}
}

// Add puts one unit of p in the cart.
func (c *Cart) Add(p types.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if line, ok := c.lines[p.ID]; ok {
		line.Quantity++
		return
	}
	c.lines[p.ID] = &types.CartLine{Product: p, Quantity: 1}
	c.order = append(c.order, p.ID)
}

// Remove deletes the line for id, if any.
func (c *Cart) Remove(id types.ProductID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remove(id)
}

// SetQuantityDelta adjusts the quantity of id by delta. A line whose
// quantity drops to zero or below is removed. Increments saturate at math.MaxInt.
func (c *Cart) SetQuantityDelta(id types.ProductID, delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	line, ok := c.lines[id]
	if !ok {
		return
	}
	if delta > 0 && line.Quantity > math.MaxInt-delta {
		line.Quantity = math.MaxInt
		return
	}
	if q := line.Quantity + delta; q > 0 {
		line.Quantity = q
		return
	}
	c.remove(id)
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = make(map[types.ProductID]*types.CartLine)
	c.order = nil
}

// TotalUSD is the fiat total rounded half-up to cents.
func (c *Cart) TotalUSD() decimal.Decimal {
	return c.total(func(p types.Product) decimal.Decimal { return p.UnitPrice })
}

// TotalNative is the FIL total rounded half-up to two places.
func (c *Cart) TotalNative() decimal.Decimal {
	return c.total(func(p types.Product) decimal.Decimal { return p.ChainPrice })
}

// Lines returns a copy of the cart lines in display order.
func (c *Cart) Lines() []types.CartLine {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]types.CartLine, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.lines[id])
	}
	return out
}

// Len is the number of distinct products.
func (c *Cart) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// ItemCount is the number of units across all lines.
func (c *Cart) ItemCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, line := range c.lines {
		n += line.Quantity
	}
	return n
}

func (c *Cart) total(price func(types.Product) decimal.Decimal) decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()

	sum := decimal.Zero
	for _, line := range c.lines {
		sum = sum.Add(price(line.Product).Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return utils.RoundMoney(sum)
}

func (c *Cart) remove(id types.ProductID) {
	if _, ok := c.lines[id]; !ok {
		return
	}
	delete(c.lines, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
