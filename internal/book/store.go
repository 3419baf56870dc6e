package book

import (
	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/shopspring/decimal"

	"github.com/avii-ahuja/coinbase-trading-bot/internal/core"
)

// Store is one side's price levels, ordered ascending by price in a
// red-black tree. Not safe for concurrent use; the engine serializes
// access.
type Store struct {
	side core.Side
	tree *redblacktree.Tree
}

// NewStore creates an empty store for the given side.
func NewStore(side core.Side) *Store {
	return &Store{
		side: side,
		tree: redblacktree.NewWith(priceComparator),
	}
}

func priceComparator(a, b interface{}) int {
	return a.(decimal.Decimal).Cmp(b.(decimal.Decimal))
}

// Upsert applies an absolute-quantity update for a price level.
// A zero size removes the level if present; a zero size for an unknown
// level is ignored. The feed occasionally delivers a delete before the
// level was ever observed (no per-update sequencing), and treating that as
// a no-op is the required behavior.
func (s *Store) Upsert(price, size decimal.Decimal) {
	_, found := s.tree.Get(price)

	if !found {
		if !size.IsZero() {
			s.tree.Put(price, &core.PriceLevel{Price: price, Size: size, Side: s.side})
		}
		return
	}

	if size.IsZero() {
		s.tree.Remove(price)
		return
	}

	s.tree.Put(price, &core.PriceLevel{Price: price, Size: size, Side: s.side})
}

// Best returns the best level for this side: highest price for bids,
// lowest for offers. Nil when empty.
func (s *Store) Best() *core.PriceLevel {
	var node *redblacktree.Node
	if s.side == core.SideBid {
		node = s.tree.Right()
	} else {
		node = s.tree.Left()
	}
	if node == nil {
		return nil
	}
	return node.Value.(*core.PriceLevel)
}

// Clear empties the store. Used only when a session's state must be
// discarded on reconnect.
func (s *Store) Clear() {
	s.tree.Clear()
}

// Len returns the number of levels present.
func (s *Store) Len() int {
	return s.tree.Size()
}
