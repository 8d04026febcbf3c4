package domain

import (
	"time"

	"github.com/google/uuid"
)

// Position orders transactions within a chain: block height, then index
// inside the block.
type Position struct {
	Block int64 `json:"block"`
	Index int64 `json:"index"`
}

// Compare returns -1, 0 or 1.
func (p Position) Compare(o Position) int {
	switch {
	case p.Block < o.Block:
		return -1
	case p.Block > o.Block:
		return 1
	case p.Index < o.Index:
		return -1
	case p.Index > o.Index:
		return 1
	default:
		return 0
	}
}

func (p Position) Less(o Position) bool { return p.Compare(o) < 0 }

// Cursor marks how far a (wallet, chain) has been ingested. It never moves
// backwards once committed.
type Cursor struct {
	WalletID  uuid.UUID `json:"wallet_id"`
	Chain     string    `json:"chain"`
	LastBlock int64     `json:"last_block"`
	LastIndex int64     `json:"last_index"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Cursor) Position() Position {
	return Position{Block: c.LastBlock, Index: c.LastIndex}
}

// UnitKey identifies the unit this cursor belongs to.
func (c *Cursor) UnitKey() UnitKey {
	return UnitKey{WalletID: c.WalletID, Chain: c.Chain}
}

// CursorAt builds a cursor for key at pos.
func CursorAt(key UnitKey, pos Position) *Cursor {
	return &Cursor{
		WalletID:  key.WalletID,
		Chain:     key.Chain,
		LastBlock: pos.Block,
		LastIndex: pos.Index,
	}
}

// Advances reports whether next is strictly ahead of c. A nil c means
// nothing has been committed yet.
func (c *Cursor) Advances(next Position) bool {
	if c == nil {
		return true
	}
	return c.Position().Less(next)
}
