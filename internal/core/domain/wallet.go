package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Wallet is a monitored address on one chain. Owned by the wallet registry;
// the sync engine only reads it.
type Wallet struct {
	ID        uuid.UUID `json:"id"`
	Address   string    `json:"address"`
	Chain     string    `json:"chain"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UnitKey identifies one sync unit.
func (w *Wallet) UnitKey() UnitKey {
	return UnitKey{WalletID: w.ID, Chain: w.Chain}
}

// UnitKey identifies a (wallet, chain) sync unit.
type UnitKey struct {
	WalletID uuid.UUID `json:"wallet_id"`
	Chain    string    `json:"chain"`
}

func (k UnitKey) String() string {
	return fmt.Sprintf("%s:%s", k.WalletID, k.Chain)
}
