package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// HistoryEntry is the part of a stored transaction that scoring and rules read.
type HistoryEntry struct {
	Hash         string
	Counterparty string
	Amount       float64
	Timestamp    time.Time
	BlockNumber  int64
	TxIndex      int64
	MethodID     string
}

// orderKey sorts the ledger chronologically; position breaks timestamp ties.
type orderKey struct {
	ts  int64
	pos Position
}

func (k orderKey) less(o orderKey) bool {
	if k.ts != o.ts {
		return k.ts < o.ts
	}
	return k.pos.Less(o.pos)
}

func (e *HistoryEntry) key() orderKey {
	return orderKey{ts: e.Timestamp.UnixNano(), pos: Position{Block: e.BlockNumber, Index: e.TxIndex}}
}

// EntryFor extracts the history entry for tx as seen by walletAddress.
func EntryFor(tx *Transaction, walletAddress string) HistoryEntry {
	return HistoryEntry{
		Hash:         tx.Hash,
		Counterparty: tx.Counterparty(walletAddress),
		Amount:       tx.Amount,
		Timestamp:    tx.Timestamp,
		BlockNumber:  tx.BlockNumber,
		TxIndex:      tx.TxIndex,
		MethodID:     tx.MethodID,
	}
}

// WalletHistory is an ordered snapshot of one wallet's ledger on one chain.
// It is derived from stored transactions and never persisted.
type WalletHistory struct {
	WalletID uuid.UUID
	Chain    string

	entries      []HistoryEntry
	hashes       map[string]struct{}
	counterparty map[string]orderKey // earliest sighting
	methods      map[string]orderKey
}

// NewWalletHistory builds a history from entries in any order. Duplicate
// hashes are kept once.
func NewWalletHistory(walletID uuid.UUID, chain string, entries []HistoryEntry) *WalletHistory {
	h := &WalletHistory{
		WalletID:     walletID,
		Chain:        chain,
		hashes:       make(map[string]struct{}, len(entries)),
		counterparty: make(map[string]orderKey),
		methods:      make(map[string]orderKey),
	}
	sorted := make([]HistoryEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].key().less(sorted[j].key()) })

	h.entries = make([]HistoryEntry, 0, len(sorted))
	for _, e := range sorted {
		if _, dup := h.hashes[e.Hash]; dup {
			continue
		}
		h.entries = append(h.entries, e)
		h.index(e)
	}
	return h
}

func (h *WalletHistory) index(e HistoryEntry) {
	h.hashes[e.Hash] = struct{}{}
	k := e.key()
	if e.Counterparty != "" {
		if cur, ok := h.counterparty[e.Counterparty]; !ok || k.less(cur) {
			h.counterparty[e.Counterparty] = k
		}
	}
	if e.MethodID != "" {
		if cur, ok := h.methods[e.MethodID]; !ok || k.less(cur) {
			h.methods[e.MethodID] = k
		}
	}
}

// Len returns the number of ledger entries.
func (h *WalletHistory) Len() int { return len(h.entries) }

// Contains reports whether hash is already in the ledger.
func (h *WalletHistory) Contains(hash string) bool {
	_, ok := h.hashes[hash]
	return ok
}

// Append inserts e in order. Returns false if the hash was already present.
func (h *WalletHistory) Append(e HistoryEntry) bool {
	if h.Contains(e.Hash) {
		return false
	}
	k := e.key()
	i := sort.Search(len(h.entries), func(i int) bool { return k.less(h.entries[i].key()) })
	h.entries = append(h.entries, HistoryEntry{})
	copy(h.entries[i+1:], h.entries[i:])
	h.entries[i] = e
	h.index(e)
	return true
}

// Clone returns an independent copy that can be extended without touching h.
func (h *WalletHistory) Clone() *WalletHistory {
	c := &WalletHistory{
		WalletID:     h.WalletID,
		Chain:        h.Chain,
		entries:      make([]HistoryEntry, len(h.entries)),
		hashes:       make(map[string]struct{}, len(h.hashes)),
		counterparty: make(map[string]orderKey, len(h.counterparty)),
		methods:      make(map[string]orderKey, len(h.methods)),
	}
	copy(c.entries, h.entries)
	for k, v := range h.hashes {
		c.hashes[k] = v
	}
	for k, v := range h.counterparty {
		c.counterparty[k] = v
	}
	for k, v := range h.methods {
		c.methods[k] = v
	}
	return c
}

// Before returns the view of everything strictly earlier than tx. The
// transaction itself is never part of its own view.
func (h *WalletHistory) Before(tx *Transaction) HistoryView {
	cut := orderKey{ts: tx.Timestamp.UnixNano(), pos: tx.Position()}
	n := sort.Search(len(h.entries), func(i int) bool { return !h.entries[i].key().less(cut) })
	return HistoryView{h: h, n: n, cut: cut}
}

// HistoryView is a read-only prefix of a WalletHistory.
type HistoryView struct {
	h   *WalletHistory
	n   int
	cut orderKey
}

// Len is the number of prior transactions.
func (v HistoryView) Len() int { return v.n }

// HasCounterparty reports whether the wallet dealt with addr before the cut.
func (v HistoryView) HasCounterparty(addr string) bool {
	if v.h == nil {
		return false
	}
	k, ok := v.h.counterparty[addr]
	return ok && k.less(v.cut)
}

// HasMethod reports whether the wallet called method before the cut.
func (v HistoryView) HasMethod(method string) bool {
	if v.h == nil {
		return false
	}
	k, ok := v.h.methods[method]
	return ok && k.less(v.cut)
}

// TrailingAverage is the mean amount of the last n prior transactions.
// ok is false when there is no prior transaction.
func (v HistoryView) TrailingAverage(n int) (avg float64, ok bool) {
	if v.n == 0 || n <= 0 {
		return 0, false
	}
	start := v.n - n
	if start < 0 {
		start = 0
	}
	var sum float64
	for _, e := range v.h.entries[start:v.n] {
		sum += e.Amount
	}
	return sum / float64(v.n-start), true
}

// CountSince counts prior transactions with timestamp in (from, +inf).
func (v HistoryView) CountSince(from time.Time) int {
	if v.n == 0 {
		return 0
	}
	f := from.UnixNano()
	i := sort.Search(v.n, func(i int) bool { return v.h.entries[i].Timestamp.UnixNano() > f })
	return v.n - i
}

// Counterparties returns the distinct counterparties seen before the cut.
func (v HistoryView) Counterparties() []string {
	if v.h == nil {
		return nil
	}
	out := make([]string, 0, len(v.h.counterparty))
	for addr, k := range v.h.counterparty {
		if k.less(v.cut) {
			out = append(out, addr)
		}
	}
	sort.Strings(out)
	return out
}
