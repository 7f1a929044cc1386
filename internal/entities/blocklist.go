package entities

import (
	"fmt"

	"github.com/satchel-dev/satchel/internal/record"
	"github.com/satchel-dev/satchel/internal/store"
)

// EntityBlocklist is the queue/table key for blocked-site entries.
const EntityBlocklist = "blocklist"

// BlockedSite is one blocked-site rule enforced by the browser extension.
type BlockedSite struct {
	record.Meta
	Pattern string `json:"pattern"` // host or host/path prefix
	Reason  string `json:"reason,omitempty"`
}

func (b BlockedSite) RecordMeta() record.Meta            { return b.Meta }
func (b BlockedSite) WithMeta(m record.Meta) BlockedSite { b.Meta = m; return b }

func (b BlockedSite) Validate() error {
	if b.Pattern == "" {
		return fmt.Errorf("blocked site pattern is required")
	}
	return nil
}

// BlockedSiteWire is the server representation of a blocked-site rule.
type BlockedSiteWire struct {
	WireMeta
	Pattern string `json:"pattern"`
	Reason  string `json:"reason,omitempty"`
}

func blockedSiteFromWire(w BlockedSiteWire) (BlockedSite, error) {
	m, err := w.ToMeta()
	if err != nil {
		return BlockedSite{}, fmt.Errorf("invalid blocked site: %w", err)
	}
	return BlockedSite{Meta: m, Pattern: w.Pattern, Reason: w.Reason}, nil
}

func blockedSiteToWire(b BlockedSite) BlockedSiteWire {
	return BlockedSiteWire{WireMeta: MetaToWire(b.Meta), Pattern: b.Pattern, Reason: b.Reason}
}

// NewBlocklistBinding binds the blocked-site collection to the sync engine.
func NewBlocklistBinding(db *store.DB, remote Remote[BlockedSiteWire], userID func() string) *Binding[BlockedSite, BlockedSiteWire] {
	return NewBinding(
		EntityBlocklist,
		userID,
		store.NewTable[BlockedSite](db, EntityBlocklist),
		remote,
		blockedSiteFromWire,
		blockedSiteToWire,
		BlockedSite.Validate,
	)
}
