package deploy

import (
	"fmt"
	"strings"

	"github.com/cuemby/greenfleet/pkg/types"
)

// LedgerEntry is one resource created during a run
type LedgerEntry struct {
	Kind types.ResourceKind
	ID   string
}

func (e LedgerEntry) String() string {
	return fmt.Sprintf("%s %s", e.Kind, e.ID)
}

// Ledger is the append-only, in-memory record of resources created during
// one run. It is never persisted.
type Ledger struct {
	entries []LedgerEntry
}

// NewLedger returns an empty ledger
func NewLedger() *Ledger {
	return &Ledger{}
}

// Append records a created resource
func (l *Ledger) Append(kind types.ResourceKind, id string) {
	l.entries = append(l.entries, LedgerEntry{Kind: kind, ID: id})
}

// Entries returns the recorded resources in creation order
func (l *Ledger) Entries() []LedgerEntry {
	return append([]LedgerEntry(nil), l.entries...)
}

// Len returns the number of recorded resources
func (l *Ledger) Len() int {
	return len(l.entries)
}

// Clear empties the ledger
func (l *Ledger) Clear() {
	l.entries = nil
}

// RollbackOrder returns the entries to destroy: every fleet, then every
// launch spec, each group in creation order.
func (l *Ledger) RollbackOrder() []LedgerEntry {
	out := make([]LedgerEntry, 0, len(l.entries))
	for _, kind := range []types.ResourceKind{types.ResourceFleet, types.ResourceLaunchSpec} {
		for _, e := range l.entries {
			if e.Kind == kind {
				out = append(out, e)
			}
		}
	}
	return out
}

func formatEntries(entries []LedgerEntry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, e.String())
	}
	return strings.Join(parts, ", ")
}
