// Package id generates sortable record identifiers.
//
// IDs are ULIDs produced by a per-process Generator that stays monotonic even
// when the wall clock steps backwards. The ledger assigns one to every record
// at append time; unlike sequence numbers they never change, so consumers use
// them to deduplicate records across renumbering and reconnects.
package id
