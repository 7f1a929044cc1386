// Package merge implements last-write-wins conflict resolution with delete
// precedence for synchronized records.
//
// The pairwise rule is deliberately exact rather than intuitive: a version
// with any larger DeletedAt beats a version with a larger UpdatedAt. A
// tombstone stamped at 5 wins against a live edit stamped at 500. Deletions
// propagate between replicas through this precedence, so reproducing it
// exactly is what makes independent replicas converge.
package merge

import (
	"github.com/satchel-dev/satchel/internal/record"
)

// Preference breaks ties when both clocks compare equal. Replicas merging
// the same pair in different orders must use the same preference to
// converge, so the default favors the second argument, conventionally the
// remote/server copy.
type Preference int

const (
	// PreferB keeps the second argument on a tie (the default).
	PreferB Preference = iota
	// PreferA keeps the first argument on a tie.
	PreferA
)

// Merge resolves two versions of the same record id.
//
// Rules, in order:
//  1. Differing DeletedAt: the larger DeletedAt wins outright, regardless
//     of UpdatedAt.
//  2. Differing UpdatedAt: the larger UpdatedAt wins.
//  3. Tie: prefer decides; PreferB keeps b.
func Merge[T record.Record[T]](a, b T, prefer Preference) T {
	am, bm := a.RecordMeta(), b.RecordMeta()

	if am.DeletedAt != bm.DeletedAt {
		if am.DeletedAt > bm.DeletedAt {
			return a
		}
		return b
	}

	if am.UpdatedAt != bm.UpdatedAt {
		if am.UpdatedAt > bm.UpdatedAt {
			return a
		}
		return b
	}

	if prefer == PreferA {
		return a
	}
	return b
}

// MergeByID merges two lists of records by id using the pairwise rule with
// the default preference (remote wins ties).
//
// The result contains local items in their original order, each replaced by
// the merge winner where the same id appears in remote, followed by remote
// items whose ids were absent locally, in remote order. Items present in
// only one list pass through unchanged.
func MergeByID[T record.Record[T]](local, remote []T) []T {
	index := make(map[string]int, len(local))
	out := make([]T, 0, len(local)+len(remote))

	for _, item := range local {
		index[item.RecordMeta().ID] = len(out)
		out = append(out, item)
	}

	for _, item := range remote {
		id := item.RecordMeta().ID
		if i, ok := index[id]; ok {
			out[i] = Merge(out[i], item, PreferB)
			continue
		}
		index[id] = len(out)
		out = append(out, item)
	}

	return out
}

// Live filters out tombstoned records, preserving order.
func Live[T record.Record[T]](items []T) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if !item.RecordMeta().Deleted() {
			out = append(out, item)
		}
	}
	return out
}
