/*
 * This file is subject to the terms and conditions defined in
 * file 'LICENSE.md', which is part of this source code package.
 */

package core

import "github.com/pdfcore/reader/common"

// xrefLink is one node of the xref chain: its own section's entries plus a
// pointer to the next (older) section to fall back to. Resolution always
// tries the most recent section first, so a later incremental update's
// redefinition of an object shadows its earlier definition. The same chain
// can also be flattened once into a single map (mergeChain, below) for
// callers that prefer a per-lookup-free merged view; both views always
// agree on the record any given object number resolves to.
type xrefLink struct {
	offset  int64
	entries map[uint64]xrefEntry
	size    int64
	next    *xrefLink
}

// locate looks up ref (by number and generation) in this section, falling
// back to older sections down the chain when this section has nothing to
// say about ref.Num (absent, out of /Size range) — but not when this
// section names the number with a record that doesn't match ref.Gen: a
// generation mismatch resolves to the default free record (Null, no error)
// rather than a further chain search. A missing object
// anywhere in the chain reports (xrefEntry{}, false); callers treat that as
// an unresolvable/null reference, never as an error.
func (l *xrefLink) locate(ref Ref) (xrefEntry, bool) {
	for n := l; n != nil; n = n.next {
		if ref.Num >= uint64(n.size) {
			continue
		}
		e, ok := n.entries[ref.Num]
		if !ok {
			continue
		}
		switch e.Kind {
		case xrefEntryInUse:
			if e.Gen == ref.Gen {
				return e, true
			}
			return xrefEntry{Kind: xrefEntryFree}, true
		case xrefEntryCompressed:
			if ref.Gen == 0 {
				return e, true
			}
			return xrefEntry{Kind: xrefEntryFree}, true
		case xrefEntryFree:
			return e, true
		}
	}
	return xrefEntry{}, false
}

type xrefQueueItem struct {
	offset  int64
	isAside bool
}

// buildXrefChain walks the /Prev (and hybrid-file /XRefStm "aside") links
// starting at entry, returning the head of the resulting chain (the
// most-recent section) plus its trailer. A section already seen earlier in
// the same walk breaks the chain at that point (a cyclic /Prev) rather than
// looping forever; a section that fails to parse likewise truncates the
// chain there instead of failing the whole reader.
func buildXrefChain(fp *fileParser, entry int64, logger common.Logger) (*xrefLink, *Dict, error) {
	if logger == nil {
		logger = common.DummyLogger{}
	}
	queue := []xrefQueueItem{{offset: entry}}
	type built struct {
		offset int64
		sec    *xrefSection
	}
	var order []built
	seen := map[int64]bool{}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		if seen[item.offset] {
			logger.Warning("cross-reference chain revisits offset %d; stopping walk here", item.offset)
			break
		}
		seen[item.offset] = true

		sec, err := fp.readAt(item.offset)
		if err != nil {
			logger.Warning("cross-reference section at offset %d could not be read (%v); keeping sections already found", item.offset, err)
			break
		}
		if item.isAside && !sec.IsStream {
			logger.Warning("/XRefStm at offset %d points to a classical xref table, not a cross-reference stream; using it anyway", item.offset)
		}

		if sec.XRefStm != nil {
			if !item.isAside {
				queue = append(queue, xrefQueueItem{offset: *sec.XRefStm, isAside: true})
			}
		}
		if sec.Prev != nil {
			if !item.isAside {
				queue = append(queue, xrefQueueItem{offset: *sec.Prev, isAside: false})
			}
		}

		order = append(order, built{offset: item.offset, sec: sec})
	}

	if len(order) == 0 {
		return nil, nil, errParse("no cross-reference section could be read")
	}

	var next *xrefLink
	for i := len(order) - 1; i >= 0; i-- {
		link := &xrefLink{offset: order[i].offset, entries: order[i].sec.Entries, size: order[i].sec.Size, next: next}
		next = link
	}
	return next, order[0].sec.Trailer, nil
}

// mergeChain flattens an xref chain into a single map: the newest section
// to mention an object number below its own /Size wins, matching what
// lookups down the chain itself produce.
func mergeChain(head *xrefLink) map[uint64]xrefEntry {
	merged := map[uint64]xrefEntry{}
	for l := head; l != nil; l = l.next {
		for num, e := range l.entries {
			if num >= uint64(l.size) {
				continue
			}
			if _, ok := merged[num]; !ok {
				merged[num] = e
			}
		}
	}
	return merged
}
