/*
 * This file is subject to the terms and conditions defined in
 * file 'LICENSE.md', which is part of this source code package.
 */

package core

import (
	"io"
	"sort"

	"github.com/pdfcore/reader/common"
)

// Reader is a random-access PDF object reader: given a seekable byte
// source, it locates the container's cross-reference chain and resolves
// individual indirect objects and their stream bodies on demand, without
// materializing the whole file or understanding page trees, fonts, content
// streams, or any higher-level PDF semantics.
//
// A Reader is not safe for concurrent use: the byte cursor and the
// object-stream cache are shared across calls.
type Reader struct {
	fp       *fileParser
	resolver *resolver
	trailer  *Dict
	Version  struct{ Major, Minor int }
}

// Option configures a Reader at construction time.
type Option func(*options)

type options struct {
	logger             common.Logger
	sniff              bool
	disableObjstmCache bool
}

// WithLogger routes this reader's diagnostic output through l instead of the
// package-level common.Log.
func WithLogger(l common.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithFormatSniffing enables or disables the magic-byte pre-check
// (sniff.go) NewReader otherwise performs before locating the PDF header.
// Enabled by default.
func WithFormatSniffing(enabled bool) Option {
	return func(o *options) { o.sniff = enabled }
}

// WithObjectStreamCacheDisabled turns off the object-stream decode cache,
// trading memory for a guarantee that every compressed-object lookup
// re-decodes its containing stream. Useful for short-lived readers that
// touch at most one object per stream.
func WithObjectStreamCacheDisabled() Option {
	return func(o *options) { o.disableObjstmCache = true }
}

// NewReader locates rs's PDF header and cross-reference chain and returns a
// Reader ready to resolve objects. rs must remain valid and unmodified for
// the Reader's lifetime; there is no Close method since the Reader owns no
// resources beyond rs itself.
func NewReader(rs io.ReadSeeker, opts ...Option) (*Reader, error) {
	o := &options{logger: common.Log, sniff: true}
	for _, opt := range opts {
		opt(o)
	}

	if o.sniff {
		ok, err := sniffIsPDF(rs)
		if err != nil {
			return nil, err
		}
		if !ok {
			o.logger.Debug("input does not look like a PDF by magic bytes; continuing anyway")
		}
	}

	fp, err := newFileParser(rs, o.logger)
	if err != nil {
		return nil, err
	}
	major, minor, err := fp.locateHeader()
	if err != nil {
		return nil, err
	}
	entry, err := fp.locateStartxref()
	if err != nil {
		return nil, err
	}
	chain, trailer, err := buildXrefChain(fp, entry, o.logger)
	if err != nil {
		return nil, err
	}

	res := newResolver(fp, chain, o.logger)
	res.noObjstmCache = o.disableObjstmCache

	r := &Reader{fp: fp, resolver: res, trailer: trailer}
	r.Version.Major, r.Version.Minor = major, minor
	return r, nil
}

// Trailer returns the trailer dictionary of the most recent
// cross-reference section (its own keys only, nothing merged in from older sections —
// callers resolving /Root, /Info, or /Prev-chained /ID themselves go through
// Resolve as usual).
func (r *Reader) Trailer() *Dict {
	return r.trailer
}

// Resolve returns obj itself unless it is a Ref, in which case the
// referenced object is looked up and returned (NullObject if unresolvable).
func (r *Reader) Resolve(obj Object) (Object, error) {
	return r.resolver.Resolve(obj)
}

// ResolveDeep is Resolve, but also resolves references appearing as the
// immediate elements of an Array or immediate values of a Dict.
func (r *Reader) ResolveDeep(obj Object) (Object, error) {
	return r.resolver.ResolveDeep(obj)
}

// ReadStreamBody returns stm's fully decoded body bytes, resolving its
// /Length, /Filter, and /DecodeParms as needed and applying the filter
// chain (filters.go).
func (r *Reader) ReadStreamBody(stm *Stream) ([]byte, error) {
	return r.resolver.readStreamBody(stm)
}

// Objects returns every in-use indirect reference visible anywhere in the
// xref chain, in ascending object-number order, for callers that want to
// walk the whole file (e.g. a validator or a dump tool) rather than
// starting from /Root. Each Ref carries its true generation (nonzero for
// plenty of real incrementally-updated files; always 0 for a compressed
// object), so Resolve(ref) round-trips for every value returned here.
// The newest section in the chain to mention a given object
// number decides its fate: if that section marks it Free, the number is
// excluded entirely, even if an older section once defined it.
func (r *Reader) Objects() []Ref {
	seen := map[uint64]Ref{}
	excluded := map[uint64]bool{}
	for l := r.resolver.chain; l != nil; l = l.next {
		for num, e := range l.entries {
			if num >= uint64(l.size) {
				continue
			}
			if _, ok := seen[num]; ok {
				continue
			}
			if excluded[num] {
				continue
			}
			switch e.Kind {
			case xrefEntryInUse:
				seen[num] = Ref{Num: num, Gen: e.Gen}
			case xrefEntryCompressed:
				seen[num] = Ref{Num: num, Gen: 0}
			case xrefEntryFree:
				excluded[num] = true
			}
		}
	}
	nums := make([]uint64, 0, len(seen))
	for num := range seen {
		nums = append(nums, num)
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	refs := make([]Ref, len(nums))
	for i, num := range nums {
		refs[i] = seen[num]
	}
	return refs
}
