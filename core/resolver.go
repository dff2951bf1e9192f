/*
 * This file is subject to the terms and conditions defined in
 * file 'LICENSE.md', which is part of this source code package.
 */

package core

import (
	"io"
	"strconv"

	"github.com/pdfcore/reader/common"
)

// sliceReadSeeker adapts an in-memory byte slice (an object stream's
// decompressed body) to io.ReadSeeker, so readObject's byteSource/tokenizer
// machinery can be reused verbatim against it instead of the container file.
type sliceReadSeeker struct {
	data []byte
	pos  int64
}

func (s *sliceReadSeeker) Read(p []byte) (int, error) {
	if s.pos >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[s.pos:])
	s.pos += int64(n)
	return n, nil
}

func (s *sliceReadSeeker) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = s.pos
	case io.SeekEnd:
		base = int64(len(s.data))
	}
	s.pos = base + offset
	return s.pos, nil
}

// resolver answers "what object does this reference name" questions against
// a fileParser and an xref chain, decoding and caching object streams along
// the way.
//
// The object-stream cache is keyed by the stream's container file offset
// rather than its object number: offsets are already the resolver's native
// currency, and two distinct xref sections can assign the same object
// number to unrelated streams across an incremental-update chain.
// ResolveDeep resolves references one level into an Array or Dict's
// immediate values rather than recursing arbitrarily deep, since every
// caller in this reader (filter names, DecodeParms) only ever needs that
// one level.
type resolver struct {
	fp *fileParser

	// chain is the xref chain as built; loc is what lookups actually go
	// through. They are the same object except while a container object
	// stream is being decoded, when loc is wrapped by uncompressedLocator.
	chain  *xrefLink
	loc    locator
	logger common.Logger

	noObjstmCache bool
	objstmCache   map[int64]objstmCacheEntry
}

// locator maps a reference to its xref record.
type locator interface {
	locate(ref Ref) (xrefEntry, bool)
}

// uncompressedLocator wraps another locator for use while a container object
// stream is itself being read: its /Length, /Filter, or /DecodeParms may be
// indirect, and if such a reference resolved through a Compr record it would
// re-enter the (not yet cached) container decode. Any Compr record surfacing
// here is substituted with a default free record instead, with a warning.
type uncompressedLocator struct {
	inner  locator
	logger common.Logger
}

func (u uncompressedLocator) locate(ref Ref) (xrefEntry, bool) {
	e, ok := u.inner.locate(ref)
	if ok && e.Kind == xrefEntryCompressed {
		u.logger.Warning("object %d resolves through an object stream while another object stream is being read; treating as free", ref.Num)
		return xrefEntry{Kind: xrefEntryFree}, true
	}
	return e, ok
}

// withUncompressedLocator returns a shallow copy of r whose lookups refuse
// Compr records; the object-stream cache is shared with r.
func (r *resolver) withUncompressedLocator() *resolver {
	sub := *r
	sub.loc = uncompressedLocator{inner: r.loc, logger: r.logger}
	return &sub
}

type objstmCacheEntry struct {
	entries []objstmMember
	source  []byte
	err     error
}

type objstmMember struct {
	num    uint64
	offset int
}

func newResolver(fp *fileParser, chain *xrefLink, logger common.Logger) *resolver {
	if logger == nil {
		logger = common.DummyLogger{}
	}
	return &resolver{fp: fp, chain: chain, loc: chain, logger: logger, objstmCache: map[int64]objstmCacheEntry{}}
}

// readUncompressed parses the indirect object at offset and checks that its
// header (num, gen) matches ref.
func (r *resolver) readUncompressed(offset int64, ref Ref) (Object, error) {
	gotRef, obj, err := r.fp.readIndirectObjectAt(offset)
	if err != nil {
		return nil, err
	}
	if gotRef != ref {
		return nil, errParseRef("object number/generation mismatch", ref)
	}
	return obj, nil
}

// ResolveRef returns the object ref names, or NullObject if the xref chain
// has no entry for it (a free or absent object is not an error).
func (r *resolver) ResolveRef(ref Ref) (Object, error) {
	entry, ok := r.loc.locate(ref)
	if !ok || entry.Kind == xrefEntryFree {
		return NullObject, nil
	}
	switch entry.Kind {
	case xrefEntryInUse:
		return r.readUncompressed(entry.Offset, ref)
	case xrefEntryCompressed:
		return r.readCompressed(entry.StreamNum, entry.StreamIdx, ref)
	default:
		return NullObject, nil
	}
}

// Resolve follows obj if it is a Ref, otherwise returns it unchanged.
func (r *resolver) Resolve(obj Object) (Object, error) {
	if ref, ok := obj.(Ref); ok {
		return r.ResolveRef(ref)
	}
	return obj, nil
}

// ResolveDeep is like Resolve, but additionally resolves references found as
// the immediate elements of an Array or the immediate values of a Dict (one
// level only — see the type doc comment).
func (r *resolver) ResolveDeep(obj Object) (Object, error) {
	resolved, err := r.Resolve(obj)
	if err != nil {
		return nil, err
	}
	switch v := resolved.(type) {
	case Array:
		out := make(Array, len(v))
		for i, el := range v {
			rv, err := r.Resolve(el)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	case *Dict:
		out := NewDict()
		for _, key := range v.Keys() {
			rv, err := r.Resolve(v.Lookup(key))
			if err != nil {
				return nil, err
			}
			out.Set(key, rv)
		}
		return out, nil
	default:
		return resolved, nil
	}
}

// readCompressed resolves a /Type /ObjStm member: streamNum's object stream
// is parsed and cached (keyed by its container offset), then member index is
// read from the stream's decompressed body. oref's generation is always 0
// here: the caller (ResolveRef) only reaches this branch when the locator
// matched a Compr record, and the locator only matches those for gen-0
// references.
func (r *resolver) readCompressed(streamNum, index uint64, oref Ref) (Object, error) {
	entry, ok := r.loc.locate(Ref{Num: streamNum, Gen: 0})
	if ok && entry.Kind == xrefEntryCompressed {
		r.logger.Warning("object stream %d is itself recorded as compressed; refusing to recurse into it", streamNum)
		return nil, errParse("object stream container must not itself be compressed")
	}
	if !ok || entry.Kind != xrefEntryInUse {
		return nil, errParse("object stream not located")
	}
	cached, err := r.loadObjstm(entry.Offset, Ref{Num: streamNum})
	if err != nil {
		return nil, err
	}
	idx := int(index)
	if idx < 0 || idx >= len(cached.entries) {
		return nil, errParse("out of bounds index requested from object stream")
	}
	member := cached.entries[idx]
	if member.num != oref.Num {
		return nil, errMismatch
	}
	end := len(cached.source)
	if idx+1 < len(cached.entries) {
		end = cached.entries[idx+1].offset
	}
	if member.offset < 0 || member.offset > end || end > len(cached.source) {
		return nil, errParse("malformed object stream entry bounds")
	}
	body := cached.source[member.offset:end]
	src := newByteSource(&sliceReadSeeker{data: body})
	tok := newTokenizer(src)
	return readObject(tok)
}

// loadObjstm decodes and caches (by container offset) the object stream
// whose header is at streamOffset; an unparseable stream's error is cached
// too, so a single malformed ObjStm is not re-parsed on every lookup.
func (r *resolver) loadObjstm(streamOffset int64, streamRef Ref) (objstmCacheEntry, error) {
	if r.noObjstmCache {
		entry := r.decodeObjstm(streamOffset, streamRef)
		return entry, entry.err
	}
	if cached, ok := r.objstmCache[streamOffset]; ok {
		return cached, cached.err
	}
	entry := r.decodeObjstm(streamOffset, streamRef)
	r.objstmCache[streamOffset] = entry
	return entry, entry.err
}

func (r *resolver) decodeObjstm(streamOffset int64, streamRef Ref) objstmCacheEntry {
	obj, err := r.readUncompressed(streamOffset, streamRef)
	if err != nil {
		return objstmCacheEntry{err: err}
	}
	stm, ok := StreamValue(obj)
	if !ok {
		return objstmCacheEntry{err: errParse("object stream not found")}
	}
	count, ok := IntValue(stm.Dict.Lookup("N"))
	if !ok || count < 0 {
		return objstmCacheEntry{err: errParse("malformed object stream (/N)")}
	}
	first, ok := IntValue(stm.Dict.Lookup("First"))
	if !ok || first < 0 {
		return objstmCacheEntry{err: errParse("malformed object stream (/First)")}
	}

	// The stream's /Length, /Filter, and /DecodeParms may themselves be
	// indirect; resolve them through a locator that refuses to re-enter an
	// object stream while this one is still being decoded.
	body, err := r.withUncompressedLocator().readStreamBodyNoFallback(stm)
	if err != nil {
		return objstmCacheEntry{err: err}
	}
	if int64(len(body)) < first {
		return objstmCacheEntry{err: errParse("object stream header exceeds /First")}
	}

	header := body[:first]
	src := newByteSource(&sliceReadSeeker{data: header})
	tok := newTokenizer(src)
	members := make([]objstmMember, 0, count)
	for i := int64(0); i < count; i++ {
		numTk, err := tok.readTokenNonEmpty()
		if err != nil {
			return objstmCacheEntry{err: errParse("malformed object stream header")}
		}
		num, ok := parseStrictUint(numTk)
		if !ok {
			return objstmCacheEntry{err: errParse("malformed object stream header")}
		}
		offTk, err := tok.readTokenNonEmpty()
		if err != nil {
			return objstmCacheEntry{err: errParse("malformed object stream header")}
		}
		off, err := strconv.ParseInt(string(offTk), 10, 64)
		if err != nil {
			return objstmCacheEntry{err: errParse("malformed object stream header")}
		}
		members = append(members, objstmMember{num: num, offset: int(off)})
	}

	return objstmCacheEntry{entries: members, source: body[first:]}
}

// readStreamBody returns stm's fully decoded bytes: /Length is resolved
// (possibly itself an indirect reference), the raw body is read from the
// container — falling back to the endstream scan if /Length is missing or
// doesn't check out — and the /Filter chain is applied.
func (r *resolver) readStreamBody(stm *Stream) ([]byte, error) {
	return r.readStreamBodyWith(stm, true)
}

// readStreamBodyNoFallback is readStreamBody but never scans for a literal
// "endstream" terminator: an object stream's body must be read using its
// /Length, full stop; a missing or unresolvable /Length is a parse error
// rather than a fallback. Used by decodeObjstm only — every other stream
// body (including the xref stream's own body, read before any resolver
// exists) goes through the fallback-permitting path.
func (r *resolver) readStreamBodyNoFallback(stm *Stream) ([]byte, error) {
	return r.readStreamBodyWith(stm, false)
}

func (r *resolver) readStreamBodyWith(stm *Stream, allowEndstreamFallback bool) ([]byte, error) {
	lengthObj, err := r.Resolve(stm.Dict.Lookup("Length"))
	if err != nil {
		return nil, err
	}
	length, hasLength := IntValue(lengthObj)
	var raw []byte
	if allowEndstreamFallback {
		raw, err = r.fp.readStreamRawBodyWithLength(stm.BodyOffset, length, hasLength)
	} else {
		raw, err = r.fp.readStreamRawBodyStrict(stm.BodyOffset, length, hasLength)
	}
	if err != nil {
		return nil, err
	}

	filterObj, err := r.ResolveDeep(stm.Dict.Lookup("Filter"))
	if err != nil {
		return nil, err
	}
	paramsObj, err := r.ResolveDeep(stm.Dict.Lookup("DecodeParms"))
	if err != nil {
		return nil, err
	}
	effective := NewDict()
	effective.Set("Filter", filterObj)
	effective.Set("DecodeParms", paramsObj)
	return DecodeStream(raw, effective)
}
