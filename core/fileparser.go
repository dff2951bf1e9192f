/*
 * This file is subject to the terms and conditions defined in
 * file 'LICENSE.md', which is part of this source code package.
 */

package core

import (
	"io"
	"regexp"
	"strconv"

	"github.com/pdfcore/reader/common"
)

var (
	rePdfVersion  = regexp.MustCompile(`%PDF-(\d)\.(\d)`)
	reStartXref   = regexp.MustCompile(`startxref\s*[\r\n]+\s*(\d+)`)
	reXrefSubHead = regexp.MustCompile(`^(\d+)\s+(\d+)\s*$`)
	reXrefEntry   = regexp.MustCompile(`^(\d{10})\s(\d{5})\s([nf])\s?\s?$`)
)

// fileParser owns the container-level byteSource and produces, at any given
// file offset, either an indirect object or an xref section. It sits above
// the tokenizer/object parser and below the xref chain resolver.
type fileParser struct {
	src      *byteSource
	fileSize int64
	logger   common.Logger

	// start is the header's absolute byte offset. Every offset recorded
	// inside the file itself (startxref's target, xref table/stream
	// entries, /Prev, /XRefStm) is relative to the header, not to byte 0
	// of the underlying stream — an "envelope" file with junk prepended
	// before "%PDF-M.N" shifts the header, and every such offset shifts
	// with it. readAt and readIndirectObjectAt are the two places that
	// turn a file-relative offset into an absolute seek, so start is
	// added there and nowhere else; BodyOffset and other positions
	// captured after seeking are already absolute.
	start int64
}

// xrefSection is either a classical xref table or a cross-reference stream,
// decoded to a uniform shape the xref chain resolver can walk regardless of
// which kind produced it.
type xrefSection struct {
	Trailer  *Dict
	Entries  map[uint64]xrefEntry
	Size     int64 // the section's own /Size; object numbers >= Size are free
	Prev     *int64
	XRefStm  *int64 // hybrid-file pointer, classical table only
	IsStream bool
}

// xrefEntry is one object's location, as recorded by either xref kind.
type xrefEntry struct {
	Kind      xrefEntryKind
	Offset    int64  // Kind == xrefEntryInUse
	Gen       uint16 // Kind == xrefEntryInUse
	StreamNum uint64 // Kind == xrefEntryCompressed
	StreamIdx uint64 // Kind == xrefEntryCompressed
}

type xrefEntryKind int

const (
	xrefEntryFree xrefEntryKind = iota
	xrefEntryInUse
	xrefEntryCompressed
)

func newFileParser(rs io.ReadSeeker, logger common.Logger) (*fileParser, error) {
	size, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = common.DummyLogger{}
	}
	fp := &fileParser{src: newByteSource(rs), fileSize: size, logger: logger}
	return fp, nil
}

// locateHeader scans the whole input for "%PDF-M.N", in overlapping 1 KiB
// windows so the marker is found even when it straddles a window boundary,
// and returns the parsed version. The header does not have to sit at byte 0:
// leading junk from an enveloping format is tolerated, and every subsequent
// file offset is interpreted relative to the marker's position.
//
// A missing header is non-fatal here: start stays 0 (every offset is then
// interpreted relative to byte 0 of the input) and the condition is only
// logged, not returned as a construction error.
func (fp *fileParser) locateHeader() (major, minor int, err error) {
	const window = 1024
	const marker = len("%PDF-M.N")
	buf := make([]byte, window)
	var winStart int64
	for winStart < fp.fileSize {
		n := fp.fileSize - winStart
		if n > window {
			n = window
		}
		if err := fp.src.seek(winStart); err != nil {
			return 0, 0, err
		}
		if _, err := io.ReadFull(fp.src.buf, buf[:n]); err != nil && err != io.ErrUnexpectedEOF {
			return 0, 0, err
		}
		if loc := rePdfVersion.FindSubmatchIndex(buf[:n]); loc != nil {
			fp.start = winStart + int64(loc[0])
			major, _ = strconv.Atoi(string(buf[loc[2]:loc[3]]))
			minor, _ = strconv.Atoi(string(buf[loc[4]:loc[5]]))
			return major, minor, nil
		}
		// Overlap the next window by one byte less than the marker's length
		// so a marker split across the boundary is still seen whole.
		winStart += int64(window - (marker - 1))
	}
	fp.logger.Warning("PDF header not found; defaulting start offset to 0")
	return 0, 0, nil
}

// locateStartxref finds the last "startxref" marker within the trailing
// window of the file and returns the offset it names.
func (fp *fileParser) locateStartxref() (int64, error) {
	// startxref must appear within the last 1 KiB of the file.
	const window = 1024
	start := fp.fileSize - window
	if start < 0 {
		start = 0
	}
	buf := make([]byte, fp.fileSize-start)
	if err := fp.src.seek(start); err != nil {
		return 0, err
	}
	if _, err := io.ReadFull(fp.src.buf, buf); err != nil && err != io.ErrUnexpectedEOF {
		return 0, err
	}
	matches := reStartXref.FindAllSubmatch(buf, -1)
	if len(matches) == 0 {
		return 0, errParse("startxref not found")
	}
	last := matches[len(matches)-1]
	off, err := strconv.ParseInt(string(last[1]), 10, 64)
	if err != nil {
		return 0, errParse("malformed startxref offset")
	}
	if off < 0 || off > fp.fileSize {
		return 0, errParse("startxref offset outside of file")
	}
	return off, nil
}

// readIndirectObjectAt parses "N G obj ... endobj" starting at offset and
// returns the object's (num, gen) and value. For a Stream value, BodyOffset
// points right after the "stream" keyword's EOL and the stream's byte
// length is resolved separately (see resolver.go's readStreamBody).
func (fp *fileParser) readIndirectObjectAt(offset int64) (Ref, Object, error) {
	if err := fp.src.seek(offset + fp.start); err != nil {
		return Ref{}, nil, err
	}
	tok := newTokenizer(fp.src)

	numTk, err := tok.readTokenNonEmpty()
	if err != nil {
		return Ref{}, nil, err
	}
	num, ok := parseStrictUint(numTk)
	if !ok {
		return Ref{}, nil, errParseAt("malformed object number", offset)
	}
	genTk, err := tok.readTokenNonEmpty()
	if err != nil {
		return Ref{}, nil, err
	}
	gen, ok := parseStrictUint(genTk)
	if !ok || gen > 0xFFFF {
		return Ref{}, nil, errParseAt("malformed generation number", offset)
	}
	objTk, err := tok.readTokenNonEmpty()
	if err != nil {
		return Ref{}, nil, err
	}
	if string(objTk) != "obj" {
		return Ref{}, nil, errParseAt(`expected "obj"`, offset)
	}

	ref := Ref{Num: num, Gen: uint16(gen)}
	obj, err := readObject(tok)
	if err != nil {
		return Ref{}, nil, err
	}

	endTk, err := tok.readTokenNonEmpty()
	if err != nil {
		return Ref{}, nil, err
	}
	switch string(endTk) {
	case "endobj":
		return ref, obj, nil
	case "stream":
		dict, ok := obj.(*Dict)
		if !ok {
			return Ref{}, nil, errParseAt("stream keyword after a non-dictionary object", offset)
		}
		// The body begins after exactly one EOL: \n alone or \r\n. A bare
		// \r is an error (it would make the body's first byte ambiguous).
		c, err := fp.src.nextOrEOF()
		if err != nil {
			return Ref{}, nil, err
		}
		if c == '\r' {
			c, err = fp.src.nextOrEOF()
			if err != nil {
				return Ref{}, nil, err
			}
		}
		if c != '\n' {
			return Ref{}, nil, errParseAt("stream keyword not followed by a valid end of line", offset)
		}
		pos, err := fp.src.position()
		if err != nil {
			return Ref{}, nil, err
		}
		return ref, &Stream{Dict: dict, BodyOffset: pos}, nil
	default:
		return Ref{}, nil, errParseAt(`expected "endobj" or "stream"`, offset)
	}
}

// readAt parses whatever structure begins at a cross-reference-table offset
// from the startxref chain: either the literal "xref" keyword introducing a
// classical table, or an indirect object whose value must be an xref stream.
func (fp *fileParser) readAt(offset int64) (*xrefSection, error) {
	if err := fp.src.seek(offset + fp.start); err != nil {
		return nil, err
	}
	la, err := fp.src.peekN(4)
	if err != nil {
		return nil, err
	}
	if string(la) == "xref" {
		return fp.readClassicalXref(offset)
	}
	return fp.readXrefStream(offset)
}

// readClassicalXref parses one classical xref table (possibly several
// subsections) followed by its trailer dictionary. The 20-byte fixed-format
// entries are matched with reXrefEntry rather than hand-sliced fields.
func (fp *fileParser) readClassicalXref(offset int64) (*xrefSection, error) {
	if err := fp.src.discard(4); err != nil { // "xref"
		return nil, err
	}
	tok := newTokenizer(fp.src)
	if err := tok.readEOL(); err != nil {
		return nil, err
	}

	entries := make(map[uint64]xrefEntry)
	for {
		line, err := fp.src.readLineExcl()
		if err != nil {
			return nil, err
		}
		if m := reXrefSubHead.FindSubmatch(line); m != nil {
			first, _ := strconv.ParseUint(string(m[1]), 10, 64)
			count, _ := strconv.ParseUint(string(m[2]), 10, 64)
			for i := uint64(0); i < count; i++ {
				eline, err := fp.src.readLineExcl()
				if err != nil {
					return nil, err
				}
				em := reXrefEntry.FindSubmatch(eline)
				if em == nil {
					return nil, errParseAt("malformed xref entry", offset)
				}
				off, _ := strconv.ParseInt(string(em[1]), 10, 64)
				gen, _ := strconv.ParseUint(string(em[2]), 10, 64)
				num := first + i
				var e xrefEntry
				if string(em[3]) == "n" {
					e = xrefEntry{Kind: xrefEntryInUse, Offset: off, Gen: uint16(gen)}
				} else {
					e = xrefEntry{Kind: xrefEntryFree}
				}
				if _, dup := entries[num]; dup {
					fp.logger.Warning("duplicate xref entry for object %d in section at offset %d; keeping first occurrence", num, offset)
					continue
				}
				entries[num] = e
			}
			continue
		}
		if string(line) == "trailer" {
			break
		}
		return nil, errParseAt("malformed xref subsection header", offset)
	}

	if err := tok.skipWhitespace(); err != nil {
		return nil, err
	}
	dtk, err := tok.readTokenNonEmpty()
	if err != nil {
		return nil, err
	}
	if string(dtk) != "<<" {
		return nil, errParseAt("expected trailer dictionary", offset)
	}
	p := newObjParser(tok)
	trailerObj, err := p.readDict()
	if err != nil {
		return nil, err
	}
	trailer := trailerObj.(*Dict)

	size, ok := IntValue(trailer.Lookup("Size"))
	if !ok || size < 0 {
		return nil, errParseAt("xref table trailer has no usable /Size", offset)
	}
	sec := &xrefSection{Trailer: trailer, Entries: entries, Size: size}
	if v, ok := IntValue(trailer.Lookup("Prev")); ok {
		sec.Prev = &v
	}
	if v, ok := IntValue(trailer.Lookup("XRefStm")); ok {
		sec.XRefStm = &v
	}
	return sec, nil
}

// readXrefStream parses an indirect object whose value is a cross-reference
// stream (/Type /XRef): its /W field gives each field's byte width, /Index
// gives the (possibly multi-range) object numbers it covers, defaulting to
// a single range [0, /Size). Record fields are big-endian, fixed-width.
func (fp *fileParser) readXrefStream(offset int64) (*xrefSection, error) {
	_, obj, err := fp.readIndirectObjectAt(offset)
	if err != nil {
		return nil, err
	}
	stm, ok := StreamValue(obj)
	if !ok {
		return nil, errParseAt("expected xref stream object", offset)
	}
	dict := stm.Dict
	if typ, _ := NameValue(dict.Lookup("Type")); typ != "XRef" {
		return nil, errParseAt("xref stream /Type is not /XRef", offset)
	}

	wArr, ok := ArrayValue(dict.Lookup("W"))
	if !ok || len(wArr) != 3 {
		return nil, errParseAt("xref stream missing /W", offset)
	}
	var w [3]int
	for i, o := range wArr {
		v, ok := IntValue(o)
		if !ok || v < 0 || v > 8 {
			return nil, errParseAt("malformed /W entry", offset)
		}
		w[i] = int(v)
	}
	if w[1] == 0 {
		return nil, errParseAt("xref stream /W offset field width is zero", offset)
	}

	body, err := fp.readStreamRawBody(stm)
	if err != nil {
		return nil, err
	}
	decoded, err := DecodeStream(body, dict)
	if err != nil {
		return nil, err
	}

	size, ok := IntValue(dict.Lookup("Size"))
	if !ok {
		return nil, errParseAt("xref stream missing /Size", offset)
	}

	var ranges [][2]int64
	if idxArr, ok := ArrayValue(dict.Lookup("Index")); ok {
		if len(idxArr)%2 != 0 {
			return nil, errParseAt("malformed /Index", offset)
		}
		for i := 0; i < len(idxArr); i += 2 {
			start, ok1 := IntValue(idxArr[i])
			count, ok2 := IntValue(idxArr[i+1])
			if !ok1 || !ok2 {
				return nil, errParseAt("malformed /Index", offset)
			}
			ranges = append(ranges, [2]int64{start, count})
		}
	} else {
		ranges = [][2]int64{{0, size}}
	}

	recWidth := w[0] + w[1] + w[2]
	entries := make(map[uint64]xrefEntry)
	pos := 0
	for _, rg := range ranges {
		for i := int64(0); i < rg[1]; i++ {
			if pos+recWidth > len(decoded) {
				return nil, errParseAt("xref stream truncated", offset)
			}
			rec := decoded[pos : pos+recWidth]
			pos += recWidth
			typ := int64(1)
			if w[0] > 0 {
				typ = beUint(rec[:w[0]])
			}
			f2 := beUint(rec[w[0] : w[0]+w[1]])
			f3 := beUint(rec[w[0]+w[1] : recWidth])
			num := uint64(rg[0] + i)
			switch typ {
			case 0:
				entries[num] = xrefEntry{Kind: xrefEntryFree}
			case 1:
				entries[num] = xrefEntry{Kind: xrefEntryInUse, Offset: f2, Gen: uint16(f3)}
			case 2:
				entries[num] = xrefEntry{Kind: xrefEntryCompressed, StreamNum: uint64(f2), StreamIdx: uint64(f3)}
			default:
				return nil, errParseAt("unknown xref stream entry type", offset)
			}
		}
	}
	if pos != len(decoded) {
		return nil, errParseAt("xref stream has trailing undecoded bytes", offset)
	}

	sec := &xrefSection{Trailer: dict, Entries: entries, Size: size, IsStream: true}
	if v, ok := IntValue(dict.Lookup("Prev")); ok {
		sec.Prev = &v
	}
	return sec, nil
}

func beUint(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

// readStreamRawBody reads a stream's raw (still-encoded) bytes using the
// stream dictionary's own (necessarily direct) /Length entry. Xref streams
// are read before a resolver exists, so an indirect /Length here is treated
// the same as a missing one and falls back to the endstream scan.
func (fp *fileParser) readStreamRawBody(stm *Stream) ([]byte, error) {
	length, hasLength := IntValue(stm.Dict.Lookup("Length"))
	return fp.readStreamRawBodyWithLength(stm.BodyOffset, length, hasLength)
}

// readStreamRawBodyWithLength reads a stream's raw bytes given an
// already-resolved length (which may come from an indirect /Length object a
// resolver looked up on the caller's behalf). It trusts length only if
// "endstream" actually follows it, and falls back to a forward scan for the
// "endstream" keyword (endstream.go) otherwise.
func (fp *fileParser) readStreamRawBodyWithLength(bodyOffset, length int64, hasLength bool) ([]byte, error) {
	if hasLength && length >= 0 {
		if err := fp.src.seek(bodyOffset + length); err != nil {
			return nil, err
		}
		// The body's end is conventionally separated from the "endstream"
		// keyword by an EOL, so peek enough bytes to see the keyword past
		// any such whitespace.
		tail, err := fp.src.peekN(len(endstreamMarker) + 4)
		if err == nil {
			trimmed := tail
			for len(trimmed) > 0 && IsWhiteSpace(trimmed[0]) {
				trimmed = trimmed[1:]
			}
			if len(trimmed) >= 9 && string(trimmed[:9]) == "endstream" {
				buf := make([]byte, length)
				if err := fp.src.seek(bodyOffset); err != nil {
					return nil, err
				}
				if _, err := io.ReadFull(fp.src.buf, buf); err != nil {
					return nil, err
				}
				return buf, nil
			}
		}
	}
	if hasLength {
		fp.logger.Warning("stream /Length %d at offset %d not followed by endstream; scanning for terminator", length, bodyOffset)
	} else {
		fp.logger.Warning("stream at offset %d has no usable /Length; scanning for endstream terminator", bodyOffset)
	}
	n, err := findEndstream(fp.src, bodyOffset)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if err := fp.src.seek(bodyOffset); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(fp.src.buf, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// readStreamRawBodyStrict reads exactly length bytes at bodyOffset and never
// falls back to the endstream scan: an object stream's body is read using
// its /Length's value and nothing else — a missing or unresolvable /Length
// there is a parse error, not an invitation to scan.
func (fp *fileParser) readStreamRawBodyStrict(bodyOffset, length int64, hasLength bool) ([]byte, error) {
	if !hasLength || length < 0 {
		return nil, errParseAt("object stream has no usable /Length (endstream fallback is not permitted here)", bodyOffset)
	}
	if err := fp.src.seek(bodyOffset); err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(fp.src.buf, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
