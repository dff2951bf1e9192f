/*
 * This file is subject to the terms and conditions defined in
 * file 'LICENSE.md', which is part of this source code package.
 */

package core

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pdfcore/reader/common"
)

// xrefEntryLine formats one 20-byte-style classical xref entry. Trailing
// single space keeps reXrefEntry's line-without-EOL shape intact.
func xrefEntryLine(off int64, gen int, kind byte) string {
	return fmt.Sprintf("%010d %05d %c \n", off, gen, kind)
}

// newReaderFromString builds a Reader directly over an in-memory PDF byte
// string, the way every test below constructs its fixture.
func newReaderFromString(t *testing.T, data string) *Reader {
	t.Helper()
	rs := &sliceReadSeeker{data: []byte(data)}
	r, err := NewReader(rs)
	require.NoError(t, err, "NewReader")
	return r
}

// TestReaderMinimalPDF: a header at byte 0, one in-use object, a single
// classical xref table, and a trailer naming it as /Root.
func TestReaderMinimalPDF(t *testing.T) {
	var b bytes.Buffer
	b.WriteString("%PDF-1.7\n")
	obj1Off := int64(b.Len())
	b.WriteString("1 0 obj\n(hello)\nendobj\n")

	xrefOff := int64(b.Len())
	b.WriteString("xref\n0 2\n")
	b.WriteString(xrefEntryLine(0, 65535, 'f'))
	b.WriteString(xrefEntryLine(obj1Off, 0, 'n'))
	b.WriteString("trailer\n<< /Size 2 /Root 1 0 R >>\n")
	fmt.Fprintf(&b, "startxref\n%d\n%%%%EOF", xrefOff)

	r := newReaderFromString(t, b.String())
	if r.Version.Major != 1 || r.Version.Minor != 7 {
		t.Errorf("version = %d.%d, want 1.7", r.Version.Major, r.Version.Minor)
	}
	obj, err := r.Resolve(Ref{Num: 1, Gen: 0})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	s, ok := StringValue(obj)
	if !ok || string(s) != "hello" {
		t.Errorf("object 1 = %#v, want StringObj(\"hello\")", obj)
	}
}

// TestReaderEnvelopeHeaderOffset: the same minimal file,
// prefixed with bytes that do not belong to the PDF at all. Every offset
// written by this producer (startxref's target and the one xref entry) is
// relative to the header, exercising fp.start.
func TestReaderEnvelopeHeaderOffset(t *testing.T) {
	const junk = "this is a wrapper format's own header, not a PDF one\x00\x01\x02"

	var b bytes.Buffer
	b.WriteString(junk)
	headerOff := int64(b.Len())
	b.WriteString("%PDF-1.4\n")

	// Offsets from here on are relative to headerOff, not to byte 0.
	obj1RelOff := int64(b.Len()) - headerOff
	b.WriteString("1 0 obj\n(enveloped)\nendobj\n")

	xrefRelOff := int64(b.Len()) - headerOff
	b.WriteString("xref\n0 2\n")
	b.WriteString(xrefEntryLine(0, 65535, 'f'))
	b.WriteString(xrefEntryLine(obj1RelOff, 0, 'n'))
	b.WriteString("trailer\n<< /Size 2 /Root 1 0 R >>\n")
	fmt.Fprintf(&b, "startxref\n%d\n%%%%EOF", xrefRelOff)

	r := newReaderFromString(t, b.String())
	if r.Version.Major != 1 || r.Version.Minor != 4 {
		t.Errorf("version = %d.%d, want 1.4", r.Version.Major, r.Version.Minor)
	}
	obj, err := r.Resolve(Ref{Num: 1, Gen: 0})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	s, ok := StringValue(obj)
	if !ok || string(s) != "enveloped" {
		t.Errorf("object 1 = %#v, want StringObj(\"enveloped\")", obj)
	}
}

// packXrefStreamRecord big-endian-packs one (type, field2, field3) record at
// widths w[0], w[1], w[2] bytes respectively, the way readXrefStream expects
// to decode it.
func packXrefStreamRecord(w [3]int, typ, f2, f3 int64) []byte {
	put := func(buf []byte, width int, v int64) []byte {
		field := make([]byte, width)
		for i := width - 1; i >= 0; i-- {
			field[i] = byte(v)
			v >>= 8
		}
		return append(buf, field...)
	}
	var rec []byte
	rec = put(rec, w[0], typ)
	rec = put(rec, w[1], f2)
	rec = put(rec, w[2], f3)
	return rec
}

// TestReaderHybridXRefStmPrecedence: a hybrid file whose
// newest classical section points both to an older section (/Prev) and to a
// cross-reference stream describing the same update (/XRefStm). Object 4 is
// redefined by the stream and must resolve to the stream's value, shadowing
// the /Prev ancestor's older definition; object 6 is the xref stream object
// itself, reachable only through the newest section's own table.
func TestReaderHybridXRefStmPrecedence(t *testing.T) {
	var b bytes.Buffer
	b.WriteString("%PDF-1.5\n")

	obj4OldOff := int64(b.Len())
	b.WriteString("4 0 obj\n(OLD)\nendobj\n")

	oldTableOff := int64(b.Len())
	b.WriteString("xref\n0 7\n")
	for num := int64(0); num < 7; num++ {
		if num == 4 {
			b.WriteString(xrefEntryLine(obj4OldOff, 0, 'n'))
		} else {
			b.WriteString(xrefEntryLine(0, 65535, 'f'))
		}
	}
	b.WriteString("trailer\n<< /Size 7 >>\n")

	obj4NewOff := int64(b.Len())
	b.WriteString("4 0 obj\n(NEW)\nendobj\n")

	w := [3]int{1, 4, 2}
	rec := packXrefStreamRecord(w, 1, obj4NewOff, 0)
	xrefStmOff := int64(b.Len())
	fmt.Fprintf(&b, "6 0 obj\n<< /Type /XRef /W [1 4 2] /Index [4 1] /Size 7 /Length %d >>\nstream\n", len(rec))
	b.Write(rec)
	b.WriteString("endstream\nendobj\n")

	mainTableOff := int64(b.Len())
	b.WriteString("xref\n")
	b.WriteString("0 4\n")
	for i := 0; i < 4; i++ {
		b.WriteString(xrefEntryLine(0, 65535, 'f'))
	}
	b.WriteString("5 2\n")
	b.WriteString(xrefEntryLine(0, 65535, 'f'))
	b.WriteString(xrefEntryLine(xrefStmOff, 0, 'n'))
	fmt.Fprintf(&b, "trailer\n<< /Size 7 /XRefStm %d /Prev %d >>\n", xrefStmOff, oldTableOff)
	fmt.Fprintf(&b, "startxref\n%d\n%%%%EOF", mainTableOff)

	r := newReaderFromString(t, b.String())

	obj4, err := r.Resolve(Ref{Num: 4, Gen: 0})
	if err != nil {
		t.Fatalf("Resolve(4 0): %v", err)
	}
	if s, ok := StringValue(obj4); !ok || string(s) != "NEW" {
		t.Errorf("object 4 = %#v, want StringObj(\"NEW\") (the /XRefStm's value, not /Prev's)", obj4)
	}

	obj6, err := r.Resolve(Ref{Num: 6, Gen: 0})
	if err != nil {
		t.Fatalf("Resolve(6 0): %v", err)
	}
	stm, ok := StreamValue(obj6)
	if !ok {
		t.Fatalf("object 6 = %#v, want *Stream (the xref stream itself)", obj6)
	}
	if typ, _ := NameValue(stm.Dict.Lookup("Type")); typ != "XRef" {
		t.Errorf("object 6's /Type = %q, want XRef", typ)
	}

	assertLocatorsAgree(t, r.resolver.chain)
}

// TestReaderIncrementalChainNewestWins: three generations
// of the same object reached through a two-link /Prev chain. Opening the
// reader at the newest entrypoint must yield the newest value; opening it
// directly at an older entrypoint must yield that generation's own value,
// confirming the chain's nodes are independently addressable rather than
// collapsed into one merged view.
func TestReaderIncrementalChainNewestWins(t *testing.T) {
	var b bytes.Buffer
	b.WriteString("%PDF-1.6\n")

	obj1OldestOff := int64(b.Len())
	b.WriteString("1 0 obj\n(Test 1)\nendobj\n")

	oldestTableOff := int64(b.Len())
	b.WriteString("xref\n0 2\n")
	b.WriteString(xrefEntryLine(0, 65535, 'f'))
	b.WriteString(xrefEntryLine(obj1OldestOff, 0, 'n'))
	b.WriteString("trailer\n<< /Size 2 >>\n")

	obj1MiddleOff := int64(b.Len())
	b.WriteString("1 0 obj\n(Test 2)\nendobj\n")

	middleTableOff := int64(b.Len())
	b.WriteString("xref\n0 2\n")
	b.WriteString(xrefEntryLine(0, 65535, 'f'))
	b.WriteString(xrefEntryLine(obj1MiddleOff, 0, 'n'))
	fmt.Fprintf(&b, "trailer\n<< /Size 2 /Prev %d >>\n", oldestTableOff)

	obj1NewestOff := int64(b.Len())
	b.WriteString("1 0 obj\n(Test with diff length)\nendobj\n")

	newestTableOff := int64(b.Len())
	b.WriteString("xref\n0 2\n")
	b.WriteString(xrefEntryLine(0, 65535, 'f'))
	b.WriteString(xrefEntryLine(obj1NewestOff, 0, 'n'))
	fmt.Fprintf(&b, "trailer\n<< /Size 2 /Prev %d >>\n", middleTableOff)
	fmt.Fprintf(&b, "startxref\n%d\n%%%%EOF", newestTableOff)

	full := b.String()

	r := newReaderFromString(t, full)
	obj, err := r.Resolve(Ref{Num: 1, Gen: 0})
	require.NoError(t, err, "Resolve")
	if s, ok := StringValue(obj); !ok || string(s) != "Test with diff length" {
		t.Errorf("newest entrypoint resolved %#v, want the newest generation", obj)
	}
	assertLocatorsAgree(t, r.resolver.chain)

	// Re-parse the same bytes but from the middle entrypoint directly
	// (as if that were this file's only startxref), confirming that
	// generation's own value is reachable independently of the newest one.
	fp, err := newFileParser(&sliceReadSeeker{data: []byte(full)}, nil)
	require.NoError(t, err, "newFileParser")
	_, _, err = fp.locateHeader()
	require.NoError(t, err, "locateHeader")
	chain, _, err := buildXrefChain(fp, middleTableOff, common.DummyLogger{})
	require.NoError(t, err, "buildXrefChain")
	res := newResolver(fp, chain, nil)
	obj, err = res.Resolve(Ref{Num: 1, Gen: 0})
	require.NoError(t, err, "Resolve via middle entrypoint")
	if s, ok := StringValue(obj); !ok || string(s) != "Test 2" {
		t.Errorf("middle entrypoint resolved %#v, want \"Test 2\"", obj)
	}
}

// TestBuildXrefChainBreaksOnPrevCycle covers the cyclic-/Prev edge case: a
// section whose /Prev points back to itself must not loop forever: the walk
// stops the moment an offset repeats.
func TestBuildXrefChainBreaksOnPrevCycle(t *testing.T) {
	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	tableOff := int64(b.Len())
	b.WriteString("xref\n0 1\n")
	b.WriteString(xrefEntryLine(0, 65535, 'f'))
	fmt.Fprintf(&b, "trailer\n<< /Size 1 /Prev %d >>\n", tableOff)

	fp, err := newFileParser(&sliceReadSeeker{data: []byte(b.String())}, nil)
	require.NoError(t, err, "newFileParser")
	_, _, err = fp.locateHeader()
	require.NoError(t, err, "locateHeader")

	chain, _, err := buildXrefChain(fp, tableOff, common.DummyLogger{})
	require.NoError(t, err, "buildXrefChain")
	if chain.next != nil {
		t.Errorf("chain has a second node, want the self-/Prev cycle to stop at one")
	}
}

// assertLocatorsAgree checks that walking the chain per lookup and looking
// up in the flattened merged map produce identical records for every object
// number the chain assigns a non-default entry to.
func assertLocatorsAgree(t *testing.T, chain *xrefLink) {
	t.Helper()
	merged := mergeChain(chain)
	for num, want := range merged {
		got, ok := chain.locate(Ref{Num: num, Gen: want.Gen})
		if !ok {
			t.Errorf("object %d: chain locator found nothing, merged locator has %v", num, want)
			continue
		}
		if got != want {
			t.Errorf("object %d: chain locator = %v, merged locator = %v, want agreement", num, got, want)
		}
	}
}

// deflateRaw is filters_test.go's deflate helper renamed to avoid colliding
// with it in the same package; used here to build an object stream's
// compressed body.
func deflateRaw(t *testing.T, raw []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		t.Fatalf("deflate write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("deflate close: %v", err)
	}
	return buf.Bytes()
}

// TestReaderObjectStreamCaching: two objects packed into
// one /ObjStm container, located via a cross-reference stream's type-2
// records (compressed-object locations cannot be expressed by a classical
// table at all). Resolving both members must decode the container only
// once, confirming the resolver's offset-keyed objstmCache.
func TestReaderObjectStreamCaching(t *testing.T) {
	member0 := "(first)"
	member1 := "(second)"
	header := fmt.Sprintf("10 0 11 %d", len(member0))
	for len(header) < 16 {
		header += " "
	}
	body := header + member0 + member1
	compressed := deflateRaw(t, []byte(body))

	var b bytes.Buffer
	b.WriteString("%PDF-1.5\n")

	objstmOff := int64(b.Len())
	fmt.Fprintf(&b, "3 0 obj\n<< /Type /ObjStm /N 2 /First %d /Filter /FlateDecode /Length %d >>\nstream\n",
		len(header), len(compressed))
	b.Write(compressed)
	b.WriteString("endstream\nendobj\n")

	w := [3]int{1, 4, 2}
	var recs []byte
	recs = append(recs, packXrefStreamRecord(w, 1, objstmOff, 0)...) // obj 3: the ObjStm itself
	recs = append(recs, packXrefStreamRecord(w, 2, 3, 0)...)        // obj 10: compressed, container 3 idx 0
	recs = append(recs, packXrefStreamRecord(w, 2, 3, 1)...)        // obj 11: compressed, container 3 idx 1

	xrefStmOff := int64(b.Len())
	fmt.Fprintf(&b, "12 0 obj\n<< /Type /XRef /W [1 4 2] /Index [3 1 10 2] /Size 13 /Length %d >>\nstream\n", len(recs))
	b.Write(recs)
	b.WriteString("endstream\nendobj\n")
	fmt.Fprintf(&b, "startxref\n%d\n%%%%EOF", xrefStmOff)

	r := newReaderFromString(t, b.String())

	obj10, err := r.Resolve(Ref{Num: 10, Gen: 0})
	if err != nil {
		t.Fatalf("Resolve(10 0): %v", err)
	}
	if s, ok := StringValue(obj10); !ok || string(s) != "first" {
		t.Errorf("object 10 = %#v, want StringObj(\"first\")", obj10)
	}

	obj11, err := r.Resolve(Ref{Num: 11, Gen: 0})
	if err != nil {
		t.Fatalf("Resolve(11 0): %v", err)
	}
	if s, ok := StringValue(obj11); !ok || string(s) != "second" {
		t.Errorf("object 11 = %#v, want StringObj(\"second\")", obj11)
	}

	if got := len(r.resolver.objstmCache); got != 1 {
		t.Errorf("objstmCache has %d entries after resolving two members of the same container, want 1", got)
	}
}

// TestReaderHeaderNotFoundIsNonFatal: a missing "%PDF-M.N"
// header does not fail construction; it defaults the header offset to 0
// (so startxref and xref offsets are interpreted as absolute) and is only
// logged as a warning.
func TestReaderHeaderNotFoundIsNonFatal(t *testing.T) {
	var b bytes.Buffer
	b.WriteString("not actually a pdf at all\n")
	obj1Off := int64(b.Len())
	b.WriteString("1 0 obj\n(hello)\nendobj\n")

	xrefOff := int64(b.Len())
	b.WriteString("xref\n0 2\n")
	b.WriteString(xrefEntryLine(0, 65535, 'f'))
	b.WriteString(xrefEntryLine(obj1Off, 0, 'n'))
	b.WriteString("trailer\n<< /Size 2 /Root 1 0 R >>\n")
	fmt.Fprintf(&b, "startxref\n%d\n%%%%EOF", xrefOff)

	rs := &sliceReadSeeker{data: b.Bytes()}
	r, err := NewReader(rs, WithFormatSniffing(false))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if r.Version.Major != 0 || r.Version.Minor != 0 {
		t.Errorf("version = %d.%d, want 0.0 (no header found)", r.Version.Major, r.Version.Minor)
	}
	obj, err := r.Resolve(Ref{Num: 1, Gen: 0})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s, ok := StringValue(obj); !ok || string(s) != "hello" {
		t.Errorf("object 1 = %#v, want StringObj(\"hello\")", obj)
	}
}

// TestReaderObjectsRoundTrips: every
// Ref returned by Objects() must resolve successfully, and must match what
// directly resolving that same (num, gen) pair produces. The fixture's
// object 1 carries a nonzero generation from an incremental update, so the
// test would catch Objects() reporting bare object numbers (generation
// always 0) instead of the true generation recorded in the newest section.
func TestReaderObjectsRoundTrips(t *testing.T) {
	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")

	obj1Off := int64(b.Len())
	b.WriteString("1 1 obj\n(gen one)\nendobj\n")
	obj2Off := int64(b.Len())
	b.WriteString("2 0 obj\n(gen zero)\nendobj\n")

	xrefOff := int64(b.Len())
	b.WriteString("xref\n0 3\n")
	b.WriteString(xrefEntryLine(0, 65535, 'f'))
	b.WriteString(xrefEntryLine(obj1Off, 1, 'n'))
	b.WriteString(xrefEntryLine(obj2Off, 0, 'n'))
	b.WriteString("trailer\n<< /Size 3 /Root 2 0 R >>\n")
	fmt.Fprintf(&b, "startxref\n%d\n%%%%EOF", xrefOff)

	r := newReaderFromString(t, b.String())

	refs := r.Objects()
	if len(refs) != 2 {
		t.Fatalf("Objects() = %v, want 2 entries", refs)
	}
	if refs[0].Num != 1 || refs[0].Gen != 1 {
		t.Errorf("Objects()[0] = %v, want Ref{Num: 1, Gen: 1}", refs[0])
	}
	if refs[1].Num != 2 || refs[1].Gen != 0 {
		t.Errorf("Objects()[1] = %v, want Ref{Num: 2, Gen: 0}", refs[1])
	}

	for _, ref := range refs {
		viaObjects, err := r.Resolve(ref)
		if err != nil {
			t.Fatalf("Resolve(%v) via Objects(): %v", ref, err)
		}
		viaDirect, err := r.Resolve(Ref{Num: ref.Num, Gen: ref.Gen})
		if err != nil {
			t.Fatalf("Resolve(%v) direct: %v", ref, err)
		}
		sv, ok := StringValue(viaObjects)
		if !ok {
			t.Fatalf("Resolve(%v) = %#v, want a string", ref, viaObjects)
		}
		sd, _ := StringValue(viaDirect)
		if string(sv) != string(sd) {
			t.Errorf("Resolve(%v): Objects()-derived ref and direct ref disagree: %q vs %q", ref, sv, sd)
		}
	}

	// The stale generation 0 for object 1 must not resolve to the same
	// value: it's a different (and here, nonexistent) record.
	stale, err := r.Resolve(Ref{Num: 1, Gen: 0})
	if err != nil {
		t.Fatalf("Resolve(1 0): %v", err)
	}
	if _, ok := StringValue(stale); ok {
		t.Errorf("Resolve(1 0) = %#v, want Null (generation 0 was never defined for object 1)", stale)
	}
}

// TestClassicalXrefDuplicateEntryKeepsFirst: on a
// collision within one classical xref table's entries, the first occurrence
// wins (and a warning is logged, not verified here).
func TestClassicalXrefDuplicateEntryKeepsFirst(t *testing.T) {
	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	firstOff := int64(b.Len())
	b.WriteString("1 0 obj\n(first)\nendobj\n")
	secondOff := int64(b.Len())
	b.WriteString("1 0 obj\n(second)\nendobj\n")

	xrefOff := int64(b.Len())
	b.WriteString("xref\n")
	b.WriteString("0 1\n")
	b.WriteString(xrefEntryLine(0, 65535, 'f'))
	// Two subsections both claiming object 1: the first one written must
	// win, matching the "first occurrence" collision rule.
	b.WriteString("1 1\n")
	b.WriteString(xrefEntryLine(firstOff, 0, 'n'))
	b.WriteString("1 1\n")
	b.WriteString(xrefEntryLine(secondOff, 0, 'n'))
	b.WriteString("trailer\n<< /Size 2 /Root 1 0 R >>\n")
	fmt.Fprintf(&b, "startxref\n%d\n%%%%EOF", xrefOff)

	r := newReaderFromString(t, b.String())
	obj, err := r.Resolve(Ref{Num: 1, Gen: 0})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s, ok := StringValue(obj); !ok || string(s) != "first" {
		t.Errorf("object 1 = %#v, want StringObj(\"first\") (first occurrence wins)", obj)
	}
}
