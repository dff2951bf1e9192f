/*
 * This file is subject to the terms and conditions defined in
 * file 'LICENSE.md', which is part of this source code package.
 */

package core

import (
	"golang.org/x/text/encoding/unicode"
)

// bomUTF16BE is the byte-order mark ISO 32000 §7.9.2.2 requires at the
// start of a PDF text string encoded as UTF-16BE.
var bomUTF16BE = []byte{0xFE, 0xFF}

// TextString decodes obj as a PDF "text string": a String object that is
// either UTF-16BE (marked by a leading \xFE\xFF byte-order mark) or
// PDFDocEncoding, which for the printable ASCII range this reader supports
// is byte-identical to Latin-1. It reports false if obj is not a String.
func TextString(obj Object) (string, bool) {
	raw, ok := StringValue(obj)
	if !ok {
		return "", false
	}
	if len(raw) >= 2 && raw[0] == bomUTF16BE[0] && raw[1] == bomUTF16BE[1] {
		dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		out, err := dec.Bytes(raw)
		if err != nil {
			return "", false
		}
		return string(out), true
	}
	// PDFDocEncoding's printable range coincides with Latin-1; codepoints
	// above it are rare in practice and left as their raw byte value rather
	// than consulting the full PDFDocEncoding table (out of scope here).
	runes := make([]rune, len(raw))
	for i, b := range raw {
		runes[i] = rune(b)
	}
	return string(runes), true
}
