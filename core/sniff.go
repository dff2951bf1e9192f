/*
 * This file is subject to the terms and conditions defined in
 * file 'LICENSE.md', which is part of this source code package.
 */

package core

import (
	"io"

	"github.com/h2non/filetype"
)

// sniffIsPDF reports whether the first bytes available from rs look like a
// PDF container, using magic-byte detection rather than this package's own
// "%PDF-" header search — a quick, independent check that NewReader runs
// before the slower header/startxref location machinery. NewReader only logs
// a negative result at debug level and goes on; it does not reject the input.
// It restores rs's position afterward.
func sniffIsPDF(rs io.ReadSeeker) (bool, error) {
	cur, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return false, err
	}
	defer rs.Seek(cur, io.SeekStart)

	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return false, err
	}
	head := make([]byte, 261) // filetype.Match inspects at most this many bytes.
	n, err := io.ReadFull(rs, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false, err
	}
	head = head[:n]

	kind, err := filetype.Match(head)
	if err != nil {
		return false, err
	}
	if kind != filetype.Unknown {
		return kind.MIME.Value == "application/pdf", nil
	}
	// filetype has no PDF matcher bundled by default in some builds; fall
	// back to the literal signature it would otherwise have checked.
	return len(head) >= 5 && string(head[:5]) == "%PDF-", nil
}
