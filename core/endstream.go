/*
 * This file is subject to the terms and conditions defined in
 * file 'LICENSE.md', which is part of this source code package.
 */

package core

import "bytes"

// endstreamMarker is the literal token a stream body search scans for when
// a stream's /Length is missing, non-numeric, or does not land on a valid
// "endstream" keyword.
var endstreamMarker = []byte("endstream")

// findEndstream scans forward from the current byteSource position, one
// line at a time, for the literal bytes "endstream". It returns the number
// of body bytes preceding the marker and leaves the source positioned
// immediately after the consumed line containing the marker.
//
// A line not containing the marker is emitted as body content in full,
// trailing EOL included; the marker itself contains no EOL bytes, so a
// line-at-a-time search cannot miss an occurrence spanning a buffer
// boundary. fileparser.go's readStreamRawBodyWithLength tries the declared
// /Length first and only falls back to this scan when that length isn't
// actually followed by "endstream".
func findEndstream(src *byteSource, bodyStart int64) (int64, error) {
	if err := src.seek(bodyStart); err != nil {
		return 0, err
	}
	var scanned int64
	for {
		line, err := src.readLineIncl()
		if err != nil {
			return 0, err
		}
		if idx := bytes.Index(line, endstreamMarker); idx >= 0 {
			// Every byte up to the marker is body content — including the
			// EOL of a preceding line when the marker opens its own line.
			// (The bytes of a line before an in-line marker can never
			// themselves contain an EOL, so nothing is ever trimmed.)
			return scanned + int64(idx), nil
		}
		scanned += int64(len(line))
	}
}
