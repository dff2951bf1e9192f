/*
 * This file is subject to the terms and conditions defined in
 * file 'LICENSE.md', which is part of this source code package.
 */

// Package core implements a random-access PDF object reader: the nine
// primitive object kinds (primitives.go), a byte-source/tokenizer/object
// parser pipeline (bytesrc.go, tokenizer.go, objparser.go), the file-level
// structures that sit on top of it (fileparser.go, xrefresolver.go,
// resolver.go), a small filter set (filters.go) and the endstream fallback
// reader (endstream.go) needed to decode stream bodies, and the public
// Reader type (reader.go) that ties them together. It does not understand
// page trees, fonts, content streams, annotations, or encryption.
package core
