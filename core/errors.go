/*
 * This file is subject to the terms and conditions defined in
 * file 'LICENSE.md', which is part of this source code package.
 */

package core

import "fmt"

// ParseError is a syntax or structural error: a malformed token, an
// out-of-range field, a reference that does not resolve to the object it
// named. It carries a short static message plus optional context useful for
// diagnosing which object or offset was involved.
//
// Go errors are immutable values, so an error memoized by the object-stream
// cache is simply stored and handed back verbatim on later lookups.
type ParseError struct {
	Msg    string
	Ref    *Ref
	Offset *int64
}

func (e *ParseError) Error() string {
	switch {
	case e.Ref != nil:
		return fmt.Sprintf("parse error: %s (object %d %d)", e.Msg, e.Ref.Num, e.Ref.Gen)
	case e.Offset != nil:
		return fmt.Sprintf("parse error: %s (at offset %d)", e.Msg, *e.Offset)
	default:
		return fmt.Sprintf("parse error: %s", e.Msg)
	}
}

func errParse(msg string) error {
	return &ParseError{Msg: msg}
}

func errParseAt(msg string, offset int64) error {
	return &ParseError{Msg: msg, Offset: &offset}
}

func errParseRef(msg string, ref Ref) error {
	return &ParseError{Msg: msg, Ref: &ref}
}

// errMismatch is returned when a resolved object's (num, gen) does not match
// the reference used to reach it: the object at a located offset must parse
// to an indirect object carrying exactly the requested number and
// generation, or resolution fails rather than returning a stranger.
var errMismatch = errParse("object number/generation mismatch")
