/*
 * This file is subject to the terms and conditions defined in
 * file 'LICENSE.md', which is part of this source code package.
 */

package core

// Token is one lexical token: either a delimiter token (a single delimiter
// byte, or the two-byte pairs "<<"/">>") or a maximal run of regular bytes.
type Token []byte

// tokenizer splits a byteSource into tokens per PDF's three-class lexical
// rules (space / delimiter / regular), skipping whitespace and `%` comments.
type tokenizer struct {
	src *byteSource

	// pushback holds tokens returned to the stream by the object parser's
	// reference lookahead: reading "N G R" ahead to tell a
	// number from an indirect reference sometimes over-reads by up to two
	// tokens, which must reappear as the next tokens read — even across
	// separate top-level readObject calls on the same tokenizer (e.g. a
	// sequence of sibling objects read back to back), not only within the
	// single readObject call that did the over-reading. Kept on the
	// tokenizer itself rather than on objParser for exactly that reason.
	pushback []Token
}

func newTokenizer(src *byteSource) *tokenizer {
	return &tokenizer{src: src}
}

// pushToken returns tk to the stream; the next readToken/readTokenNonEmpty
// call returns it before reading anything new.
func (t *tokenizer) pushToken(tk Token) {
	t.pushback = append(t.pushback, tk)
}

// skipWhitespace consumes space bytes and `%...` comments (through end of
// line) until a non-space, non-comment byte is next (or EOF).
func (t *tokenizer) skipWhitespace() error {
	for {
		c, err := t.src.peek()
		if err != nil {
			if err == errUnexpectedEOF {
				return nil
			}
			return err
		}
		switch {
		case IsWhiteSpace(c):
			t.src.discard(1)
		case c == '%':
			if err := t.src.skipPastEOL(); err != nil {
				if err == errUnexpectedEOF {
					return nil
				}
				return err
			}
		default:
			return nil
		}
	}
}

// readEOL consumes exactly one \r, \n, or \r\n terminator. It is an error if
// neither is present.
func (t *tokenizer) readEOL() error {
	c, err := t.src.nextOrEOF()
	if err != nil {
		return err
	}
	switch c {
	case '\n':
		return nil
	case '\r':
		if _, _, err := t.src.nextIf(func(c byte) bool { return c == '\n' }); err != nil {
			return err
		}
		return nil
	default:
		return &ParseError{Msg: "expected end of line"}
	}
}

// readToken skips leading whitespace/comments, then returns the next token:
// a delimiter byte (with "<<"/">>" recognised as a single two-byte token
// when the pair is present), or a maximal run of regular bytes.
func (t *tokenizer) readToken() (Token, error) {
	if n := len(t.pushback); n > 0 {
		tk := t.pushback[n-1]
		t.pushback = t.pushback[:n-1]
		return tk, nil
	}
	if err := t.skipWhitespace(); err != nil {
		return nil, err
	}
	c, err := t.src.nextOrEOF()
	if err != nil {
		return nil, err
	}
	if IsDelimiter(c) {
		if c == '<' || c == '>' {
			if _, ok, err := t.src.nextIf(func(b byte) bool { return b == c }); err != nil {
				return nil, err
			} else if ok {
				return Token{c, c}, nil
			}
		}
		return Token{c}, nil
	}
	tok := []byte{c}
	for {
		c, err := t.src.peek()
		if err != nil {
			if err == errUnexpectedEOF {
				break
			}
			return nil, err
		}
		if IsWhiteSpace(c) || IsDelimiter(c) {
			break
		}
		t.src.discard(1)
		tok = append(tok, c)
	}
	return tok, nil
}

// readTokenNonEmpty is readToken but fails instead of ever returning an
// empty token; used at every structural boundary (object headers, "obj",
// "endobj", "stream", xref markers) where an empty token can only mean EOF
// arrived mid-structure.
func (t *tokenizer) readTokenNonEmpty() (Token, error) {
	tok, err := t.readToken()
	if err != nil {
		return nil, err
	}
	if len(tok) == 0 {
		return nil, errUnexpectedEOF
	}
	return tok, nil
}
