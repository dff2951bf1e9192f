/*
 * This file is subject to the terms and conditions defined in
 * file 'LICENSE.md', which is part of this source code package.
 */

package core

import "strconv"

// objParser reads one Object from a tokenizer, including the two-token
// lookahead needed to tell an Int from the number component of an indirect
// reference. Lookahead tokens that turn out not to form a reference are
// returned to the tokenizer's own pushback queue (tokenizer.pushToken) so
// they reappear as the next tokens read — including across separate
// top-level readObject calls on the same tokenizer, not just within the
// call that over-read them.
type objParser struct {
	tok *tokenizer
}

func newObjParser(tok *tokenizer) *objParser {
	return &objParser{tok: tok}
}

func (p *objParser) push(tk Token) {
	p.tok.pushToken(tk)
}

func (p *objParser) nextToken() (Token, error) {
	return p.tok.readTokenNonEmpty()
}

func isLeadingNumberByte(c byte) bool {
	return (c >= '0' && c <= '9') || c == '+' || c == '-' || c == '.'
}

// readObject reads a single object from the tokenizer. This is the entry
// point the file parser and the object resolver call for a whole object.
func readObject(tok *tokenizer) (Object, error) {
	tk, err := tok.readTokenNonEmpty()
	if err != nil {
		return nil, err
	}
	p := newObjParser(tok)
	p.push(tk)
	return p.readObjectInner()
}

func (p *objParser) readObjectInner() (Object, error) {
	tk, err := p.nextToken()
	if err != nil {
		return nil, err
	}
	switch string(tk) {
	case "true":
		return Bool(true), nil
	case "false":
		return Bool(false), nil
	case "null":
		return Null{}, nil
	case "(":
		return p.readLitString()
	case "<":
		return p.readHexString()
	case "/":
		name, err := p.readName()
		if err != nil {
			return nil, err
		}
		return name, nil
	case "[":
		return p.readArray()
	case "<<":
		return p.readDict()
	}
	if len(tk) > 0 && ((tk[0] >= '1' && tk[0] <= '9') || (len(tk) == 1 && tk[0] == '0')) {
		p.push(tk)
		return p.readNumberOrIndirect()
	}
	if len(tk) > 0 && isLeadingNumberByte(tk[0]) {
		return parseNumberToken(tk)
	}
	return nil, errParse("unexpected token")
}

// readNumberOrIndirect implements the reference lookahead: a non-negative
// integer followed by another non-negative integer and the literal "R"
// becomes a Ref; otherwise the lookahead tokens are pushed back so the
// caller sees only the number.
func (p *objParser) readNumberOrIndirect() (Object, error) {
	numTok, err := p.nextToken()
	if err != nil {
		return nil, err
	}
	numObj, err := parseNumberToken(numTok)
	if err != nil {
		return nil, err
	}
	numInt, isInt := numObj.(Int)
	if !isInt {
		return numObj, nil
	}

	// EOF during the lookahead is not an error: the input simply ends with
	// a number (an object stream member's slice routinely does).
	genTok, err := p.nextToken()
	if err != nil {
		if err == errUnexpectedEOF {
			return numInt, nil
		}
		return nil, err
	}
	gen, ok := parseStrictUint(genTok)
	if !ok {
		p.push(genTok)
		return numInt, nil
	}

	rTok, err := p.nextToken()
	if err != nil {
		if err == errUnexpectedEOF {
			p.push(genTok)
			return numInt, nil
		}
		return nil, err
	}
	if string(rTok) == "R" {
		if gen > 0xFFFF {
			return nil, errParse("generation number exceeds 16 bits")
		}
		return Ref{Num: uint64(numInt), Gen: uint16(gen)}, nil
	}
	p.push(rTok)
	p.push(genTok)
	return numInt, nil
}

// parseStrictUint accepts only "0" or a token starting with 1-9 followed by
// decimal digits: "01" and "+1" are rejected even though they would parse
// as plain numbers, since object and generation numbers never carry a sign
// or a leading zero.
func parseStrictUint(tk Token) (uint64, bool) {
	if len(tk) == 0 {
		return 0, false
	}
	if tk[0] == '0' {
		if len(tk) != 1 {
			return 0, false
		}
		return 0, true
	}
	if tk[0] < '1' || tk[0] > '9' {
		return 0, false
	}
	for _, c := range tk[1:] {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	v, err := strconv.ParseUint(string(tk), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseNumberToken converts one already-read token to Int or Real. Tokens
// containing 'e'/'E' are rejected outright: exponential notation is not
// part of the PDF number grammar.
func parseNumberToken(tk Token) (Object, error) {
	for _, c := range tk {
		if c == 'e' || c == 'E' {
			return nil, errParse("malformed number")
		}
	}
	hasDot := false
	for _, c := range tk {
		if c == '.' {
			hasDot = true
			break
		}
	}
	if hasDot {
		f, err := strconv.ParseFloat(string(tk), 64)
		if err != nil {
			return nil, errParse("malformed number")
		}
		return Real(f), nil
	}
	i, err := strconv.ParseInt(string(tk), 10, 64)
	if err != nil {
		return nil, errParse("malformed number")
	}
	return Int(i), nil
}

// readLitString reads a literal string body up to (but not including) the
// balancing ')': backslash escapes n/r/t/b/f/(/)/\\, 1-3 digit octal
// escapes truncated to 8 bits (\500 is the single byte '@'), and bare
// \r / \r\n / \n all normalised to \n.
func (p *objParser) readLitString() (Object, error) {
	var out []byte
	parens := 0
	for {
		c, err := p.tok.src.nextOrEOF()
		if err != nil {
			return nil, err
		}
		switch c {
		case '\\':
			esc, err := p.tok.src.nextOrEOF()
			if err != nil {
				return nil, err
			}
			switch esc {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '(', ')', '\\':
				out = append(out, esc)
			case '\r':
				// backslash-EOL line continuation; optional following \n.
				p.tok.src.nextIf(func(c byte) bool { return c == '\n' })
			case '\n':
				// line continuation, nothing emitted.
			default:
				if esc >= '0' && esc <= '7' {
					d1 := esc - '0'
					v := int(d1)
					if d2, ok, err := p.tok.src.nextIf(IsOctalDigit); err != nil {
						return nil, err
					} else if ok {
						v = v<<3 + int(d2-'0')
						if d3, ok, err := p.tok.src.nextIf(IsOctalDigit); err != nil {
							return nil, err
						} else if ok {
							v = v<<3 + int(d3-'0')
						}
					}
					out = append(out, byte(v))
				}
				// any other escaped character is silently dropped.
			}
		case '\r':
			p.tok.src.nextIf(func(c byte) bool { return c == '\n' })
			out = append(out, '\n')
		case '(':
			parens++
			out = append(out, c)
		case ')':
			if parens == 0 {
				return StringObj(out), nil
			}
			parens--
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
}

// readHexString reads hex digits (possibly split across whitespace/comment-
// separated tokens) up to a terminating ">" or the end of input; an odd
// trailing digit is padded with 0.
func (p *objParser) readHexString() (Object, error) {
	var out []byte
	var msd *byte
	for {
		tk, err := p.nextToken()
		if err == errUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if string(tk) == ">" {
			break
		}
		for _, c := range tk {
			d, ok := hexValue(c)
			if !ok {
				return nil, errParse("malformed hex string")
			}
			if msd == nil {
				msd = &d
			} else {
				out = append(out, (*msd<<4)|d)
				msd = nil
			}
		}
	}
	if msd != nil {
		out = append(out, *msd<<4)
	}
	return StringObj(out), nil
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// readName reads a name's raw token (empty name is legal if the next byte
// isn't a "regular" byte), then applies #hh decoding; #00 is rejected.
func (p *objParser) readName() (Name, error) {
	c, err := p.tok.src.peek()
	if err != nil {
		if err == errUnexpectedEOF {
			return Name(""), nil
		}
		return "", err
	}
	if IsWhiteSpace(c) || IsDelimiter(c) {
		return Name(""), nil
	}
	tk, err := p.nextToken()
	if err != nil {
		return "", err
	}
	hasHash := false
	for _, c := range tk {
		if c == '#' {
			hasHash = true
			break
		}
	}
	if !hasHash {
		return Name(tk), nil
	}

	var out []byte
	i := 0
	for i < len(tk) {
		if tk[i] != '#' {
			out = append(out, tk[i])
			i++
			continue
		}
		if i+2 >= len(tk) {
			return "", errParse("malformed name")
		}
		h1, h2 := tk[i+1], tk[i+2]
		if h1 == '0' && h2 == '0' {
			return "", errParse("illegal name (contains #00)")
		}
		d1, ok1 := hexValue(h1)
		d2, ok2 := hexValue(h2)
		if !ok1 || !ok2 {
			return "", errParse("malformed name")
		}
		out = append(out, (d1<<4)+d2)
		i += 3
	}
	return Name(out), nil
}

func (p *objParser) readArray() (Object, error) {
	var arr Array
	for {
		tk, err := p.nextToken()
		if err != nil {
			return nil, err
		}
		if string(tk) == "]" {
			break
		}
		p.push(tk)
		obj, err := p.readObjectInner()
		if err != nil {
			return nil, err
		}
		arr = append(arr, obj)
	}
	if arr == nil {
		arr = Array{}
	}
	return arr, nil
}

func (p *objParser) readDict() (Object, error) {
	dict := NewDict()
	for {
		tk, err := p.nextToken()
		if err != nil {
			return nil, err
		}
		switch string(tk) {
		case ">>":
			return dict, nil
		case "/":
			key, err := p.readName()
			if err != nil {
				return nil, err
			}
			val, err := p.readObjectInner()
			if err != nil {
				return nil, err
			}
			dict.setFirstOccurrence(key, val)
		default:
			return nil, errParse("malformed dictionary")
		}
	}
}
