/*
 * This file is subject to the terms and conditions defined in
 * file 'LICENSE.md', which is part of this source code package.
 */

package core

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
)

// DecodeStream returns the fully decoded body of a stream, walking its
// /Filter chain (a single name, or an array of names applied in order, each
// with its own /DecodeParms entry). Only FlateDecode, ASCIIHexDecode and
// ASCII85Decode are implemented; any other filter name fails with an error
// naming it rather than silently passing the data through.
func DecodeStream(raw []byte, dict *Dict) ([]byte, error) {
	names, paramsList, err := filterChain(dict)
	if err != nil {
		return nil, err
	}
	data := raw
	for i, name := range names {
		var params *Dict
		if i < len(paramsList) {
			params = paramsList[i]
		}
		decoded, err := decodeOne(name, data, params)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", name, err)
		}
		data = decoded
	}
	return data, nil
}

// filterChain normalises a stream dictionary's /Filter (+ /DecodeParms) into
// parallel slices, whether the dictionary used a bare Name or an Array.
func filterChain(dict *Dict) ([]string, []*Dict, error) {
	filterObj := dict.Lookup("Filter")
	if IsNull(filterObj) {
		return nil, nil, nil
	}
	paramsObj := dict.Lookup("DecodeParms")

	if name, ok := NameValue(filterObj); ok {
		var params *Dict
		if p, ok := DictValue(paramsObj); ok {
			params = p
		}
		return []string{name}, []*Dict{params}, nil
	}

	arr, ok := ArrayValue(filterObj)
	if !ok {
		return nil, nil, errParse("Filter is not a Name or Array")
	}
	names := make([]string, len(arr))
	for i, o := range arr {
		n, ok := NameValue(o)
		if !ok {
			return nil, nil, errParse("Filter array member is not a Name")
		}
		names[i] = n
	}
	var params []*Dict
	if parr, ok := ArrayValue(paramsObj); ok {
		if len(parr) != len(names) {
			return nil, nil, errParse("DecodeParms array length does not match Filter array")
		}
		params = make([]*Dict, len(parr))
		for i, o := range parr {
			if p, ok := DictValue(o); ok {
				params[i] = p
			}
		}
	} else if p, ok := DictValue(paramsObj); ok {
		if len(names) != 1 {
			return nil, nil, errParse("single DecodeParms dictionary for a multi-filter chain")
		}
		params = []*Dict{p}
	}
	return names, params, nil
}

func decodeOne(name string, data []byte, params *Dict) ([]byte, error) {
	switch name {
	case "FlateDecode", "Fl":
		return decodeFlate(data, params)
	case "ASCIIHexDecode", "AHx":
		return decodeASCIIHex(data)
	case "ASCII85Decode", "A85":
		return decodeASCII85(data)
	default:
		return nil, fmt.Errorf("unsupported filter %q", name)
	}
}

// decodeFlate zlib-inflates data, then reverses any PNG predictor named in
// params. The TIFF predictor (2) is not supported.
func decodeFlate(data []byte, params *Dict) ([]byte, error) {
	if len(data) == 0 {
		return []byte{}, nil
	}
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	predictor := 1
	colors := 1
	bpc := 8
	columns := 1
	if params != nil {
		if v, ok := IntValue(params.Lookup("Predictor")); ok {
			predictor = int(v)
		}
		if v, ok := IntValue(params.Lookup("Colors")); ok {
			colors = int(v)
		}
		if v, ok := IntValue(params.Lookup("BitsPerComponent")); ok {
			bpc = int(v)
		}
		if v, ok := IntValue(params.Lookup("Columns")); ok {
			columns = int(v)
		}
	}
	if predictor <= 1 {
		return out, nil
	}
	if bpc != 8 {
		return nil, fmt.Errorf("predictor with BitsPerComponent=%d unsupported", bpc)
	}
	if predictor < 10 || predictor > 15 {
		return nil, fmt.Errorf("unsupported predictor (%d)", predictor)
	}
	return reversePNGPredictor(out, columns, colors)
}

func reversePNGPredictor(data []byte, columns, colors int) ([]byte, error) {
	rowLength := columns*colors + 1
	if rowLength <= 1 {
		return []byte{}, nil
	}
	if len(data)%rowLength != 0 {
		return nil, fmt.Errorf("invalid row length (%d/%d)", len(data), rowLength)
	}
	rows := len(data) / rowLength
	var out bytes.Buffer
	prev := make([]byte, rowLength)
	bytesPerPixel := colors

	for i := 0; i < rows; i++ {
		row := data[rowLength*i : rowLength*(i+1)]
		filterType := row[0]
		switch filterType {
		case 0: // none
		case 1: // sub
			for j := 1 + bytesPerPixel; j < rowLength; j++ {
				row[j] += row[j-bytesPerPixel]
			}
		case 2: // up
			for j := 1; j < rowLength; j++ {
				row[j] += prev[j]
			}
		case 3: // average
			for j := 1; j < bytesPerPixel+1; j++ {
				row[j] += prev[j] / 2
			}
			for j := bytesPerPixel + 1; j < rowLength; j++ {
				row[j] += byte((int(row[j-bytesPerPixel]) + int(prev[j])) / 2)
			}
		case 4: // paeth
			for j := 1; j < rowLength; j++ {
				var a, b, c byte
				b = prev[j]
				if j >= bytesPerPixel+1 {
					a = row[j-bytesPerPixel]
					c = prev[j-bytesPerPixel]
				}
				row[j] += paeth(a, b, c)
			}
		default:
			return nil, fmt.Errorf("invalid PNG predictor filter byte (%d)", filterType)
		}
		copy(prev, row)
		out.Write(row[1:])
	}
	return out.Bytes(), nil
}

// decodeASCIIHex implements the ASCIIHexDecode filter: pairs of hex digits
// terminated by '>', whitespace ignored, an odd trailing digit padded with a
// low nibble of 0.
func decodeASCIIHex(data []byte) ([]byte, error) {
	var digits []byte
	for _, c := range data {
		if c == '>' {
			break
		}
		if IsWhiteSpace(c) {
			continue
		}
		if _, ok := hexValue(c); !ok {
			return nil, fmt.Errorf("invalid ascii hex character (%c)", c)
		}
		digits = append(digits, c)
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, len(digits)/2)
	for i := range out {
		hi, _ := hexValue(digits[2*i])
		lo, _ := hexValue(digits[2*i+1])
		out[i] = hi<<4 | lo
	}
	return out, nil
}

// decodeASCII85 implements the ASCII85Decode filter: groups of 5 bytes in
// [!..u] decode to 4 raw bytes (base-85, big-endian); 'z' alone decodes to
// four zero bytes; the stream ends at "~>".
func decodeASCII85(data []byte) ([]byte, error) {
	var out []byte
	i := 0
	for i < len(data) {
		var group [5]byte
		n := 0
		sawZ := false
		eod := false
		for n < 5 && i < len(data) {
			c := data[i]
			if IsWhiteSpace(c) {
				i++
				continue
			}
			if c == '~' {
				i++
				if i < len(data) && data[i] == '>' {
					i++
				}
				eod = true
				break
			}
			if c == 'z' && n == 0 {
				sawZ = true
				i++
				break
			}
			if c < '!' || c > 'u' {
				return nil, fmt.Errorf("invalid ascii85 character (%c)", c)
			}
			group[n] = c - '!'
			n++
			i++
		}
		if sawZ {
			out = append(out, 0, 0, 0, 0)
			continue
		}
		if n == 0 {
			break
		}
		// A partial final group — whether cut short by the "~>" terminator
		// or by the end of input — pads with 'u' (84) and emits n-1 bytes.
		for j := n; j < 5; j++ {
			group[j] = 84
		}
		var v uint32
		for _, g := range group {
			v = v*85 + uint32(g)
		}
		buf := [4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
		out = append(out, buf[:n-1]...)
		if n < 5 || eod {
			break
		}
	}
	return out, nil
}
