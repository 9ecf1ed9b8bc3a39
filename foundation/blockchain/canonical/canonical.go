// Package canonical provides the deterministic encoding used as the input to
// every hash on the blockchain. Two nodes hashing logically identical content
// must feed byte-identical data to the hash function, so the encoding fixes
// key order, number formatting, separators and string escaping.
//
// The format is JSON with object keys sorted by code point, ", " and ": "
// separators, integers in plain decimal and strings escaped to pure ASCII.
// This matches the encoding used by the chains already on disk, so it must
// not change.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"unicode/utf16"
)

// ErrUnsupported is returned when a value can't be represented in the
// canonical encoding, such as a floating point number.
var ErrUnsupported = errors.New("canonical: unsupported value")

// Marshal returns the canonical encoding of v. The value is first rendered
// through its JSON field tags so struct values hash the same as the generic
// documents they are stored as.
func Marshal(v any) ([]byte, error) {
	tree, err := Tree(v)
	if err != nil {
		return nil, err
	}

	return Encode(tree)
}

// Hash returns the lowercase hex SHA-256 digest of the canonical
// encoding of v.
func Hash(v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", err
	}

	return HashBytes(data), nil
}

// HashBytes returns the lowercase hex SHA-256 digest of data.
func HashBytes(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Tree converts v into the generic document form walked by Encode: nil,
// bool, string, json.Number, []any and map[string]any.
func Tree(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal: %w", err)
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var tree any
	if err := decoder.Decode(&tree); err != nil {
		return nil, fmt.Errorf("canonical: decode: %w", err)
	}

	return tree, nil
}

// Encode writes the canonical encoding of a generic document produced
// by Tree.
func Encode(tree any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, tree); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// =============================================================================

func encode(buf *bytes.Buffer, v any) error {
	switch v := v.(type) {
	case nil:
		buf.WriteString("null")

	case bool:
		if v {
			buf.WriteString("true")
			return nil
		}
		buf.WriteString("false")

	case string:
		encodeString(buf, v)

	case json.Number:
		return encodeNumber(buf, v)

	case []any:
		buf.WriteByte('[')
		for i, elem := range v {
			if i > 0 {
				buf.WriteString(", ")
			}
			if err := encode(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')

	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteString(", ")
			}
			encodeString(buf, k)
			buf.WriteString(": ")
			if err := encode(buf, v[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')

	default:
		return fmt.Errorf("%w: type %T", ErrUnsupported, v)
	}

	return nil
}

// encodeNumber writes integers in plain decimal. Amounts on the chain are
// integers, anything with a fraction or exponent is rejected.
func encodeNumber(buf *bytes.Buffer, n json.Number) error {
	s := n.String()
	if strings.ContainsAny(s, ".eE") {
		return fmt.Errorf("%w: non-integer number %s", ErrUnsupported, s)
	}

	i, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("%w: number %q", ErrUnsupported, s)
	}

	buf.WriteString(i.String())
	return nil
}

// encodeString escapes everything outside printable ASCII. Runes above the
// basic multilingual plane are written as UTF-16 surrogate pairs.
func encodeString(buf *bytes.Buffer, s string) {
	const hexDigits = "0123456789abcdef"

	writeU := func(r rune) {
		buf.WriteString(`\u`)
		buf.WriteByte(hexDigits[(r>>12)&0xf])
		buf.WriteByte(hexDigits[(r>>8)&0xf])
		buf.WriteByte(hexDigits[(r>>4)&0xf])
		buf.WriteByte(hexDigits[r&0xf])
	}

	buf.WriteByte('"')
	for _, r := range s {
		switch {
		case r == '"':
			buf.WriteString(`\"`)
		case r == '\\':
			buf.WriteString(`\\`)
		case r == '\n':
			buf.WriteString(`\n`)
		case r == '\r':
			buf.WriteString(`\r`)
		case r == '\t':
			buf.WriteString(`\t`)
		case r == '\b':
			buf.WriteString(`\b`)
		case r == '\f':
			buf.WriteString(`\f`)
		case r >= 0x20 && r <= 0x7e:
			buf.WriteByte(byte(r))
		case r > 0xffff:
			r1, r2 := utf16.EncodeRune(r)
			writeU(r1)
			writeU(r2)
		default:
			writeU(r)
		}
	}
	buf.WriteByte('"')
}
