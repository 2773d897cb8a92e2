// Package canon produces RFC 8785 style canonical JSON and domain-separated
// SHA-256 digests over it.
//
// Canonical bytes are used wherever two encodings of the same value must be
// byte-identical: selector checkpoints (so their digests are stable) and
// golden traces.
//
// Supported values: string, bool, int, int64, []string, []any,
// map[string]any, map[string]string. Floats and null are rejected.
//
// Marshal NFC-normalizes strings. MarshalExact keeps every string byte for
// byte and rejects invalid UTF-8, for encodings that must decode back to
// the same values.
package canon

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Marshal encodes v as canonical JSON:
//  1. Object keys sorted by UTF-16 code units
//  2. No HTML escaping
//  3. Strings NFC normalized
//  4. No floats, no null
func Marshal(v any) ([]byte, error) {
	e := encoder{normalize: true}
	if err := e.encode(v); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

// MarshalExact is Marshal without NFC normalization. Strings are written
// as given, so json.Unmarshal of the result restores them exactly. Invalid
// UTF-8 is an error since JSON cannot carry it.
func MarshalExact(v any) ([]byte, error) {
	var e encoder
	if err := e.encode(v); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

type encoder struct {
	buf       bytes.Buffer
	normalize bool
}

func (e *encoder) encode(v any) error {
	buf := &e.buf
	switch val := v.(type) {
	case nil:
		return fmt.Errorf("null is forbidden in canonical JSON")
	case string:
		return e.writeString(val)
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case []string:
		buf.WriteByte('[')
		for i, s := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := e.writeString(s); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := e.encode(elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case map[string]string:
		obj := make(map[string]any, len(val))
		for k, s := range val {
			obj[k] = s
		}
		return e.encodeObject(obj)
	case map[string]any:
		return e.encodeObject(val)
	case float32, float64:
		return fmt.Errorf("floats are forbidden in canonical JSON: %v", val)
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

func (e *encoder) encodeObject(obj map[string]any) error {
	e.buf.WriteByte('{')
	for i, k := range SortedKeys(obj) {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.writeString(k); err != nil {
			return err
		}
		e.buf.WriteByte(':')
		if err := e.encode(obj[k]); err != nil {
			return fmt.Errorf("value for key %q: %w", k, err)
		}
	}
	e.buf.WriteByte('}')
	return nil
}

// SortedKeys returns the keys of m in RFC 8785 order (UTF-16 code units).
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return compareUTF16(keys[i], keys[j]) < 0
	})
	return keys
}

func compareUTF16(a, b string) int {
	ua := utf16.Encode([]rune(a))
	ub := utf16.Encode([]rune(b))
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			if ua[i] < ub[i] {
				return -1
			}
			return 1
		}
	}
	return len(ua) - len(ub)
}

const hexDigits = "0123456789abcdef"

// writeString escapes only quote, backslash and control characters.
// U+2028 and U+2029 are written literally.
func (e *encoder) writeString(s string) error {
	if e.normalize {
		s = norm.NFC.String(s)
	} else if !utf8.ValidString(s) {
		return fmt.Errorf("string %q is not valid UTF-8", s)
	}
	buf := &e.buf
	buf.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == '"':
			buf.WriteString(`\"`)
		case r == '\\':
			buf.WriteString(`\\`)
		case r == '\b':
			buf.WriteString(`\b`)
		case r == '\f':
			buf.WriteString(`\f`)
		case r == '\n':
			buf.WriteString(`\n`)
		case r == '\r':
			buf.WriteString(`\r`)
		case r == '\t':
			buf.WriteString(`\t`)
		case r < 0x20:
			buf.WriteString(`\u00`)
			buf.WriteByte(hexDigits[r>>4])
			buf.WriteByte(hexDigits[r&0xF])
		default:
			buf.WriteString(s[i : i+size])
		}
		i += size
	}
	buf.WriteByte('"')
	return nil
}
