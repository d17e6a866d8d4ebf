package query

import "strings"

// Values maps a decoded key to its last decoded value.
type Values map[string]string

// Get returns the value for key, or "".
func (v Values) Get(key string) string {
	return v[key]
}

// Parse splits raw on "&", splits each pair on the first "=" and decodes both
// halves. Pairs with an empty key are ignored.
func Parse(raw string) Values {
	out := make(Values)
	for _, pair := range strings.Split(raw, "&") {
		k, v, _ := strings.Cut(pair, "=")
		if k == "" {
			continue
		}
		out[Decode(k)] = Decode(v)
	}
	return out
}

// Decode maps "+" to a space and "%XX" to the byte 0xXX. A "%" that is not
// followed by two hex digits is dropped together with the characters it
// consumed.
func Decode(s string) string {
	if !strings.ContainsAny(s, "+%") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '+':
			b.WriteByte(' ')
		case '%':
			var h1, h2 byte
			ok1, ok2 := false, false
			if i+1 < len(s) {
				h1, ok1 = unhex(s[i+1])
				i++
			}
			if i+1 < len(s) {
				h2, ok2 = unhex(s[i+1])
				i++
			}
			if ok1 && ok2 {
				b.WriteByte(h1<<4 | h2)
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
