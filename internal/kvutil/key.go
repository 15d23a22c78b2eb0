package kvutil

import (
	"fmt"
	"strconv"
	"strings"
)

const hexDigits = "0123456789ABCDEF"

// EncodeToken escapes s into a single KV key token.
//
// ASCII letters, digits and '-' pass through; every other byte becomes "_XX" (upper
// case hex). The result never contains '.', so it is safe as one subject token.
func EncodeToken(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		if isPlain(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('_')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}

	return b.String()
}

// DecodeToken reverses EncodeToken.
func DecodeToken(token string) (string, error) {
	if !strings.Contains(token, "_") {
		return token, nil
	}

	var b strings.Builder
	b.Grow(len(token))

	for i := 0; i < len(token); i++ {
		c := token[i]
		if c != '_' {
			b.WriteByte(c)
			continue
		}
		if i+2 >= len(token) {
			return "", fmt.Errorf("truncated escape in key token %q", token)
		}
		v, err := strconv.ParseUint(token[i+1:i+3], 16, 8)
		if err != nil {
			return "", fmt.Errorf("bad escape in key token %q: %w", token, err)
		}
		b.WriteByte(byte(v))
		i += 2
	}

	return b.String(), nil
}

// RecordKey builds the key for one record: "<resourceType>.<escaped id>".
func RecordKey(resourceType, id string) string {
	return EncodeToken(resourceType) + "." + EncodeToken(id)
}

// TypePattern returns the watch pattern matching every record key of resourceType.
func TypePattern(resourceType string) string {
	return EncodeToken(resourceType) + ".*"
}

// SplitRecordKey parses a key built by RecordKey.
func SplitRecordKey(key string) (resourceType, id string, err error) {
	typeToken, idToken, ok := strings.Cut(key, ".")
	if !ok || typeToken == "" || idToken == "" {
		return "", "", fmt.Errorf("malformed record key %q", key)
	}
	if resourceType, err = DecodeToken(typeToken); err != nil {
		return "", "", err
	}
	if id, err = DecodeToken(idToken); err != nil {
		return "", "", err
	}

	return resourceType, id, nil
}

func isPlain(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-'
}
