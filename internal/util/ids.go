package util

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	nanoidLength   = 21
	nanoidAlphabet = "_-0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// NewRequestID returns a fresh 21 character nanoid.
func NewRequestID() string {
	id, err := gonanoid.New()
	if err != nil {
		// only fails when the system random source is broken
		return gonanoid.MustGenerate(nanoidAlphabet, nanoidLength)
	}
	return id
}

// IsNanoid reports whether s has the shape of a default nanoid.
func IsNanoid(s string) bool {
	if len(s) != nanoidLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}
