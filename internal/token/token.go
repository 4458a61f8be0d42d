// Package token mints the unguessable identifiers embedded in callback
// addresses.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Size is the number of random bytes per token (128 bits).
const Size = 16

// EncodedLen is the length of a token on the wire.
var EncodedLen = base64.RawURLEncoding.EncodedLen(Size)

var ErrCollision = errors.New("token collision")

// maxDraws bounds redraws in Mint. With crypto/rand a single redraw is
// needed for roughly one token in two hundred.
const maxDraws = 16

// Mint returns a fresh token read from r, base64url encoded without padding.
// Encodings containing "--" are drawn again: a double hyphen would close an
// HTML or XML comment around the payload. The excluded set is under 1% of
// the space, so a token keeps more than 127 bits of entropy.
func Mint(r io.Reader) (string, error) {
	var b [Size]byte
	for i := 0; i < maxDraws; i++ {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return "", fmt.Errorf("read entropy: %w", err)
		}
		tok := base64.RawURLEncoding.EncodeToString(b[:])
		if !strings.Contains(tok, "--") {
			return tok, nil
		}
	}
	return "", fmt.Errorf("read entropy: no embeddable token after %d draws", maxDraws)
}

// Valid reports whether s has the shape of a minted token. It says nothing
// about whether the token exists.
func Valid(s string) bool {
	if len(s) != EncodedLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

// Allocator serialises minting so a batch never hands out the same token
// twice, even when generation workers run in parallel.
type Allocator struct {
	mu      sync.Mutex
	entropy io.Reader
	seen    map[string]struct{}
}

func NewAllocator() *Allocator {
	return NewAllocatorFrom(rand.Reader)
}

// NewAllocatorFrom uses r as the entropy source. Only tests should pass
// anything other than crypto/rand.
func NewAllocatorFrom(r io.Reader) *Allocator {
	return &Allocator{entropy: r, seen: make(map[string]struct{})}
}

// Next mints one token. A repeat is reported as ErrCollision and must be
// treated as fatal by the caller.
func (a *Allocator) Next() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	tok, err := Mint(a.entropy)
	if err != nil {
		return "", err
	}
	if _, dup := a.seen[tok]; dup {
		return "", fmt.Errorf("%w: %s", ErrCollision, tok)
	}
	a.seen[tok] = struct{}{}
	return tok, nil
}

func (a *Allocator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.seen)
}
