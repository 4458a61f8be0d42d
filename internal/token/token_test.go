package token

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintShape(t *testing.T) {
	a := NewAllocator()
	tok, err := a.Next()
	require.NoError(t, err)
	assert.Len(t, tok, 22)
	assert.True(t, Valid(tok))
}

func TestValid(t *testing.T) {
	assert.False(t, Valid(""))
	assert.False(t, Valid("short"))
	assert.False(t, Valid("AAAAAAAAAAAAAAAAAAAAA="))
	assert.False(t, Valid("AAAAAAAAAAAAAAAAAAAA/A"))
	assert.True(t, Valid("AAAAAAAAAAAAAAAAAAAA-_"))
}

func TestConcurrentUniqueness(t *testing.T) {
	a := NewAllocator()
	const workers, per = 16, 500

	var mu sync.Mutex
	all := make(map[string]bool)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < per; i++ {
				tok, err := a.Next()
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				all[tok] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, all, workers*per)
	assert.Equal(t, workers*per, a.Len())
}

func TestRepeatedEntropyIsCollision(t *testing.T) {
	zeros := bytes.NewReader(make([]byte, Size*2))
	a := NewAllocatorFrom(zeros)

	_, err := a.Next()
	require.NoError(t, err)
	_, err = a.Next()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCollision))
}

func TestExhaustedEntropy(t *testing.T) {
	a := NewAllocatorFrom(bytes.NewReader([]byte{1, 2, 3}))
	_, err := a.Next()
	assert.Error(t, err)
}

func TestMintRedrawsDoubleHyphen(t *testing.T) {
	hyphens := append([]byte{0xfb, 0xef, 0xbe}, bytes.Repeat([]byte{1}, Size-3)...)
	ones := bytes.Repeat([]byte{2}, Size)

	a := NewAllocatorFrom(bytes.NewReader(append(hyphens, ones...)))
	tok, err := a.Next()
	require.NoError(t, err)
	assert.NotContains(t, tok, "--")
	assert.True(t, Valid(tok))
	assert.Equal(t, "AgICAgICAgICAgICAgICAg", tok)
}

func TestMintGivesUpOnDegenerateEntropy(t *testing.T) {
	hyphens := append([]byte{0xfb, 0xef, 0xbe}, bytes.Repeat([]byte{1}, Size-3)...)
	_, err := Mint(bytes.NewReader(bytes.Repeat(hyphens, maxDraws)))
	assert.Error(t, err)
}
