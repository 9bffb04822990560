package generator

import (
	"encoding/hex"
	"errors"
	"sync"
	"testing"

	"github.com/layer-3/tokenauth/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateFormat(t *testing.T) {
	gen := NewDigest()

	value, err := gen.Generate()
	require.NoError(t, err)
	assert.Len(t, value, TokenLength)

	_, err = hex.DecodeString(value)
	assert.NoError(t, err)
}

func TestGenerateUnique(t *testing.T) {
	gen := NewDigest()

	const workers = 8
	const perWorker = 2500

	var mu sync.Mutex
	seen := make(map[string]struct{}, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				v, err := gen.Generate()
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				seen[v] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy exhausted")
}

func TestGenerateFailsWhenEntropyUnavailable(t *testing.T) {
	gen := NewDigestFrom(failingReader{})

	value, err := gen.Generate()
	assert.Empty(t, value)
	assert.ErrorIs(t, err, core.ErrGenerationFailed)
}
