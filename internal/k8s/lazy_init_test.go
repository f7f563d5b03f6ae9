package k8s

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLazyValue_LoadsOnce(t *testing.T) {
	var lv lazyValue[int]
	var loads atomic.Int32
	load := func() (int, error) {
		loads.Add(1)
		return 42, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := lv.Get(load)
			assert.NoError(t, err)
			assert.Equal(t, 42, v)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
	assert.True(t, lv.IsSet())
}

func TestLazyValue_RetriesAfterError(t *testing.T) {
	var lv lazyValue[string]

	_, err := lv.Get(func() (string, error) { return "", errors.New("discovery down") })
	require.Error(t, err)
	assert.False(t, lv.IsSet())

	v, err := lv.Get(func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}
