package keyedmutex

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_SameKeyExcludes(t *testing.T) {
	m := New()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Lock("quota:user-1_2026_8")
			counter++
			m.Unlock("quota:user-1_2026_8")
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
}

func TestKeyedMutex_ShardStable(t *testing.T) {
	m := New()
	assert.Equal(t, m.shardFor("a"), m.shardFor("a"))
}
