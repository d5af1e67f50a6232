package go_func_utils

import (
	"bytes"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSafeGo_RunsFunction(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)

	done := make(chan struct{})
	SafeGo(logger, func() { close(done) })

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Timeout waiting for goroutine")
	}
	assert.Empty(t, buf.String())
}

func TestSafeGoGroup_WaitsForAll(t *testing.T) {
	logger := log.New(&bytes.Buffer{}, "", 0)

	var wg sync.WaitGroup
	var count atomic.Int32
	for i := 0; i < 5; i++ {
		SafeGoGroup(logger, &wg, func() { count.Add(1) })
	}
	wg.Wait()
	assert.Equal(t, int32(5), count.Load())
}

func TestRecoverAndLog_LogsAndRepanics(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)

	assert.PanicsWithValue(t, "strap gone", func() {
		defer recoverAndLog(logger)
		panic("strap gone")
	})
	assert.Contains(t, buf.String(), "PANIC: strap gone")
}
