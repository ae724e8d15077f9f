package logger

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestLoggerPrefixLevelsAndFlush(t *testing.T) {
	buf := &syncBuffer{}
	SetOutput(buf)
	SetPrefix("test")
	SetLevel("info")
	t.Cleanup(func() {
		SetPrefix("")
		SetLevel("info")
	})

	Infof("hello %s", "world")
	Debugf("hidden %d", 1)
	Errorf("boom %d", 2)
	Flush(time.Second)

	out := buf.String()
	assert.Contains(t, out, "[test] hello world")
	assert.Contains(t, out, "[test] ERROR: boom 2")
	assert.NotContains(t, out, "hidden")

	SetLevel("debug")
	Debugf("visible %d", 3)
	Flush(time.Second)
	assert.Contains(t, buf.String(), "[test] DEBUG: visible 3")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, levelDebug, parseLevel("TRACE"))
	assert.Equal(t, levelError, parseLevel(" error "))
	assert.Equal(t, levelInfo, parseLevel("whatever"))
}
