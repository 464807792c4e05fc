package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferPool(t *testing.T) {
	bp := NewBufferPool(1024)
	assert.Equal(t, 1024, bp.Size())

	buf := bp.Get()
	assert.Len(t, buf.B, 1024)
	buf.B[0] = 'x'
	bp.Put(buf)
	bp.Put(nil)

	again := bp.Get()
	assert.Len(t, again.B, 1024)
	bp.Put(again)

	assert.Equal(t, DefaultChunkSize, NewBufferPool(0).Size())
}
