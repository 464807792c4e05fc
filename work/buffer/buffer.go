package buffer

import (
	"github.com/valyala/bytebufferpool"
)

// DefaultChunkSize is the relay chunk used for segment and key bodies.
const DefaultChunkSize = 32 * 1024

// BufferPool hands out fixed-capacity byte buffers for chunked relays, backed by
// valyala/bytebufferpool so that steady segment traffic does not allocate per request.
type BufferPool struct {
	pool       *bytebufferpool.Pool
	bufferSize int
}

// NewBufferPool creates a pool whose buffers hold at least bufferSize bytes.
func NewBufferPool(bufferSize int) *BufferPool {
	if bufferSize <= 0 {
		bufferSize = DefaultChunkSize
	}
	return &BufferPool{
		bufferSize: bufferSize,
		pool:       &bytebufferpool.Pool{},
	}
}

// Get returns a buffer whose B has length bufferSize, ready to be read into.
func (bp *BufferPool) Get() *bytebufferpool.ByteBuffer {
	buf := bp.pool.Get()
	if cap(buf.B) < bp.bufferSize {
		buf.B = make([]byte, bp.bufferSize)
	} else {
		buf.B = buf.B[:bp.bufferSize]
	}
	return buf
}

// Put returns buf to the pool. A nil buf is ignored.
func (bp *BufferPool) Put(buf *bytebufferpool.ByteBuffer) {
	if buf == nil {
		return
	}
	buf.Reset()
	bp.pool.Put(buf)
}

// Size is the chunk length handed out by Get.
func (bp *BufferPool) Size() int {
	return bp.bufferSize
}
