package packet

import (
	"bytes"
	"sync"
)

// bufPool recycles the byte buffers used while assembling and parsing
// control packets, avoiding an allocation per packet on the hot path.
var bufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// GetBuffer returns a zeroed buffer from the pool.
func GetBuffer() *bytes.Buffer {
	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns buf to the pool. Callers must not use buf afterwards.
func PutBuffer(buf *bytes.Buffer) {
	bufPool.Put(buf)
}
