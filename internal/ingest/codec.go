package ingest

import (
	"bytes"
	"io"
	"sync"

	"alertgroups/internal/domain"
)

const maxPooledBufferCapacity = 1 << 20

var bodyBufferPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, 16<<10))
	},
}

// decodeBody reads one push payload through a pooled buffer.
// Params: request body or message reader.
// Returns: validated groups; the buffer is recycled before returning.
func decodeBody(body io.Reader) ([]domain.RawGroup, error) {
	buf := acquireBuffer()
	defer releaseBuffer(buf)
	if _, err := buf.ReadFrom(body); err != nil {
		return nil, err
	}
	return domain.DecodeGroups(buf.Bytes())
}

func acquireBuffer() *bytes.Buffer {
	return bodyBufferPool.Get().(*bytes.Buffer)
}

// releaseBuffer resets buf and drops it when a large push inflated it.
func releaseBuffer(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > maxPooledBufferCapacity {
		return
	}
	buf.Reset()
	bodyBufferPool.Put(buf)
}
