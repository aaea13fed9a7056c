package rxdb

import (
	"sync"

	"github.com/andreyvit/rxdb/cproto"
)

var queryBufferPool = &sync.Pool{
	New: func() any {
		return cproto.NewBuffer()
	},
}

func acquireQueryBuffer() *cproto.Buffer {
	return queryBufferPool.Get().(*cproto.Buffer)
}

func releaseQueryBuffer(b *cproto.Buffer) {
	if b.Len() > 65536 {
		return
	}
	b.Reset()
	queryBufferPool.Put(b)
}
