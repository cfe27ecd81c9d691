package transfer

import "objectreplicator/pkg/pool"

// bufferPool wraps the teacher's MultiSizeBufferPool, preconfigured for
// one size class (the job's chunk size) plus whatever odd-sized last
// part falls through to a direct allocation.
type bufferPool struct {
	inner *pool.MultiSizeBufferPool
}

func newBufferPool(chunkSize int64) *bufferPool {
	return &bufferPool{inner: pool.NewMultiSizeBufferPool([]int{int(chunkSize)}, 0)}
}

func (p *bufferPool) get(size int64) []byte {
	return p.inner.Get(int(size))
}

func (p *bufferPool) put(buf []byte) {
	p.inner.Put(buf)
}
