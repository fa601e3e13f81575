package retrieval

import (
	"sync"

	"github.com/gammazero/workerpool"

	"github.com/thornxyz/revera/internal/vectordb"
)

// cpuPool dispatches the CPU-bound local encodings (BM25 sparse vectors,
// late-interaction multi-vectors) off the calling goroutine so the
// workflow's event loop is never blocked (spec §5 "Scheduling model:
// CPU-bound work must be dispatched to a worker pool").
var cpuPool = workerpool.New(4)

// encodeLocal runs the sparse and late-interaction encoders on the shared
// worker pool and blocks until both complete.
func encodeLocal(text string) (vectordb.SparseVector, vectordb.LateInteractionVector) {
	var (
		wg     sync.WaitGroup
		sparse vectordb.SparseVector
		late   vectordb.LateInteractionVector
	)
	wg.Add(2)
	cpuPool.Submit(func() {
		defer wg.Done()
		sparse = EncodeSparse(text)
	})
	cpuPool.Submit(func() {
		defer wg.Done()
		late = EncodeLateInteraction(text)
	})
	wg.Wait()
	return sparse, late
}
