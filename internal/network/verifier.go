package network

import (
	"sync"

	"github.com/panjf2000/ants/v2"
)

// VerifyFunc is the external, pure edge-signature verification primitive;
// this module consumes it as a collaborator rather than implementing it.
type VerifyFunc func(Edge) bool

// EdgeVerifier batch-verifies edges across a bounded worker pool (C6), so
// signature checking runs on the pool's workers rather than the caller's
// goroutine; an edge whose task the pool rejects is verified inline.
type EdgeVerifier struct {
	verify VerifyFunc
	pool   *ants.Pool
}

// NewEdgeVerifier builds a verifier backed by a pool of poolSize goroutines.
func NewEdgeVerifier(verify VerifyFunc, poolSize int) (*EdgeVerifier, error) {
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}
	return &EdgeVerifier{verify: verify, pool: pool}, nil
}

// Release tears down the worker pool.
func (v *EdgeVerifier) Release() {
	v.pool.Release()
}

// VerifyAll dispatches verification of every edge across the pool, with no
// ordering guarantee among them, and returns the subset that verified along
// with whether every edge in the batch did. A single invalid edge sets
// allOK=false but does not prevent the valid edges from being retained.
func (v *EdgeVerifier) VerifyAll(edges []Edge) (valid []Edge, allOK bool) {
	n := len(edges)
	if n == 0 {
		return nil, true
	}
	results := make([]bool, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i, e := range edges {
		i, e := i, e
		task := func() {
			defer wg.Done()
			results[i] = v.verify(e)
		}
		if err := v.pool.Submit(task); err != nil {
			// Pool rejected the task (e.g. it has been released): verify
			// inline rather than silently dropping the edge from the batch.
			task()
		}
	}
	wg.Wait()

	valid = make([]Edge, 0, n)
	allOK = true
	for i, ok := range results {
		if ok {
			valid = append(valid, edges[i])
		} else {
			allOK = false
		}
	}
	return valid, allOK
}
