package scheduler

import (
	"golang.org/x/sync/semaphore"
)

// caps tracks per-repo and per-model concurrency ceilings as weighted
// semaphores (golang.org/x/sync/semaphore), acquired with TryAcquire so a
// cap at capacity simply defers the spawn to a later tick rather than
// blocking it (spec section 4.2: "spawns beyond caps are deferred").
type caps struct {
	repo  map[string]*semaphore.Weighted
	model map[string]*semaphore.Weighted
}

func newCaps(perRepo, perModel map[string]int) *caps {
	c := &caps{
		repo:  make(map[string]*semaphore.Weighted, len(perRepo)),
		model: make(map[string]*semaphore.Weighted, len(perModel)),
	}
	for repoID, n := range perRepo {
		if n <= 0 {
			n = 1
		}
		c.repo[repoID] = semaphore.NewWeighted(int64(n))
	}
	for model, n := range perModel {
		if n <= 0 {
			n = 1
		}
		c.model[model] = semaphore.NewWeighted(int64(n))
	}
	return c
}

// tryAcquire attempts to reserve one slot each for repoID and model.
// Either semaphore missing means that dimension is uncapped. On partial
// failure it releases whichever it already acquired.
func (c *caps) tryAcquire(repoID, model string) bool {
	var repoSem, modelSem *semaphore.Weighted
	if s, ok := c.repo[repoID]; ok {
		repoSem = s
		if !repoSem.TryAcquire(1) {
			return false
		}
	}
	if s, ok := c.model[model]; ok {
		modelSem = s
		if !modelSem.TryAcquire(1) {
			if repoSem != nil {
				repoSem.Release(1)
			}
			return false
		}
	}
	return true
}

func (c *caps) release(repoID, model string) {
	if s, ok := c.repo[repoID]; ok {
		s.Release(1)
	}
	if s, ok := c.model[model]; ok {
		s.Release(1)
	}
}
