package ecs

// World owns object identity for one session: the ID pool, the stores that
// hold per-object data, and a deferred destruction queue that the main loop
// flushes between iterations.
type World struct {
	pool         *EntityPool
	stores       []Removable
	finalizers   map[EntityID][]func()
	destroyQueue []EntityID
}

func NewWorld() *World {
	return &World{
		pool:         NewEntityPool(),
		stores:       make([]Removable, 0, 8),
		finalizers:   make(map[EntityID][]func()),
		destroyQueue: make([]EntityID, 0, 16),
	}
}

func (w *World) Pool() *EntityPool { return w.pool }

// Register adds a store whose entries are removed on destroy.
func (w *World) Register(store Removable) {
	w.stores = append(w.stores, store)
}

func (w *World) CreateEntity() EntityID {
	return w.pool.Create()
}

func (w *World) Alive(id EntityID) bool {
	return w.pool.Alive(id)
}

// OnDestroy adds fn to the hooks run when id is destroyed. Hooks run in the
// order they were added.
func (w *World) OnDestroy(id EntityID, fn func()) {
	w.finalizers[id] = append(w.finalizers[id], fn)
}

// MarkForDestruction queues an object for the next flush.
func (w *World) MarkForDestruction(id EntityID) {
	w.destroyQueue = append(w.destroyQueue, id)
}

// Queued returns the number of objects waiting for destruction.
func (w *World) Queued() int { return len(w.destroyQueue) }

// FlushDestroyQueue destroys queued objects in queue order: finalizer first,
// then store entries, then the ID. Objects marked by a finalizer are
// destroyed in the same flush. Returns how many were destroyed.
func (w *World) FlushDestroyQueue() int {
	n := 0
	for i := 0; i < len(w.destroyQueue); i++ {
		id := w.destroyQueue[i]
		if !w.pool.Alive(id) {
			continue
		}
		hooks := w.finalizers[id]
		delete(w.finalizers, id)
		for _, fn := range hooks {
			fn()
		}
		for _, s := range w.stores {
			s.Remove(id)
		}
		w.pool.Destroy(id)
		n++
	}
	clear(w.destroyQueue)
	w.destroyQueue = w.destroyQueue[:0]
	return n
}
