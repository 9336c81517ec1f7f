package ecs

import "testing"

func TestEntityPoolReservesZero(t *testing.T) {
	p := NewEntityPool()
	id := p.Create()
	if id.IsZero() {
		t.Fatal("Create() returned the zero ID")
	}
	if id.Index() != 1 {
		t.Errorf("first index = %d, expected 1", id.Index())
	}
	if p.Alive(0) {
		t.Error("zero ID reported alive")
	}
}

func TestEntityPoolGenerations(t *testing.T) {
	p := NewEntityPool()
	a := p.Create()
	if !p.Destroy(a) {
		t.Fatal("Destroy() = false for live ID")
	}
	if p.Destroy(a) {
		t.Error("Destroy() = true for stale ID")
	}
	b := p.Create()
	if b.Index() != a.Index() {
		t.Errorf("index not reused: %s vs %s", a, b)
	}
	if b.Generation() != a.Generation()+1 {
		t.Errorf("generation = %d, expected %d", b.Generation(), a.Generation()+1)
	}
	if p.Alive(a) || !p.Alive(b) {
		t.Error("stale ID alive or fresh ID dead")
	}
	if p.Len() != 1 {
		t.Errorf("Len() = %d, expected 1", p.Len())
	}
}

func TestStoreKeepsInsertionOrder(t *testing.T) {
	s := NewStore[string]()
	ids := []EntityID{NewEntityID(3, 0), NewEntityID(1, 0), NewEntityID(2, 0)}
	names := []string{"c", "a", "b"}
	for i := range ids {
		s.Set(ids[i], &names[i])
	}
	s.Remove(ids[1])

	var got []string
	s.Each(func(_ EntityID, v *string) { got = append(got, *v) })
	if len(got) != 2 || got[0] != "c" || got[1] != "b" {
		t.Errorf("Each order = %v, expected [c b]", got)
	}
	if v, ok := s.Get(ids[2]); !ok || *v != "b" {
		t.Errorf("Get after Remove = %v, %v", v, ok)
	}
}

func TestWorldFlushDestroyQueue(t *testing.T) {
	w := NewWorld()
	names := NewStore[string]()
	w.Register(names)

	a := w.CreateEntity()
	b := w.CreateEntity()
	na, nb := "a", "b"
	names.Set(a, &na)
	names.Set(b, &nb)

	var order []string
	w.OnDestroy(a, func() { order = append(order, "a") })
	w.OnDestroy(b, func() { order = append(order, "b") })

	w.MarkForDestruction(b)
	w.MarkForDestruction(a)
	w.MarkForDestruction(a)
	if w.Queued() != 3 {
		t.Errorf("Queued() = %d, expected 3", w.Queued())
	}

	if n := w.FlushDestroyQueue(); n != 2 {
		t.Errorf("FlushDestroyQueue() = %d, expected 2", n)
	}
	if len(order) != 2 || order[0] != "b" || order[1] != "a" {
		t.Errorf("finalizer order = %v, expected [b a]", order)
	}
	if names.Len() != 0 {
		t.Errorf("store still holds %d entries", names.Len())
	}
	if w.Alive(a) || w.Alive(b) {
		t.Error("destroyed IDs still alive")
	}
	if n := w.FlushDestroyQueue(); n != 0 {
		t.Errorf("second flush = %d, expected 0", n)
	}
}

func TestWorldFlushDestroysObjectsMarkedByFinalizers(t *testing.T) {
	w := NewWorld()
	parent := w.CreateEntity()
	child := w.CreateEntity()
	w.OnDestroy(parent, func() { w.MarkForDestruction(child) })

	w.MarkForDestruction(parent)
	if n := w.FlushDestroyQueue(); n != 2 {
		t.Errorf("FlushDestroyQueue() = %d, expected 2", n)
	}
	if w.Alive(child) {
		t.Error("object marked during flush still alive")
	}
	if w.Queued() != 0 {
		t.Errorf("Queued() = %d after flush, expected 0", w.Queued())
	}
}
