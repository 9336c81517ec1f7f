package title

import (
	"github.com/magiclantern/cubetest/internal/core/ecs"
	"github.com/magiclantern/cubetest/internal/persist"
	"github.com/magiclantern/cubetest/internal/scene"
	"go.uber.org/zap"
)

// Snapshot captures every actor's encoded properties.
func (t *Title) Snapshot() persist.SessionSnapshot {
	s := persist.SessionSnapshot{
		SessionID: t.ID,
		Title:     t.Platform.Name,
		StartedAt: t.StartedAt,
		Ticks:     t.Scheduler.Ticks(),
		Actors:    make(map[string]map[string][]byte, t.actors.Len()),
	}
	t.actors.Each(func(_ ecs.EntityID, a *scene.Actor) {
		s.Actors[a.Name()] = a.Properties()
	})
	return s
}

// Destroy uninstalls the title's callbacks, then deregisters and destroys
// every object: roles, actors, sets, then the stage. The main loop must have
// stopped. Returns the number of objects destroyed.
func (t *Title) Destroy() int {
	for _, id := range t.callbacks {
		t.Dispatcher.UninstallCallback(id)
	}
	t.callbacks = nil

	for _, id := range t.roles.IDs() {
		t.World.MarkForDestruction(id)
	}
	for _, id := range t.actors.IDs() {
		t.World.MarkForDestruction(id)
	}
	for _, id := range t.sets.IDs() {
		t.World.MarkForDestruction(id)
	}
	if t.stage != nil {
		t.World.MarkForDestruction(t.stageID)
	}
	n := t.World.FlushDestroyQueue()
	t.currentSet = nil
	t.stage = nil

	t.log.Info("title destroyed", zap.Int("objects", n))
	return n
}
