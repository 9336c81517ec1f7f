package event

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/magiclantern/cubetest/internal/core/ecs"
)

// Kind identifies an event type. Titles should use kinds from KindUser up.
type Kind uint16

const (
	// Requests a cooperative shutdown. The installed callback sets the
	// session's ExitSignal.
	KindQuit Kind = 0x01

	// Lua scripts changed on disk and should be re-executed.
	KindScriptReload Kind = 0x02

	// Surface size changed. Payload: Resize.
	KindResize Kind = 0x03

	// Destroy the target object at the end of the iteration.
	KindDestroy Kind = 0x04

	KindUser Kind = 0x100
)

func (k Kind) String() string {
	switch k {
	case KindQuit:
		return "QUIT"
	case KindScriptReload:
		return "SCRIPT_RELOAD"
	case KindResize:
		return "RESIZE"
	case KindDestroy:
		return "DESTROY"
	default:
		return fmt.Sprintf("KIND(%#x)", uint16(k))
	}
}

// Resize is the payload of KindResize.
type Resize struct {
	Width  uint32
	Height uint32
}

// Event is a queued message. Target is zero for broadcast events.
type Event struct {
	Kind    Kind
	Payload any
	Target  ecs.EntityID

	due time.Time
	seq uint64
}

// ExitSignal is the session-wide shutdown flag. Once set it stays set; any
// goroutine may set it and the loop reads it without blocking.
type ExitSignal struct {
	v atomic.Bool
}

// Set requests shutdown.
func (s *ExitSignal) Set() { s.v.Store(true) }

// IsSet reports whether shutdown was requested.
func (s *ExitSignal) IsSet() bool { return s.v.Load() }
