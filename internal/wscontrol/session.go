package wscontrol

import (
	"sync"

	"github.com/danmuck/edgeproxy/internal/protocol"
	"github.com/danmuck/edgeproxy/internal/protocol/subproto"
)

// Frame-level error codes carried in ERROR frames. Message text travels
// as a JSON text message beside the binary frame.
const (
	ErrCodeBadFrame     uint32 = 1
	ErrCodeUnknownType  uint32 = 2
	ErrCodeUnknownField uint32 = 3
	ErrCodeOutOfRange   uint32 = 4
	ErrCodeReservedBits uint32 = 5
)

// Session owns the per-connection ConfigState. Every applied frame
// replaces the state with a freshly built value; nothing mutates in place.
type Session struct {
	mu  sync.Mutex
	cfg protocol.ConfigState
}

// NewSession starts from the given baseline config.
func NewSession(baseline protocol.ConfigState) *Session {
	return &Session{cfg: baseline}
}

// Config snapshots the current state.
func (s *Session) Config() protocol.ConfigState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// ApplyUpdate replaces one field, enforcing the descriptor's range and
// reserved-bit invariants. Violations leave the state untouched.
func (s *Session) ApplyUpdate(u subproto.Update) (errCode uint32, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(u)
}

// ApplyBulk applies all updates or none.
func (s *Session) ApplyBulk(updates []subproto.Update) (errCode uint32, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := s.cfg
	for _, u := range updates {
		if code, ok := s.applyLocked(u); !ok {
			s.cfg = saved
			return code, false
		}
	}
	return 0, true
}

// ApplyResize sets rows and cols together.
func (s *Session) ApplyResize(rows, cols uint8) (errCode uint32, ok bool) {
	if rows == 0 || cols == 0 {
		return ErrCodeOutOfRange, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.cfg
	next.Rows = rows
	next.Cols = cols
	s.cfg = next
	return 0, true
}

// ApplyToggle flips one feature flag bit. Reserved bits stay untouchable.
func (s *Session) ApplyToggle(flagIndex uint32, enabled bool) (errCode uint32, ok bool) {
	if flagIndex > 10 {
		return ErrCodeReservedBits, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.cfg
	if enabled {
		next.FeatureFlags |= 1 << flagIndex
	} else {
		next.FeatureFlags &^= 1 << flagIndex
	}
	s.cfg = next
	return 0, true
}

func (s *Session) applyLocked(u subproto.Update) (errCode uint32, ok bool) {
	next, err := s.cfg.WithField(u.Field, u.Value)
	if err != nil {
		return ErrCodeOutOfRange, false
	}
	if bad, code := violates(next, u.Field); bad {
		return code, false
	}
	s.cfg = next
	return 0, true
}

func violates(c protocol.ConfigState, field string) (bool, uint32) {
	switch field {
	case protocol.FieldFeatureFlags:
		if c.FeatureFlags&protocol.ReservedFlagsMask != 0 {
			return true, ErrCodeReservedBits
		}
	case protocol.FieldTerminalMode:
		if c.TerminalMode > protocol.TerminalModeMax {
			return true, ErrCodeOutOfRange
		}
	case protocol.FieldRows:
		if c.Rows == 0 {
			return true, ErrCodeOutOfRange
		}
	case protocol.FieldCols:
		if c.Cols == 0 {
			return true, ErrCodeOutOfRange
		}
	}
	return false, 0
}
