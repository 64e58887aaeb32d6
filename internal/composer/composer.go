// Package composer folds the per-link delta windows of a chain walk into
// one equivalent window against the innermost source, implementing the
// fold rules and the oracle's use_second shortcut together.
package composer

import (
	"github.com/prn-tf/repstore/internal/svndiff"
	"github.com/prn-tf/repstore/internal/trail"
)

// State holds the accumulating fold across one chunk's worth of chain
// links. Feed windows in chain order: outermost (newest) first, innermost
// (closest to the terminal fulltext) last.
type State struct {
	arena    *trail.Arena
	scope    *trail.Arena
	combined *svndiff.Window
	done     bool
	fed      bool
}

// NewState starts a fresh fold, scoping its composed windows as children
// of arena. Each replacement releases the prior scope before allocating a
// fresh one, so peak memory is at most two adjacent windows.
func NewState(arena *trail.Arena) *State {
	return &State{arena: arena}
}

// Feed advances the fold with the next window in chain order. A nil w
// signals end of stream.
func (s *State) Feed(w *svndiff.Window) {
	if w == nil {
		if s.fed {
			s.done = true
		}
		return
	}
	s.fed = true

	if s.done {
		return
	}

	if s.combined == nil {
		s.replace(w)
		if w.SourceViewLen == 0 || w.SourceOps() == 0 {
			s.done = true
		}
		return
	}

	// s.combined is the outer (newer) window: its copy offsets index into
	// w's (older, one link deeper) target space, per svndiff.Compose's
	// newer/older convention.
	combinedNew, res := svndiff.Compose(s.combined, w)
	if combinedNew != nil {
		s.replace(combinedNew)
		return
	}
	if res != nil && res.UseSecond {
		s.replace(w)
		s.combined.SourceViewOffset = res.SourceViewOffset
		s.combined.SourceViewLen = res.SourceViewLen
		s.done = true
	}
}

// replace swaps in a new combined window, releasing the prior scope
// before allocating the next one.
func (s *State) replace(w *svndiff.Window) {
	if s.arena != nil {
		if s.scope != nil {
			s.scope.Release()
		}
		s.scope = s.arena.Child()
	}
	s.combined = w
}

// Done reports whether further Feed calls cannot change the result.
func (s *State) Done() bool {
	return s.done
}

// Combined returns the current folded window, or nil if nothing has been
// fed yet.
func (s *State) Combined() *svndiff.Window {
	return s.combined
}

// Release gives up the current scope. Call once the composed window has
// been applied and is no longer needed.
func (s *State) Release() {
	if s.scope != nil {
		s.scope.Release()
		s.scope = nil
	}
}
