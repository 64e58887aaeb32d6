// Package svndiff implements the binary-diff oracle used as an external
// collaborator: wire format, window composition, and instruction
// application. It is specified only by its fixed algebraic contracts,
// so this implementation favors a simple, verifiably-correct encoding
// over byte-for-byte compatibility with any particular on-disk svndiff
// dialect.
package svndiff

import "fmt"

// InstructionKind distinguishes the two instruction shapes a window can
// contain: bytes copied from the window's source view, and bytes inserted
// literally (carried in the window itself).
type InstructionKind uint8

const (
	// KindCopy copies Length bytes from the window's source view, starting
	// at SourceOffset (absolute within the source's own coordinate space).
	KindCopy InstructionKind = iota
	// KindInsert carries Length literal bytes in Data.
	KindInsert
)

// Instruction is one step of a window's target-reconstruction program.
type Instruction struct {
	Kind InstructionKind

	// SourceOffset is meaningful only for KindCopy: an offset absolute
	// within the source view's own addressing (see Window doc).
	SourceOffset int64

	// TargetOffset is this instruction's position within the window's own
	// target output, 0-based from the start of the window.
	TargetOffset int64

	Length int64

	// Data holds the literal bytes for KindInsert instructions.
	Data []byte
}

// Window is one unit of the binary diff: a view into some source byte
// range, plus an ordered instruction program that reconstructs a target
// byte range from it.
//
// Both SourceViewOffset and each KindCopy instruction's SourceOffset are
// absolute within the *source's* coordinate space — i.e. the same
// numbering the source itself uses for its own reconstructed content (or,
// when the source is a fulltext rep, absolute offsets into that fulltext).
// TargetOffset is always 0-based within this window's own output. This
// convention is what lets the composition engine (internal/composer) fold
// one chain link's window into the next purely by offset arithmetic,
// without ever materializing intermediate fulltext.
type Window struct {
	SourceViewOffset int64
	SourceViewLen    int64
	TargetViewLen    int64
	Instructions     []Instruction
}

// SourceOps returns the number of copy instructions in the window — the
// count used when deciding whether a window is already fully
// self-contained (SourceOps == 0 means it never reads its source view
// at all).
func (w *Window) SourceOps() int {
	if w == nil {
		return 0
	}
	n := 0
	for _, in := range w.Instructions {
		if in.Kind == KindCopy {
			n++
		}
	}
	return n
}

// Empty reports whether the window has no instructions (the compositor's
// "combined is empty" sentinel state).
func (w *Window) Empty() bool {
	return w == nil || len(w.Instructions) == 0
}

// Validate checks the basic structural invariants of a freshly parsed or
// composed window: instructions must be target-contiguous starting at 0,
// and copy instructions must stay within the declared source view.
func (w *Window) Validate() error {
	if w == nil {
		return nil
	}
	var pos int64
	for i, in := range w.Instructions {
		if in.TargetOffset != pos {
			return fmt.Errorf("svndiff: instruction %d target offset %d != expected %d", i, in.TargetOffset, pos)
		}
		if in.Length <= 0 {
			return fmt.Errorf("svndiff: instruction %d has non-positive length %d", i, in.Length)
		}
		if in.Kind == KindCopy {
			rel := in.SourceOffset - w.SourceViewOffset
			if rel < 0 || rel+in.Length > w.SourceViewLen {
				return fmt.Errorf("svndiff: instruction %d copy [%d,%d) escapes source view [%d,%d)",
					i, in.SourceOffset, in.SourceOffset+in.Length, w.SourceViewOffset, w.SourceViewOffset+w.SourceViewLen)
			}
		}
		pos += in.Length
	}
	if pos != w.TargetViewLen {
		return fmt.Errorf("svndiff: instructions cover %d bytes, want target view length %d", pos, w.TargetViewLen)
	}
	return nil
}
