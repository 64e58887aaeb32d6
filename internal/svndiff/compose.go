package svndiff

// ComposeResult carries an out-of-band signal: when Compose decides the
// older window can stand unmodified, it returns a nil combined window
// and a ComposeResult with UseSecond set, carrying the source-view
// bounds the caller must splice onto the older window before using it.
type ComposeResult struct {
	UseSecond        bool
	SourceViewOffset int64
	SourceViewLen    int64
}

// Compose folds newer (the outer, more recent window) against older (the
// next window down the delta chain) into a single window equivalent to
// applying older then newer. newer's source view is understood to address
// older's TARGET coordinate space (0-based over [0, older.TargetViewLen)),
// which is exactly how the chain walk feeds windows: newer deltas
// against the content that older's own window would reconstruct.
//
// If newer is a pure, whole-window passthrough of older's target (a single
// copy instruction spanning the entire window with no inserts), Compose
// takes the documented shortcut: it returns (nil, result) with
// result.UseSecond set, telling the caller to reuse older's own
// instructions unchanged and only rewrite older's source-view bounds.
// Otherwise it substitutes newer's copy instructions against older's
// instruction list directly (no source bytes are read to do this — the
// needed bytes are already present as literal inserts or further copies in
// older).
func Compose(newer, older *Window) (*Window, *ComposeResult) {
	if newer.Empty() {
		return &Window{}, nil
	}
	if older.Empty() {
		// older contributes nothing: newer's copies would address an empty
		// source, meaning none of them can be resolved. Treat as corrupt
		// input by caller; return newer as-is with no source view, which
		// the fold loop will treat as "no more source".
		return &Window{TargetViewLen: newer.TargetViewLen, Instructions: newer.Instructions}, nil
	}

	if passthrough, ok := wholeWindowPassthrough(newer, older); ok {
		_ = passthrough
		return nil, &ComposeResult{
			UseSecond:        true,
			SourceViewOffset: older.SourceViewOffset,
			SourceViewLen:    older.SourceViewLen,
		}
	}

	var (
		composed          []Instruction
		minSrc, maxSrc    int64
		touchedSourceOnce bool
	)

	for _, in := range newer.Instructions {
		if in.Kind == KindInsert {
			composed = append(composed, in)
			continue
		}

		segs := sliceTarget(older, in.SourceOffset, in.Length)
		targetPos := in.TargetOffset
		for _, seg := range segs {
			switch seg.Kind {
			case KindInsert:
				composed = append(composed, Instruction{
					Kind:        KindInsert,
					TargetOffset: targetPos,
					Length:      seg.Length,
					Data:        seg.Data,
				})
			case KindCopy:
				composed = append(composed, Instruction{
					Kind:         KindCopy,
					SourceOffset: seg.SourceOffset,
					TargetOffset: targetPos,
					Length:       seg.Length,
				})
				if !touchedSourceOnce || seg.SourceOffset < minSrc {
					minSrc = seg.SourceOffset
				}
				if !touchedSourceOnce || seg.SourceOffset+seg.Length > maxSrc {
					maxSrc = seg.SourceOffset + seg.Length
				}
				touchedSourceOnce = true
			}
			targetPos += seg.Length
		}
	}

	combined := &Window{
		TargetViewLen: newer.TargetViewLen,
		Instructions:  composed,
	}
	if touchedSourceOnce {
		combined.SourceViewOffset = minSrc
		combined.SourceViewLen = maxSrc - minSrc
	}
	return combined, nil
}

// wholeWindowPassthrough reports whether newer consists of exactly one
// copy instruction spanning older's entire target view with no
// transformation — the case the oracle special-cases by standing the
// older window unmodified.
func wholeWindowPassthrough(newer, older *Window) (bool, bool) {
	if len(newer.Instructions) != 1 {
		return false, false
	}
	in := newer.Instructions[0]
	if in.Kind != KindCopy {
		return false, false
	}
	if in.SourceOffset != 0 || in.Length != older.TargetViewLen {
		return false, false
	}
	return true, true
}

// sliceTarget returns the ordered sub-segments of older's instruction
// program covering older's target range [offset, offset+length), each
// re-expressed as either a literal insert (bytes already known) or a copy
// against older's own source (one level further down the chain).
func sliceTarget(older *Window, offset, length int64) []Instruction {
	var out []Instruction
	end := offset + length

	for _, in := range older.Instructions {
		inEnd := in.TargetOffset + in.Length
		if inEnd <= offset || in.TargetOffset >= end {
			continue
		}
		segStart := max64(offset, in.TargetOffset)
		segEnd := min64(end, inEnd)
		local := segStart - in.TargetOffset
		segLen := segEnd - segStart

		switch in.Kind {
		case KindInsert:
			out = append(out, Instruction{
				Kind:   KindInsert,
				Length: segLen,
				Data:   in.Data[local : local+segLen],
			})
		case KindCopy:
			out = append(out, Instruction{
				Kind:         KindCopy,
				SourceOffset: in.SourceOffset + local,
				Length:       segLen,
			})
		}
	}
	return out
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
