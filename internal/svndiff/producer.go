package svndiff

import (
	"crypto/md5"
	"io"
)

// matchLen is the minimum run length worth emitting as a copy instruction
// instead of folding it into the surrounding insert.
const matchLen = 16

// DefaultWindowSize is used by Diff when the caller doesn't override it.
const DefaultWindowSize = 64 * 1024

// Producer is the diff oracle's producer: it reads a base and a target
// stream and emits a sequence of windows plus the target's MD5. It is a
// greedy matcher against base (it copies from the most recent base offset
// sharing the next 16 bytes and extends that run as far as it matches;
// it does not search for the longest match), not a byte-for-byte
// svndiff-compatible encoder — the wire contract it must honor is
// Compose/Apply's algebra, not any particular on-disk dialect.
type Producer struct {
	WindowSize int64
}

// NewProducer returns a Producer using DefaultWindowSize.
func NewProducer() *Producer {
	return &Producer{WindowSize: DefaultWindowSize}
}

// Result is the output of a Diff run.
type Result struct {
	Windows  []*Window
	TargetMD5 [16]byte
}

// Diff reads all of base and target and produces windows covering target,
// each sized at most p.WindowSize bytes of target content, diffed against
// the entirety of base (so cross-window copies into base are possible;
// cross-window copies between two target windows are not — each window
// is decoded independently, matching the per-chunk chain-walk).
func (p *Producer) Diff(base, target io.Reader) (*Result, error) {
	baseBytes, err := io.ReadAll(base)
	if err != nil {
		return nil, err
	}
	targetBytes, err := io.ReadAll(target)
	if err != nil {
		return nil, err
	}

	windowSize := p.WindowSize
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}

	index := buildMatchIndex(baseBytes)

	var windows []*Window
	for off := int64(0); off < int64(len(targetBytes)); off += windowSize {
		end := off + windowSize
		if end > int64(len(targetBytes)) {
			end = int64(len(targetBytes))
		}
		windows = append(windows, diffOneWindow(baseBytes, targetBytes[off:end], index))
	}
	if len(windows) == 0 {
		windows = []*Window{{}}
	}

	return &Result{
		Windows:   windows,
		TargetMD5: md5.Sum(targetBytes),
	}, nil
}

// matchIndex maps a matchLen-byte prefix to its most recent offset in base.
type matchIndex map[string]int64

func buildMatchIndex(base []byte) matchIndex {
	idx := make(matchIndex)
	if len(base) < matchLen {
		return idx
	}
	for i := 0; i+matchLen <= len(base); i++ {
		idx[string(base[i:i+matchLen])] = int64(i)
	}
	return idx
}

// diffOneWindow greedily matches chunk against base using index, emitting
// Copy instructions for runs found in base and Insert instructions for
// everything else.
func diffOneWindow(base, chunk []byte, index matchIndex) *Window {
	w := &Window{TargetViewLen: int64(len(chunk))}
	if len(chunk) == 0 {
		return w
	}

	var (
		pos        int64
		pendingIns []byte
		insStart   int64
		minSrc     = int64(-1)
		maxSrc     int64
	)

	flushInsert := func(upto int64) {
		if len(pendingIns) == 0 {
			return
		}
		w.Instructions = append(w.Instructions, Instruction{
			Kind:         KindInsert,
			TargetOffset: insStart,
			Length:       int64(len(pendingIns)),
			Data:         pendingIns,
		})
		pendingIns = nil
	}

	for pos < int64(len(chunk)) {
		if int(pos)+matchLen <= len(chunk) {
			if baseOff, ok := index[string(chunk[pos:pos+matchLen])]; ok {
				runLen := int64(matchLen)
				for int(pos+runLen) < len(chunk) && int(baseOff+runLen) < len(base) && chunk[pos+runLen] == base[baseOff+runLen] {
					runLen++
				}

				flushInsert(pos)
				w.Instructions = append(w.Instructions, Instruction{
					Kind:         KindCopy,
					SourceOffset: baseOff,
					TargetOffset: pos,
					Length:       runLen,
				})
				if minSrc == -1 || baseOff < minSrc {
					minSrc = baseOff
				}
				if baseOff+runLen > maxSrc {
					maxSrc = baseOff + runLen
				}
				pos += runLen
				continue
			}
		}

		if len(pendingIns) == 0 {
			insStart = pos
		}
		pendingIns = append(pendingIns, chunk[pos])
		pos++
	}
	flushInsert(pos)

	if minSrc >= 0 {
		w.SourceViewOffset = minSrc
		w.SourceViewLen = maxSrc - minSrc
	}
	return w
}
