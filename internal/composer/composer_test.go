package composer

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/prn-tf/repstore/internal/svndiff"
	"github.com/prn-tf/repstore/internal/trail"
)

func newTestArena() *trail.Arena {
	tr := trail.New(noopTx{}, zerolog.Nop())
	return tr.Arena()
}

type noopTx struct{}

func (noopTx) Commit(ctx context.Context) error   { return nil }
func (noopTx) Rollback(ctx context.Context) error { return nil }

func TestState_SingleWindowSelfContained(t *testing.T) {
	s := NewState(nil)
	w := &svndiff.Window{
		TargetViewLen: 5,
		Instructions: []svndiff.Instruction{
			{Kind: svndiff.KindInsert, TargetOffset: 0, Length: 5, Data: []byte("hello")},
		},
	}
	s.Feed(w)
	if !s.Done() {
		t.Fatalf("expected done after a source-free window")
	}
	if s.Combined() != w {
		t.Fatalf("expected combined to be the fed window")
	}
}

func TestState_TwoLinkFold(t *testing.T) {
	older := &svndiff.Window{
		SourceViewOffset: 0,
		SourceViewLen:    10,
		TargetViewLen:    10,
		Instructions: []svndiff.Instruction{
			{Kind: svndiff.KindCopy, SourceOffset: 0, TargetOffset: 0, Length: 10},
		},
	}
	newer := &svndiff.Window{
		SourceViewOffset: 2,
		SourceViewLen:    5,
		TargetViewLen:    8,
		Instructions: []svndiff.Instruction{
			{Kind: svndiff.KindCopy, SourceOffset: 2, TargetOffset: 0, Length: 5},
			{Kind: svndiff.KindInsert, TargetOffset: 5, Length: 3, Data: []byte("xyz")},
		},
	}

	s := NewState(newTestArena())
	s.Feed(newer)
	if s.Done() {
		t.Fatalf("single non-self-contained window should not be done yet")
	}
	s.Feed(older)
	defer s.Release()

	base := []byte("0123456789")
	combined := s.Combined()
	srcSlice := base[combined.SourceViewOffset : combined.SourceViewOffset+combined.SourceViewLen]
	out := make([]byte, combined.TargetViewLen)
	n, err := svndiff.Apply(combined, srcSlice, out)
	if err != nil {
		t.Fatal(err)
	}
	if string(out[:n]) != "23456xyz" {
		t.Fatalf("got %q", out[:n])
	}
}
