package svndiff

import (
	"bytes"
	"testing"
)

func TestApply_InsertOnly(t *testing.T) {
	w := &Window{
		TargetViewLen: 5,
		Instructions: []Instruction{
			{Kind: KindInsert, TargetOffset: 0, Length: 5, Data: []byte("hello")},
		},
	}
	out := make([]byte, 5)
	n, err := Apply(w, nil, out)
	if err != nil {
		t.Fatal(err)
	}
	if string(out[:n]) != "hello" {
		t.Fatalf("got %q", out[:n])
	}
}

func TestApply_CopyAndInsert(t *testing.T) {
	source := []byte("0123456789")
	w := &Window{
		SourceViewOffset: 2,
		SourceViewLen:    4,
		TargetViewLen:    7,
		Instructions: []Instruction{
			{Kind: KindCopy, SourceOffset: 2, TargetOffset: 0, Length: 4},
			{Kind: KindInsert, TargetOffset: 4, Length: 3, Data: []byte("XYZ")},
		},
	}
	out := make([]byte, 7)
	n, err := Apply(w, source[2:6], out)
	if err != nil {
		t.Fatal(err)
	}
	if string(out[:n]) != "2345XYZ" {
		t.Fatalf("got %q", out[:n])
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	w := &Window{
		SourceViewOffset: 10,
		SourceViewLen:    20,
		TargetViewLen:    30,
		Instructions: []Instruction{
			{Kind: KindCopy, SourceOffset: 10, TargetOffset: 0, Length: 20},
			{Kind: KindInsert, TargetOffset: 20, Length: 10, Data: []byte("abcdefghij")},
		},
	}
	payload := EncodeWindow(w)
	stream := Synthesize(1, payload)

	version, decoded, err := ParseStream(stream)
	if err != nil {
		t.Fatal(err)
	}
	if version != 1 {
		t.Fatalf("version = %d, want 1", version)
	}
	if decoded.SourceViewOffset != w.SourceViewOffset || decoded.SourceViewLen != w.SourceViewLen || decoded.TargetViewLen != w.TargetViewLen {
		t.Fatalf("header mismatch: %+v vs %+v", decoded, w)
	}
	if len(decoded.Instructions) != 2 {
		t.Fatalf("got %d instructions, want 2", len(decoded.Instructions))
	}
	if !bytes.Equal(decoded.Instructions[1].Data, w.Instructions[1].Data) {
		t.Fatalf("insert data mismatch")
	}
}

func TestProducer_Diff_ExactMatch(t *testing.T) {
	base := bytes.Repeat([]byte("A"), 100)
	target := append(bytes.Repeat([]byte("A"), 100), bytes.Repeat([]byte("B"), 100)...)

	p := NewProducer()
	result, err := p.Diff(bytes.NewReader(base), bytes.NewReader(target))
	if err != nil {
		t.Fatal(err)
	}

	// Reconstruct by applying every window in sequence and concatenating.
	var rebuilt []byte
	for _, w := range result.Windows {
		out := make([]byte, w.TargetViewLen)
		srcSlice := sliceOrEmpty(base, w.SourceViewOffset, w.SourceViewLen)
		n, err := Apply(w, srcSlice, out)
		if err != nil {
			t.Fatal(err)
		}
		rebuilt = append(rebuilt, out[:n]...)
	}

	if !bytes.Equal(rebuilt, target) {
		t.Fatalf("reconstructed target mismatch: got %d bytes, want %d", len(rebuilt), len(target))
	}
}

func TestCompose_TwoLinks(t *testing.T) {
	// older: target[0:10) = copy base[0:10)
	older := &Window{
		SourceViewOffset: 0,
		SourceViewLen:    10,
		TargetViewLen:    10,
		Instructions: []Instruction{
			{Kind: KindCopy, SourceOffset: 0, TargetOffset: 0, Length: 10},
		},
	}
	// newer: its own target[0:5) = older.target[2:7) (copy), target[5:8) = insert "xyz"
	newer := &Window{
		SourceViewOffset: 2,
		SourceViewLen:    5,
		TargetViewLen:    8,
		Instructions: []Instruction{
			{Kind: KindCopy, SourceOffset: 2, TargetOffset: 0, Length: 5},
			{Kind: KindInsert, TargetOffset: 5, Length: 3, Data: []byte("xyz")},
		},
	}

	combined, res := Compose(newer, older)
	if res != nil {
		t.Fatalf("expected a combined window, got UseSecond result: %+v", res)
	}

	base := []byte("0123456789")
	srcSlice := base[combined.SourceViewOffset : combined.SourceViewOffset+combined.SourceViewLen]
	out := make([]byte, combined.TargetViewLen)
	n, err := Apply(combined, srcSlice, out)
	if err != nil {
		t.Fatal(err)
	}
	if string(out[:n]) != "23456xyz" {
		t.Fatalf("got %q, want %q", out[:n], "23456xyz")
	}
}

func TestCompose_WholeWindowPassthrough(t *testing.T) {
	older := &Window{
		SourceViewOffset: 5,
		SourceViewLen:    10,
		TargetViewLen:    10,
		Instructions: []Instruction{
			{Kind: KindCopy, SourceOffset: 5, TargetOffset: 0, Length: 10},
		},
	}
	newer := &Window{
		SourceViewOffset: 0,
		SourceViewLen:    10,
		TargetViewLen:    10,
		Instructions: []Instruction{
			{Kind: KindCopy, SourceOffset: 0, TargetOffset: 0, Length: 10},
		},
	}

	combined, res := Compose(newer, older)
	if combined != nil {
		t.Fatalf("expected nil combined window for passthrough, got %+v", combined)
	}
	if res == nil || !res.UseSecond {
		t.Fatalf("expected UseSecond result, got %+v", res)
	}
	if res.SourceViewOffset != 5 || res.SourceViewLen != 10 {
		t.Fatalf("unexpected spliced source view: %+v", res)
	}
}

func sliceOrEmpty(b []byte, off, length int64) []byte {
	if length == 0 {
		return nil
	}
	return b[off : off+length]
}
