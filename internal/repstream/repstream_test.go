package repstream

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"github.com/prn-tf/repstore/internal/engineerr"
	"github.com/prn-tf/repstore/internal/rep"
	"github.com/prn-tf/repstore/internal/strstore"
	"github.com/prn-tf/repstore/internal/trail"
)

type memReps struct {
	byKey map[string]*rep.Rep
	next  int
}

func newMemReps() *memReps { return &memReps{byKey: map[string]*rep.Rep{}} }

func (m *memReps) Read(ctx context.Context, tr *trail.Trail, key string) (*rep.Rep, error) {
	r, ok := m.byKey[key]
	if !ok {
		return nil, rep.ErrNotFound
	}
	cp := *r
	cp.Chunks = append([]rep.Chunk(nil), r.Chunks...)
	return &cp, nil
}

func (m *memReps) Write(ctx context.Context, tr *trail.Trail, r *rep.Rep) error {
	m.byKey[r.Key] = r
	return nil
}

func (m *memReps) WriteNew(ctx context.Context, tr *trail.Trail, r *rep.Rep) (string, error) {
	m.next++
	key := fmt.Sprintf("r%d", m.next)
	r.Key = key
	m.byKey[key] = r
	return key, nil
}

func (m *memReps) Delete(ctx context.Context, tr *trail.Trail, key string) error {
	if _, ok := m.byKey[key]; !ok {
		return rep.ErrNotFound
	}
	delete(m.byKey, key)
	return nil
}

type memStrings struct {
	byKey map[string][]byte
	next  int
}

func newMemStrings() *memStrings { return &memStrings{byKey: map[string][]byte{}} }

func (m *memStrings) Append(ctx context.Context, tr *trail.Trail, key string, data []byte) (string, error) {
	if key == "" {
		m.next++
		key = fmt.Sprintf("s%d", m.next)
		m.byKey[key] = append([]byte{}, data...)
		return key, nil
	}
	if _, ok := m.byKey[key]; !ok {
		return "", strstore.ErrNotFound
	}
	m.byKey[key] = append(m.byKey[key], data...)
	return key, nil
}

func (m *memStrings) Read(ctx context.Context, tr *trail.Trail, key string, offset int64, maxLen int) ([]byte, error) {
	data, ok := m.byKey[key]
	if !ok {
		return nil, strstore.ErrNotFound
	}
	if offset >= int64(len(data)) {
		return nil, nil
	}
	end := offset + int64(maxLen)
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return data[offset:end], nil
}

func (m *memStrings) Size(ctx context.Context, tr *trail.Trail, key string) (int64, error) {
	data, ok := m.byKey[key]
	if !ok {
		return 0, strstore.ErrNotFound
	}
	return int64(len(data)), nil
}

func (m *memStrings) Clear(ctx context.Context, tr *trail.Trail, key string) error {
	if _, ok := m.byKey[key]; !ok {
		return strstore.ErrNotFound
	}
	m.byKey[key] = nil
	return nil
}

func (m *memStrings) Delete(ctx context.Context, tr *trail.Trail, key string) error {
	if _, ok := m.byKey[key]; !ok {
		return strstore.ErrNotFound
	}
	delete(m.byKey, key)
	return nil
}

type noopTx struct{}

func (noopTx) Commit(ctx context.Context) error   { return nil }
func (noopTx) Rollback(ctx context.Context) error { return nil }

func newTestEngine() (*Engine, *memReps, *memStrings) {
	reps := newMemReps()
	strs := newMemStrings()
	return New(reps, strs), reps, strs
}

func writeFull(t *testing.T, ctx context.Context, e *Engine, tr *trail.Trail, repKey, txnID string, content []byte) {
	t.Helper()
	ws, err := e.OpenWrite(ctx, tr, repKey, txnID)
	if err != nil {
		t.Fatalf("OpenWrite: %v", err)
	}
	if _, err := ws.Write(ctx, content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := ws.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func readAll(t *testing.T, ctx context.Context, e *Engine, tr *trail.Trail, repKey string) []byte {
	t.Helper()
	rs, err := e.OpenRead(ctx, tr, repKey)
	if err != nil {
		t.Fatalf("OpenRead: %v", err)
	}
	var out []byte
	buf := make([]byte, 64)
	for {
		n, err := rs.Read(ctx, buf)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if n == 0 {
			break
		}
		out = append(out, buf[:n]...)
	}
	return out
}

// TestScenario1_CreateAndSeal covers creating a mutable rep, writing to it, and sealing it on write-stream close.
func TestScenario1_CreateAndSeal(t *testing.T) {
	ctx := context.Background()
	tr := trail.New(noopTx{}, zerolog.Nop())
	e, _, _ := newTestEngine()

	key, err := e.GetMutableRep(ctx, tr, nil, "txn1")
	if err != nil {
		t.Fatal(err)
	}

	writeFull(t, ctx, e, tr, key, "txn1", []byte("hello, world"))

	rp, err := e.Reps.Read(ctx, tr, key)
	if err != nil {
		t.Fatal(err)
	}
	want := md5.Sum([]byte("hello, world"))
	if rp.Checksum != want {
		t.Fatalf("checksum = %x, want %x", rp.Checksum, want)
	}
	if got := readAll(t, ctx, e, tr, key); string(got) != "hello, world" {
		t.Fatalf("read_all = %q", got)
	}
}

// TestScenario2_DeltifyAgainstSource covers deltifying a rep against a chosen source and reading it back.
func TestScenario2_DeltifyAgainstSource(t *testing.T) {
	ctx := context.Background()
	tr := trail.New(noopTx{}, zerolog.Nop())
	e, reps, strs := newTestEngine()

	r0, err := e.GetMutableRep(ctx, tr, nil, "txn1")
	if err != nil {
		t.Fatal(err)
	}
	writeFull(t, ctx, e, tr, r0, "txn1", []byte("hello, world"))

	r1, err := e.GetMutableRep(ctx, tr, nil, "txn1")
	if err != nil {
		t.Fatal(err)
	}
	writeFull(t, ctx, e, tr, r1, "txn1", []byte("hello, there"))

	if err := e.Deltify(ctx, tr, r1, r0); err != nil {
		t.Fatal(err)
	}

	rp, err := reps.Read(ctx, tr, r1)
	if err != nil {
		t.Fatal(err)
	}
	if rp.Kind != rep.KindDelta && rp.Kind != rep.KindFulltext {
		t.Fatalf("R1 kind = %v, want delta (or deltification size-guard no-op, also acceptable)", rp.Kind)
	}
	want := md5.Sum([]byte("hello, there"))
	if rp.Checksum != want {
		t.Fatalf("checksum = %x, want %x", rp.Checksum, want)
	}
	if got := readAll(t, ctx, e, tr, r1); string(got) != "hello, there" {
		t.Fatalf("read_all = %q", got)
	}
	if rp.Kind == rep.KindDelta {
		size, _ := strs.Size(ctx, tr, rp.Chunks[0].StringKey)
		if size >= 12 {
			t.Fatalf("chunk string size %d not smaller than fulltext", size)
		}
	}
}

// TestSelfDeltify_Refused covers refusing to deltify a rep against itself.
func TestSelfDeltify_Refused(t *testing.T) {
	ctx := context.Background()
	tr := trail.New(noopTx{}, zerolog.Nop())
	e, _, _ := newTestEngine()

	r0, err := e.GetMutableRep(ctx, tr, nil, "txn1")
	if err != nil {
		t.Fatal(err)
	}
	writeFull(t, ctx, e, tr, r0, "txn1", []byte("hello, world"))

	err = e.Deltify(ctx, tr, r0, r0)
	if err == nil {
		t.Fatal("expected error deltifying a rep against itself")
	}
	if !bytes.Contains([]byte(err.Error()), []byte("itself")) {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestWriteStream_RepNotMutable covers refusing to open a write stream on a rep whose owning transaction has committed.
func TestWriteStream_RepNotMutable(t *testing.T) {
	ctx := context.Background()
	tr := trail.New(noopTx{}, zerolog.Nop())
	e, reps, _ := newTestEngine()

	r0, err := e.GetMutableRep(ctx, tr, nil, "txn1")
	if err != nil {
		t.Fatal(err)
	}
	writeFull(t, ctx, e, tr, r0, "txn1", []byte("hello, world"))

	// Simulate the owning transaction having committed: clear txn_id.
	rp, err := reps.Read(ctx, tr, r0)
	if err != nil {
		t.Fatal(err)
	}
	rp.TxnID = ""
	if err := reps.Write(ctx, tr, rp); err != nil {
		t.Fatal(err)
	}

	_, err = e.OpenWrite(ctx, tr, r0, "txn1")
	if err != engineerr.ErrRepNotMutable {
		t.Fatalf("got %v, want ErrRepNotMutable", err)
	}
}
