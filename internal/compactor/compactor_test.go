package compactor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/prn-tf/repstore/internal/engineerr"
	"github.com/prn-tf/repstore/internal/rep"
	"github.com/prn-tf/repstore/internal/repsvc"
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

func newTestService() *repsvc.Service {
	begin := func(ctx context.Context) (trail.Tx, error) { return noopTx{}, nil }
	return repsvc.New(newMemReps(), newMemStrings(), nil, nil, nil, zerolog.Nop(), begin, repsvc.Config{})
}

// writeRep writes content into a fresh mutable rep and returns its key.
func writeRep(t *testing.T, svc *repsvc.Service, content string) string {
	t.Helper()
	ctx := context.Background()

	tr, err := svc.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	key, err := svc.GetMutableRep(ctx, tr, "", "txn1")
	if err != nil {
		t.Fatal(err)
	}
	ws, err := svc.OpenWriteStream(ctx, tr, key, "txn1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ws.Write(ctx, []byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := ws.Close(ctx); err != nil {
		t.Fatal(err)
	}
	return key
}

// foxDog and foxCat share all but their last word, and are long enough
// that the encoded delta of foxCat against foxDog is smaller than foxCat's
// fulltext, so Deltify's size guard lets the delta through.
var (
	foxDog = strings.Repeat("the quick brown fox jumps over the lazy dog\n", 10)
	foxCat = strings.Repeat("the quick brown fox jumps over the lazy dog\n", 9) + "the quick brown fox jumps over the lazy cat\n"
)

func TestWorker_RunOnce_Deltifies(t *testing.T) {
	svc := newTestService()

	sourceKey := writeRep(t, svc, foxDog)
	targetKey := writeRep(t, svc, foxCat)

	source := func(ctx context.Context, limit int) ([]Candidate, error) {
		return []Candidate{{TargetKey: targetKey, SourceKey: sourceKey}}, nil
	}

	w := NewWorker(svc, source, nil, Config{}, zerolog.Nop())

	result, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.RepsScanned != 1 {
		t.Fatalf("RepsScanned = %d, want 1", result.RepsScanned)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if result.RepsDeltified != 1 {
		t.Fatalf("RepsDeltified = %d, want 1 (skipped=%d)", result.RepsDeltified, result.RepsSkipped)
	}

	got := w.LastResult()
	if got != result {
		t.Fatal("LastResult did not return the sweep just run")
	}

	ctx := context.Background()
	tr, err := svc.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	content, err := svc.ReadAll(ctx, tr, targetKey)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != foxCat {
		t.Fatalf("ReadAll after deltify = %q", content)
	}
}

func TestWorker_RunOnce_SizeGuardCountsAsSkipped(t *testing.T) {
	svc := newTestService()

	sourceKey := writeRep(t, svc, "x")
	targetKey := writeRep(t, svc, "a completely unrelated and much longer body of text")

	source := func(ctx context.Context, limit int) ([]Candidate, error) {
		return []Candidate{{TargetKey: targetKey, SourceKey: sourceKey}}, nil
	}

	w := NewWorker(svc, source, nil, Config{}, zerolog.Nop())

	result, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.RepsDeltified != 0 || result.RepsSkipped != 1 {
		t.Fatalf("got deltified=%d skipped=%d, want 0/1", result.RepsDeltified, result.RepsSkipped)
	}
}

func TestWorker_RunOnce_RecordsErrors(t *testing.T) {
	svc := newTestService()

	sourceKey := writeRep(t, svc, "hello")

	source := func(ctx context.Context, limit int) ([]Candidate, error) {
		return []Candidate{{TargetKey: "does-not-exist", SourceKey: sourceKey}}, nil
	}

	w := NewWorker(svc, source, nil, Config{}, zerolog.Nop())

	result, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("Errors = %v, want 1 entry", result.Errors)
	}
	if result.RepsDeltified != 0 || result.RepsSkipped != 0 {
		t.Fatalf("got deltified=%d skipped=%d, want 0/0", result.RepsDeltified, result.RepsSkipped)
	}
}

func TestWorker_StartStop(t *testing.T) {
	svc := newTestService()
	source := func(ctx context.Context, limit int) ([]Candidate, error) {
		return nil, nil
	}

	w := NewWorker(svc, source, nil, Config{Interval: 0}, zerolog.Nop())

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(ctx); err == nil {
		t.Fatal("expected error starting an already-running worker")
	}
	if err := w.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("second Stop should be idempotent, got %v", err)
	}
}

func TestWorker_ReadWithFallback_PassesThroughNonCorruptErrors(t *testing.T) {
	svc := newTestService()
	w := NewWorker(svc, nil, nil, Config{}, zerolog.Nop())

	tr, err := svc.Begin(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.ReadWithFallback(context.Background(), tr, "does-not-exist"); err == nil {
		t.Fatal("expected an error for a nonexistent rep")
	} else if errors.Is(err, engineerr.ErrCorrupt) {
		t.Fatalf("ErrNotFound should not be reported as corruption: %v", err)
	}
}

func TestWorker_ReadWithFallback_AttemptsUndeltifyOnCorruption(t *testing.T) {
	svc := newTestService()
	w := NewWorker(svc, nil, nil, Config{}, zerolog.Nop())

	sourceKey := writeRep(t, svc, foxDog)
	targetKey := writeRep(t, svc, foxCat)

	ctx := context.Background()
	tr, err := svc.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Deltify(ctx, tr, targetKey, sourceKey); err != nil {
		t.Fatal(err)
	}

	// Simulate bit-level corruption of the checksum recorded alongside the
	// delta chain: the chain itself reconstructs fine, but verification
	// at read time (and again inside Undeltify's own reconstruction pass)
	// both detect the mismatch, so the fallback cannot silently repair it.
	r, err := svc.Reps().Read(ctx, tr, targetKey)
	if err != nil {
		t.Fatal(err)
	}
	r.Checksum[0] ^= 0xFF
	if err := svc.RunTrail(ctx, "corrupt", func(ctx context.Context, tr *trail.Trail) error {
		return svc.Reps().Write(ctx, tr, r)
	}); err != nil {
		t.Fatal(err)
	}

	tr2, err := svc.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	_, err = w.ReadWithFallback(ctx, tr2, targetKey)
	if err == nil {
		t.Fatal("expected the corrupted rep to still fail after the fallback attempt")
	}
	if !errors.Is(err, engineerr.ErrCorrupt) {
		t.Fatalf("expected the wrapped error to preserve ErrCorrupt, got %v", err)
	}
}
