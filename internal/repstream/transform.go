package repstream

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"

	"github.com/prn-tf/repstore/internal/engineerr"
	"github.com/prn-tf/repstore/internal/rep"
	"github.com/prn-tf/repstore/internal/svndiff"
	"github.com/prn-tf/repstore/internal/trail"
)

// streamSource adapts a ReadStream to io.Reader for the diff producer.
type streamSource struct {
	ctx context.Context
	rs  *ReadStream
}

func (s *streamSource) Read(p []byte) (int, error) {
	n, err := s.rs.Read(s.ctx, p)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Deltify replaces target's representation in place with a delta against
// source. A fulltext target is replaced only when the encoded diff is
// smaller than its fulltext string; a delta target is always replaced.
// target == source is refused as corruption.
func (e *Engine) Deltify(ctx context.Context, tr *trail.Trail, targetKey, sourceKey string) error {
	if targetKey == sourceKey {
		return fmt.Errorf("%w: cannot deltify %s against itself", engineerr.ErrCorrupt, targetKey)
	}

	targetRep, err := e.Reps.Read(ctx, tr, targetKey)
	if err != nil {
		return err
	}
	sourceRep, err := e.Reps.Read(ctx, tr, sourceKey)
	if err != nil {
		return err
	}

	sourceStream, err := e.OpenRead(ctx, tr, sourceKey)
	if err != nil {
		return err
	}
	targetStream, err := e.OpenRead(ctx, tr, targetKey)
	if err != nil {
		return err
	}

	result, err := e.Producer.Diff(&streamSource{ctx: ctx, rs: sourceStream}, &streamSource{ctx: ctx, rs: targetStream})
	if err != nil {
		return err
	}
	if result == nil {
		return engineerr.ErrDeltaMD5Absent
	}
	gotMD5 := result.TargetMD5
	if targetRep.ChecksumSealed() && gotMD5 != targetRep.Checksum {
		return fmt.Errorf("%w: deltify producer checksum does not match target %s", engineerr.ErrCorrupt, targetKey)
	}

	const version byte = 1
	chunks := make([]rep.Chunk, len(result.Windows))
	var totalDiffSize int64
	for i, w := range result.Windows {
		payload := svndiff.EncodeWindow(w)
		key, err := e.Strings.Append(ctx, tr, "", payload)
		if err != nil {
			return err
		}
		var offset int64
		if i > 0 {
			offset = chunks[i-1].Offset + chunks[i-1].Size
		}
		chunks[i] = rep.Chunk{
			Offset:    offset,
			Size:      w.TargetViewLen,
			Version:   version,
			StringKey: key,
			RepKey:    sourceKey,
			Checksum:  sourceRep.Checksum,
		}
		totalDiffSize += int64(len(payload))
	}

	if targetRep.Kind == rep.KindFulltext {
		oldSize, err := e.Strings.Size(ctx, tr, targetRep.StringKey)
		if err != nil {
			return err
		}
		if totalDiffSize >= oldSize {
			for _, c := range chunks {
				_ = e.Strings.Delete(ctx, tr, c.StringKey)
			}
			return nil
		}
	}

	newRep := &rep.Rep{
		Key:      targetKey,
		Kind:     rep.KindDelta,
		Checksum: targetRep.Checksum,
		Chunks:   chunks,
	}
	if err := newRep.Validate(); err != nil {
		return fmt.Errorf("%w: %v", engineerr.ErrCorrupt, err)
	}
	if err := e.Reps.Write(ctx, tr, newRep); err != nil {
		return err
	}

	switch targetRep.Kind {
	case rep.KindFulltext:
		return e.Strings.Delete(ctx, tr, targetRep.StringKey)
	case rep.KindDelta:
		for _, c := range targetRep.Chunks {
			if err := e.Strings.Delete(ctx, tr, c.StringKey); err != nil {
				return err
			}
		}
	}
	return nil
}

// Undeltify replaces a delta rep with a fulltext rep holding its
// materialized content. A no-op if the rep is already fulltext.
func (e *Engine) Undeltify(ctx context.Context, tr *trail.Trail, repKey string) error {
	rp, err := e.Reps.Read(ctx, tr, repKey)
	if err != nil {
		return err
	}
	if rp.Kind == rep.KindFulltext {
		return nil
	}

	rs, err := e.OpenRead(ctx, tr, repKey)
	if err != nil {
		return err
	}

	sum := md5.New()
	var newKey string
	buf := make([]byte, 64*1024)
	wrote := false
	for {
		n, err := rs.Read(ctx, buf)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
		key, err := e.Strings.Append(ctx, tr, newKey, buf[:n])
		if err != nil {
			return err
		}
		newKey = key
		sum.Write(buf[:n])
		wrote = true
	}
	if !wrote {
		key, err := e.Strings.Append(ctx, tr, "", nil)
		if err != nil {
			return err
		}
		newKey = key
	}

	var got [16]byte
	copy(got[:], sum.Sum(nil))
	if got != rp.Checksum {
		return fmt.Errorf("%w: undeltify checksum mismatch for rep %s", engineerr.ErrCorrupt, repKey)
	}

	newRep := &rep.Rep{
		Key:       repKey,
		Kind:      rep.KindFulltext,
		Checksum:  rp.Checksum,
		StringKey: newKey,
	}
	if err := e.Reps.Write(ctx, tr, newRep); err != nil {
		return err
	}

	for _, c := range rp.Chunks {
		if err := e.Strings.Delete(ctx, tr, c.StringKey); err != nil {
			return err
		}
	}
	return nil
}
