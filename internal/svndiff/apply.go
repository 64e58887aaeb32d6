package svndiff

import "fmt"

// Apply executes window's instruction stream against source, writing up
// to len(out) reconstructed target bytes into out and returning how many
// were written. source must cover window's declared source view; callers
// read it via the string-store adapter keyed by (SourceViewOffset,
// SourceViewLen) before calling Apply.
func Apply(window *Window, source []byte, out []byte) (int, error) {
	if window.Empty() {
		return 0, nil
	}

	limit := int64(len(out))
	if limit > window.TargetViewLen {
		limit = window.TargetViewLen
	}

	var written int64
	for _, in := range window.Instructions {
		if written >= limit {
			break
		}
		remaining := limit - written
		n := in.Length
		if n > remaining {
			n = remaining
		}

		switch in.Kind {
		case KindCopy:
			rel := in.SourceOffset - window.SourceViewOffset
			if rel < 0 || rel+n > int64(len(source)) {
				return int(written), fmt.Errorf("svndiff: copy instruction reads [%d,%d) outside source buffer of length %d",
					rel, rel+n, len(source))
			}
			copy(out[written:written+n], source[rel:rel+n])
		case KindInsert:
			if n > int64(len(in.Data)) {
				return int(written), fmt.Errorf("svndiff: insert instruction declares %d bytes but only %d present", n, len(in.Data))
			}
			copy(out[written:written+n], in.Data[:n])
		default:
			return int(written), fmt.Errorf("svndiff: unknown instruction kind %d", in.Kind)
		}
		written += n
	}

	return int(written), nil
}
