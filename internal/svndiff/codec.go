package svndiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Magic is the svndiff stream header, always followed by a single version
// byte. Stored chunk strings omit this header entirely; only the
// reconstructed stream handed to the parser carries it.
const Magic = "SVN"

// Synthesize re-attaches the 4-byte magic header ("SVN" + version) in
// front of a chunk's stored payload bytes, producing the stream the parser
// expects: the chunk's stored bytes prefixed with a synthesized 4-byte
// header.
func Synthesize(version byte, payload []byte) []byte {
	out := make([]byte, 0, 4+len(payload))
	out = append(out, Magic...)
	out = append(out, version)
	out = append(out, payload...)
	return out
}

// ParseStream splits a full svndiff stream (magic + version + one window's
// payload) into its version byte and decoded Window.
func ParseStream(data []byte) (version byte, window *Window, err error) {
	if len(data) < 4 {
		return 0, nil, fmt.Errorf("svndiff: stream too short (%d bytes)", len(data))
	}
	if string(data[:3]) != Magic {
		return 0, nil, fmt.Errorf("svndiff: bad magic %q", data[:3])
	}
	version = data[3]
	window, err = DecodeWindow(data[4:])
	return version, window, err
}

// EncodeWindow serializes window into the post-header payload bytes
// that get persisted as one chunk's backing string.
func EncodeWindow(w *Window) []byte {
	var buf bytes.Buffer
	writeInt64(&buf, w.SourceViewOffset)
	writeInt64(&buf, w.SourceViewLen)
	writeInt64(&buf, w.TargetViewLen)
	writeUint32(&buf, uint32(len(w.Instructions)))

	for _, in := range w.Instructions {
		buf.WriteByte(byte(in.Kind))
		writeInt64(&buf, in.SourceOffset)
		writeInt64(&buf, in.TargetOffset)
		writeInt64(&buf, in.Length)
		if in.Kind == KindInsert {
			writeUint32(&buf, uint32(len(in.Data)))
			buf.Write(in.Data)
		}
	}

	return buf.Bytes()
}

// DecodeWindow parses the post-header payload bytes produced by
// EncodeWindow back into a Window.
func DecodeWindow(payload []byte) (*Window, error) {
	r := bytes.NewReader(payload)

	sourceViewOffset, err := readInt64(r)
	if err != nil {
		return nil, fmt.Errorf("svndiff: decode source view offset: %w", err)
	}
	sourceViewLen, err := readInt64(r)
	if err != nil {
		return nil, fmt.Errorf("svndiff: decode source view len: %w", err)
	}
	targetViewLen, err := readInt64(r)
	if err != nil {
		return nil, fmt.Errorf("svndiff: decode target view len: %w", err)
	}
	count, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("svndiff: decode instruction count: %w", err)
	}

	w := &Window{
		SourceViewOffset: sourceViewOffset,
		SourceViewLen:    sourceViewLen,
		TargetViewLen:    targetViewLen,
		Instructions:     make([]Instruction, 0, count),
	}

	for i := uint32(0); i < count; i++ {
		kindByte, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("svndiff: decode instruction %d kind: %w", i, err)
		}
		srcOff, err := readInt64(r)
		if err != nil {
			return nil, fmt.Errorf("svndiff: decode instruction %d source offset: %w", i, err)
		}
		tgtOff, err := readInt64(r)
		if err != nil {
			return nil, fmt.Errorf("svndiff: decode instruction %d target offset: %w", i, err)
		}
		length, err := readInt64(r)
		if err != nil {
			return nil, fmt.Errorf("svndiff: decode instruction %d length: %w", i, err)
		}

		in := Instruction{
			Kind:         InstructionKind(kindByte),
			SourceOffset: srcOff,
			TargetOffset: tgtOff,
			Length:       length,
		}

		if in.Kind == KindInsert {
			dataLen, err := readUint32(r)
			if err != nil {
				return nil, fmt.Errorf("svndiff: decode instruction %d data length: %w", i, err)
			}
			data := make([]byte, dataLen)
			if _, err := r.Read(data); err != nil {
				return nil, fmt.Errorf("svndiff: decode instruction %d data: %w", i, err)
			}
			in.Data = data
		}

		w.Instructions = append(w.Instructions, in)
	}

	return w, nil
}

func writeInt64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	buf.Write(b[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func readInt64(r *bytes.Reader) (int64, error) {
	var b [8]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
