package workload

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"iter"
	"os"

	jsoniter "github.com/json-iterator/go"
)

// [CRC32 4B] [Seq 8B] [Size 4B] [Payload NB]
// CRC covers Seq, Size and Payload. Payload is the JSON encoding of an Op.

const (
	headerSize   = 4 + 8 + 4
	maxFrameSize = 1 << 20
)

var ErrCorruptTrace = errors.New("corrupt trace")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TraceWriter appends operations to a trace file.
type TraceWriter struct {
	file *os.File
	buf  *bufio.Writer
	seq  uint64
}

// CreateTrace creates or truncates the trace file at path.
func CreateTrace(path string) (*TraceWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	return &TraceWriter{
		file: f,
		buf:  bufio.NewWriter(f),
	}, nil
}

func (w *TraceWriter) Append(op Op) error {
	payload, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("encode op: %w", err)
	}

	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint64(header[4:12], w.seq)
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(payload)))

	checksum := crc32.NewIEEE()
	checksum.Write(header[4:])
	checksum.Write(payload)
	binary.LittleEndian.PutUint32(header[0:4], checksum.Sum32())

	if _, err := w.buf.Write(header); err != nil {
		return err
	}
	if _, err := w.buf.Write(payload); err != nil {
		return err
	}
	w.seq++
	return nil
}

// Count is the number of operations appended so far.
func (w *TraceWriter) Count() int {
	return int(w.seq)
}

func (w *TraceWriter) Close() error {
	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return err
	}
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// WriteTrace stores every operation of ops at path and returns how many were written.
func WriteTrace(path string, ops iter.Seq2[Op, error]) (int, error) {
	w, err := CreateTrace(path)
	if err != nil {
		return 0, err
	}
	for op, err := range ops {
		if err == nil {
			err = w.Append(op)
		}
		if err != nil {
			w.Close()
			return w.Count(), err
		}
	}
	return w.Count(), w.Close()
}

// ReadTrace replays a trace file. Iteration stops at the first error; a
// damaged or truncated frame yields ErrCorruptTrace.
func ReadTrace(path string) iter.Seq2[Op, error] {
	return func(yield func(Op, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			yield(Op{}, err)
			return
		}
		defer f.Close()

		r := bufio.NewReader(f)
		for seq := uint64(0); ; seq++ {
			op, err := readFrame(r, seq)
			if err == io.EOF {
				return
			}
			if !yield(op, err) || err != nil {
				return
			}
		}
	}
}

func readFrame(r *bufio.Reader, seq uint64) (Op, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.EOF {
			return Op{}, io.EOF
		}
		return Op{}, fmt.Errorf("%w: frame %d: short header", ErrCorruptTrace, seq)
	}

	storedCRC := binary.LittleEndian.Uint32(header[0:4])
	gotSeq := binary.LittleEndian.Uint64(header[4:12])
	size := binary.LittleEndian.Uint32(header[12:16])

	if size > maxFrameSize {
		return Op{}, fmt.Errorf("%w: frame %d: size %d", ErrCorruptTrace, seq, size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Op{}, fmt.Errorf("%w: frame %d: short payload", ErrCorruptTrace, seq)
	}

	checksum := crc32.NewIEEE()
	checksum.Write(header[4:])
	checksum.Write(payload)
	if checksum.Sum32() != storedCRC {
		return Op{}, fmt.Errorf("%w: frame %d: crc mismatch", ErrCorruptTrace, seq)
	}
	if gotSeq != seq {
		return Op{}, fmt.Errorf("%w: frame %d: out of sequence (%d)", ErrCorruptTrace, seq, gotSeq)
	}

	var op Op
	if err := json.Unmarshal(payload, &op); err != nil {
		return Op{}, fmt.Errorf("%w: frame %d: %v", ErrCorruptTrace, seq, err)
	}
	return op, nil
}

// LoadTrace reads a whole trace and rejects operations of unknown kinds.
func LoadTrace(path string) ([]Op, error) {
	var ops []Op
	for op, err := range ReadTrace(path) {
		if err != nil {
			return nil, err
		}
		if _, err := ParseKind(string(op.Kind)); err != nil {
			return nil, fmt.Errorf("%s: op %d: %w", path, len(ops), err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}
