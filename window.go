package zipvault

import (
	"fmt"
	"os"
)

// window is a random-access byte reader over a local file, backed by a
// single fixed-size buffer. It is not safe for concurrent use: it carries
// exactly one buffered range at a time. Entry content streams do not read
// through it; they open their own file handle (see openPayload).
type window struct {
	file   *os.File
	length int64

	// buf holds the bytes for [start, start+len(valid)) of the file.
	// valid is the slice of buf actually populated by the last read.
	buf    [blockSize]byte
	start  int64
	valid  []byte
}

func openWindow(path string) (*window, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIoError, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrIoError, err)
	}
	return &window{file: f, length: info.Size()}, nil
}

func (w *window) close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// contains reports whether [offset, offset+size) is fully resident in the
// current window.
func (w *window) contains(offset int64, size int) bool {
	if len(w.valid) == 0 {
		return false
	}
	end := w.start + int64(len(w.valid))
	return offset >= w.start && offset+int64(size) <= end
}

// read ensures that [offset, offset+size) is resident in the window,
// re-issuing a single positioned read from the file only when necessary.
// size must be in [1, blockSize] and offset in [0, length).
func (w *window) read(offset int64, size int) ([]byte, error) {
	if size < 1 || size > blockSize {
		return nil, fmt.Errorf("%w: read size %d outside [1, %d]", ErrInvalidArgument, size, blockSize)
	}
	if offset < 0 || offset >= w.length {
		return nil, fmt.Errorf("%w: offset %d outside [0, %d)", ErrInvalidArgument, offset, w.length)
	}
	if !w.contains(offset, size) {
		if err := w.fill(offset); err != nil {
			return nil, err
		}
		if !w.contains(offset, size) {
			return nil, fmt.Errorf("%w: short read at offset %d, wanted %d bytes", ErrMalformedArchive, offset, size)
		}
	}
	rel := offset - w.start
	return w.valid[rel : rel+int64(size)], nil
}

// fill loads a fresh window of up to blockSize bytes starting at offset.
func (w *window) fill(offset int64) error {
	want := w.length - offset
	if want > blockSize {
		want = blockSize
	}
	n, err := w.file.ReadAt(w.buf[:want], offset)
	if err != nil && n == 0 {
		return fmt.Errorf("%w: %v", ErrIoError, err)
	}
	w.start = offset
	w.valid = w.buf[:n]
	return nil
}

// sliceAt reads exactly size bytes at offset into a freshly-allocated
// slice, looping over window.read when size exceeds blockSize.
func (w *window) sliceAt(offset int64, size int) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	if size <= blockSize {
		b, err := w.read(offset, size)
		if err != nil {
			return nil, err
		}
		out := make([]byte, size)
		copy(out, b)
		return out, nil
	}
	out := make([]byte, size)
	remaining := size
	pos := 0
	for remaining > 0 {
		chunk := remaining
		if chunk > blockSize {
			chunk = blockSize
		}
		b, err := w.read(offset+int64(pos), chunk)
		if err != nil {
			return nil, err
		}
		copy(out[pos:pos+chunk], b)
		pos += chunk
		remaining -= chunk
	}
	return out, nil
}
