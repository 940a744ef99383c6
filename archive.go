package zipvault

import (
	"io"
	"iter"
	"os"
)

// ArchiveView owns the file handle, the single read window, the text
// codec, the parsed end-of-archive tail, and the derived directory
// descriptor for one open archive. It is immutable after initial parse
// except for the read window's internal position.
type ArchiveView struct {
	path     string
	w        *window
	dec      textDecoder
	observer Observer

	tail    *archiveTail
	dir     directoryInfo
	entries []centralEntry

	pos         int
	commentDone bool
}

// Option configures ReadArchive.
type Option func(*archiveOptions)

type archiveOptions struct {
	codec      Codec
	observer   Observer
	detectUTF8 bool
}

// WithCodec overrides the default CP437 code page used to decode names
// and comments that do not carry the UTF-8 flag.
func WithCodec(c Codec) Option {
	return func(o *archiveOptions) { o.codec = c }
}

// WithObserver installs an Observer that receives parse events as the
// archive is located and walked.
func WithObserver(obs Observer) Option {
	return func(o *archiveOptions) { o.observer = obs }
}

// WithUTF8Detection enables a heuristic fallback for entry names that
// aren't flagged UTF-8 (general-purpose flag bit 11 clear): if the raw
// name bytes are valid UTF-8 and contain something outside the
// CP437-compatible ASCII-like range, the name is decoded as UTF-8 anyway
// instead of through the configured code page. Off by default: without
// this option, name decoding follows the flag bit alone, exactly like
// comment decoding does.
func WithUTF8Detection() Option {
	return func(o *archiveOptions) { o.detectUTF8 = true }
}

// ReadArchive opens the ZIP archive at path and parses its end-of-archive
// tail and central directory. The returned ArchiveView must be closed by
// the caller on every exit path.
func ReadArchive(path string, opts ...Option) (*ArchiveView, error) {
	cfg := archiveOptions{codec: CP437, observer: NoopObserver}
	for _, opt := range opts {
		opt(&cfg)
	}

	w, err := openWindow(path)
	if err != nil {
		return nil, err
	}

	tail, err := locateEnd(w, cfg.observer)
	if err != nil {
		w.close()
		return nil, err
	}

	dir, err := reconcileDirectory(tail)
	if err != nil {
		w.close()
		return nil, err
	}

	dec := newTextDecoder(cfg.codec, cfg.detectUTF8)
	entries, err := walkDirectory(w, dir, dec, cfg.observer)
	if err != nil {
		w.close()
		return nil, err
	}

	return &ArchiveView{
		path:     path,
		w:        w,
		dec:      dec,
		observer: cfg.observer,
		tail:     tail,
		dir:      dir,
		entries:  entries,
	}, nil
}

// Close releases the file handle and the window buffer. It is safe to
// call more than once.
func (a *ArchiveView) Close() error {
	return a.w.close()
}

// Stat summarizes the reconciled directory without requiring iteration.
type Stat struct {
	EntryCount uint64
	Zip64      bool
}

func (a *ArchiveView) Stat() Stat {
	return Stat{EntryCount: a.dir.entryCount, Zip64: a.tail.zip64}
}

// Next advances through the archive one entity at a time: the archive
// comment first, if non-empty, then one entity per central directory
// entry in directory order. It returns ok=false once every entity has
// been emitted.
func (a *ArchiveView) Next() (ZipEntity, bool, error) {
	if !a.commentDone {
		a.commentDone = true
		if len(a.tail.comment) > 0 {
			return ZipEntity{IsComment: true, Comment: a.dec.decode(a.tail.comment, false)}, true, nil
		}
	}

	if a.pos >= len(a.entries) {
		return ZipEntity{}, false, nil
	}

	ce := &a.entries[a.pos]
	a.pos++

	desc, err := correlateLocal(a.w, ce, a.observer)
	if err != nil {
		return ZipEntity{}, false, err
	}
	desc.archive = a

	return ZipEntity{Entry: desc}, true, nil
}

// Entities returns a Go iterator (iter.Seq2) over the archive's entities.
// A structural error aborts the whole iteration: the iterator yields it
// once and then stops.
func (a *ArchiveView) Entities() iter.Seq2[ZipEntity, error] {
	return func(yield func(ZipEntity, error) bool) {
		for {
			entity, ok, err := a.Next()
			if err != nil {
				yield(ZipEntity{}, err)
				return
			}
			if !ok {
				return
			}
			if !yield(entity, nil) {
				return
			}
		}
	}
}

// openPayload opens an independent file handle over
// [offset, offset+size), so that an in-flight content stream never
// contends with the ArchiveView's own read window.
func (a *ArchiveView) openPayload(offset, size int64) (io.ReadCloser, error) {
	f, err := os.Open(a.path)
	if err != nil {
		return nil, err
	}
	return &sectionFile{f: f, sr: io.NewSectionReader(f, offset, size)}, nil
}

type sectionFile struct {
	f  *os.File
	sr *io.SectionReader
}

func (s *sectionFile) Read(p []byte) (int, error) { return s.sr.Read(p) }
func (s *sectionFile) Close() error               { return s.f.Close() }
