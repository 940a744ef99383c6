package zipvault

import (
	"fmt"
	"io"
	"time"
)

// EntryDescriptor is the public, caller-facing view of one archive
// member. It remains valid and openable for as long as the owning
// ArchiveView is alive.
type EntryDescriptor struct {
	Name             string
	IsDir            bool
	IsProtected      bool
	Method           CompressionMethod
	CompressedSize   uint64
	UncompressedSize uint64
	Modified         time.Time
	Comment          string
	CentralExtra     []byte
	LocalExtra       []byte

	nameIsUTF8    bool
	payloadOffset int64

	archive *ArchiveView
}

// NameIsUTF8 reports whether this entry's name was decoded via the UTF-8
// path (general-purpose flag bit 11, or the WithUTF8Detection heuristic),
// as opposed to the configured code page.
func (d *EntryDescriptor) NameIsUTF8() bool { return d.nameIsUTF8 }

// Open returns a reader over the member's uncompressed content. It fails
// with ErrUnsupportedEntry for encrypted entries or compression methods
// other than Stored/Deflated. The returned reader is single-consumer and
// single-pass and must be closed by the caller. It reads through its own
// file handle, so the owning ArchiveView's iteration may advance while it
// is open.
func (d *EntryDescriptor) Open() (io.ReadCloser, error) {
	if d.IsProtected {
		return nil, &EntryError{Name: d.Name, Err: ErrUnsupportedEntry}
	}
	if d.Method != Stored && d.Method != Deflated {
		return nil, &EntryError{Name: d.Name, Err: fmt.Errorf("%w: method %s", ErrUnsupportedEntry, d.Method)}
	}

	raw, err := d.archive.openPayload(d.payloadOffset, int64(d.CompressedSize))
	if err != nil {
		return nil, err
	}

	rc := decompressorFor(d.Method, raw)
	if rc == nil {
		raw.Close()
		return nil, &EntryError{Name: d.Name, Err: ErrUnsupportedEntry}
	}
	return &entryContent{inner: rc, raw: raw}, nil
}

// entryContent closes both the decompressor and the underlying raw
// payload section reader.
type entryContent struct {
	inner io.ReadCloser
	raw   io.Closer
}

func (c *entryContent) Read(p []byte) (int, error) { return c.inner.Read(p) }

func (c *entryContent) Close() error {
	err := c.inner.Close()
	if rawErr := c.raw.Close(); err == nil {
		err = rawErr
	}
	return err
}

// ZipEntity is the sum type emitted by the entity stream: exactly one of
// Comment or Entry is set.
type ZipEntity struct {
	IsComment bool
	Comment   string
	Entry     *EntryDescriptor
}
