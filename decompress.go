package zipvault

import (
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
)

// CompressionMethod enumerates the method codes a central or local header
// can declare. Codes not listed below map to Unknown. Only Stored and
// Deflated can be opened for content; every other method, Unknown
// included, fails Open with ErrUnsupportedEntry.
type CompressionMethod uint16

const (
	Stored         CompressionMethod = 0
	Shrunk         CompressionMethod = 1
	Reduced1       CompressionMethod = 2
	Reduced2       CompressionMethod = 3
	Reduced3       CompressionMethod = 4
	Reduced4       CompressionMethod = 5
	Imploded       CompressionMethod = 6
	Tokenized      CompressionMethod = 7
	Deflated       CompressionMethod = 8
	Deflated64     CompressionMethod = 9
	IBMTerseOld    CompressionMethod = 10
	BZip2          CompressionMethod = 12
	LZMA           CompressionMethod = 14
	IBMTerseNew    CompressionMethod = 18
	LZ77           CompressionMethod = 19
	WavPack        CompressionMethod = 97
	PPMd           CompressionMethod = 98
	Unknown        CompressionMethod = 0xFFFF
)

func compressionMethodFromCode(code uint16) CompressionMethod {
	switch code {
	case 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 12, 14, 18, 19, 97, 98:
		return CompressionMethod(code)
	default:
		return Unknown
	}
}

func (m CompressionMethod) String() string {
	switch m {
	case Stored:
		return "stored"
	case Deflated:
		return "deflated"
	default:
		return "unknown"
	}
}

// pooledFlateReader recycles klauspost/compress/flate readers through a
// sync.Pool so that opening many small entries in sequence doesn't
// allocate a fresh decompressor window each time.
type pooledFlateReader struct {
	mu sync.Mutex
	fr io.ReadCloser
}

var flateReaderPool sync.Pool

func newFlateReader(r io.Reader) io.ReadCloser {
	fr, ok := flateReaderPool.Get().(io.ReadCloser)
	if ok {
		fr.(flate.Resetter).Reset(r, nil)
	} else {
		fr = flate.NewReader(r)
	}
	return &pooledFlateReader{fr: fr}
}

func (r *pooledFlateReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fr == nil {
		return 0, io.ErrClosedPipe
	}
	return r.fr.Read(p)
}

func (r *pooledFlateReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var err error
	if r.fr != nil {
		err = r.fr.Close()
		flateReaderPool.Put(r.fr)
		r.fr = nil
	}
	return err
}

// decompressorFor returns a decoding wrapper for the given raw compressed
// stream, or nil if method is neither Stored nor Deflated.
func decompressorFor(method CompressionMethod, r io.Reader) io.ReadCloser {
	switch method {
	case Stored:
		return io.NopCloser(r)
	case Deflated:
		return newFlateReader(r)
	default:
		return nil
	}
}
