package zipvault

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"hash/crc32"
	"os"
	"testing"
)

func crc32IEEE(b []byte) uint32 { return crc32.ChecksumIEEE(b) }

// testEntry describes one member to bake into a hand-built archive. These
// tests construct raw ZIP bytes directly (rather than relying on an
// external zip writer) so that boundary conditions — exact comment
// lengths, signature-straddling chunk boundaries, sentinel fields — can
// be placed exactly where the test wants them.
type testEntry struct {
	name       string
	data       []byte
	method     uint16 // Stored or Deflated
	flags      uint16
	comment    string
	forceZip64 bool // write 0xFFFFFFFF sizes + a ZIP64 extra even though small
	modDate    uint16
	modTime    uint16
}

func le16(v uint16) []byte { b := make([]byte, 2); binary.LittleEndian.PutUint16(b, v); return b }
func le32(v uint32) []byte { b := make([]byte, 4); binary.LittleEndian.PutUint32(b, v); return b }
func le64(v uint64) []byte { b := make([]byte, 8); binary.LittleEndian.PutUint64(b, v); return b }

// buildZip assembles a minimal, well-formed archive: one local
// header+payload per entry, followed by the central directory and a
// legacy EOCD record. archiveComment is written verbatim as the EOCD's
// trailing comment, so a test controls its exact length.
func buildZip(t *testing.T, entries []testEntry, archiveComment string) []byte {
	t.Helper()

	var body bytes.Buffer
	type placed struct {
		entry        testEntry
		localOffset  int
		compressed   []byte
		crc          uint32
	}
	placedEntries := make([]placed, 0, len(entries))

	for _, e := range entries {
		compressed := e.data
		if e.method == uint16(Deflated) {
			var buf bytes.Buffer
			fw, _ := flate.NewWriter(&buf, flate.DefaultCompression)
			fw.Write(e.data)
			fw.Close()
			compressed = buf.Bytes()
		}
		crc := crc32IEEE(e.data)

		localOffset := body.Len()

		var extra []byte
		uncompSize := uint32(len(e.data))
		compSize := uint32(len(compressed))
		if e.forceZip64 {
			extra = append(extra, le16(0x0001)...)
			extra = append(extra, le16(16)...)
			extra = append(extra, le64(uint64(len(e.data)))...)
			extra = append(extra, le64(uint64(len(compressed)))...)
			uncompSize = 0xFFFFFFFF
			compSize = 0xFFFFFFFF
		}

		body.Write(le32(sigLocalFileHeader))
		body.Write(le16(20))       // version needed
		body.Write(le16(e.flags))  // flags
		body.Write(le16(e.method)) // method
		body.Write(le16(e.modTime))
		body.Write(le16(e.modDate))
		body.Write(le32(crc))
		body.Write(le32(compSize))
		body.Write(le32(uncompSize))
		body.Write(le16(uint16(len(e.name))))
		body.Write(le16(uint16(len(extra))))
		body.Write([]byte(e.name))
		body.Write(extra)
		body.Write(compressed)

		placedEntries = append(placedEntries, placed{entry: e, localOffset: localOffset, compressed: compressed, crc: crc})
	}

	cdStart := body.Len()
	for _, p := range placedEntries {
		e := p.entry
		var extra []byte
		uncompSize := uint32(len(e.data))
		compSize := uint32(len(p.compressed))
		localOffset := uint32(p.localOffset)
		if e.forceZip64 {
			extra = append(extra, le16(0x0001)...)
			extra = append(extra, le16(16)...)
			extra = append(extra, le64(uint64(len(e.data)))...)
			extra = append(extra, le64(uint64(len(p.compressed)))...)
			uncompSize = 0xFFFFFFFF
			compSize = 0xFFFFFFFF
		}

		body.Write(le32(sigCentralFileHeader))
		body.Write(le16(20)) // version made by
		body.Write(le16(20)) // version needed
		body.Write(le16(e.flags))
		body.Write(le16(e.method))
		body.Write(le16(e.modTime))
		body.Write(le16(e.modDate))
		body.Write(le32(p.crc))
		body.Write(le32(compSize))
		body.Write(le32(uncompSize))
		body.Write(le16(uint16(len(e.name))))
		body.Write(le16(uint16(len(extra))))
		body.Write(le16(uint16(len(e.comment))))
		body.Write(le16(0)) // local disk
		body.Write(le16(0)) // internal attr
		body.Write(le32(0)) // external attr
		body.Write(le32(localOffset))
		body.Write([]byte(e.name))
		body.Write(extra)
		body.Write([]byte(e.comment))
	}
	cdSize := body.Len() - cdStart

	body.Write(le32(sigEndRecord))
	body.Write(le16(0))
	body.Write(le16(0))
	body.Write(le16(uint16(len(entries))))
	body.Write(le16(uint16(len(entries))))
	body.Write(le32(uint32(cdSize)))
	body.Write(le32(uint32(cdStart)))
	body.Write(le16(uint16(len(archiveComment))))
	body.Write([]byte(archiveComment))

	return body.Bytes()
}

func writeTempZip(t *testing.T, data []byte) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "zipvault-*.zip")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return f.Name()
}
