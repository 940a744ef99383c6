package zipvault

import (
	"encoding/binary"
	"time"
)

// Wire constants for the fixed-size portions of the format.
const (
	blockSize            = 65536 // BLOCK
	endRecordLen         = 22    // END_RECORD_LEN, fixed part
	maxCommentLen        = 65535 // MAX_COMMENT_LEN
	zip64LocatorLen      = 20    // ZIP64_LOCATOR_LEN
	zip64EndRecordLen    = 56    // ZIP64_END_RECORD_LEN, fixed part
	fileHeaderLen        = 46    // FILE_HEADER_LEN, central directory header
	localHeaderLen       = 30    // LOCAL_HEADER_LEN
	encryptionHeaderLen  = 12    // ENCRYPTION_HEADER_LEN
	extraFieldHeaderLen  = 4     // EXTRA_FIELD_HEADER_LEN, id+size
)

// Record signatures, little-endian 32-bit words.
const (
	sigLocalFileHeader   = 0x04034b50
	sigCentralFileHeader = 0x02014b50
	sigEndRecord         = 0x06054b50
	sigZip64Locator      = 0x07064b50
	sigZip64EndRecord    = 0x06064b50
)

// Legacy field values that mean "see the ZIP64 extra/end record instead".
const (
	magicDisk        uint16 = 0xFFFF
	magicEntryCount  uint16 = 0xFFFF
	magicSize        uint32 = 0xFFFFFFFF
	magicOffset      uint32 = 0xFFFFFFFF
)

const zip64ExtraID = 0x0001

// General-purpose flag bits.
const (
	flagEncrypted = 1 << 0
	flagUTF8      = 1 << 11
)

// readBuf consumes a byte slice left to right, decoding little-endian
// integers and advancing its own window as it goes.
type readBuf []byte

func (b *readBuf) uint8() uint8 {
	v := (*b)[0]
	*b = (*b)[1:]
	return v
}

func (b *readBuf) uint16() uint16 {
	v := binary.LittleEndian.Uint16(*b)
	*b = (*b)[2:]
	return v
}

func (b *readBuf) uint32() uint32 {
	v := binary.LittleEndian.Uint32(*b)
	*b = (*b)[4:]
	return v
}

func (b *readBuf) uint64() uint64 {
	v := binary.LittleEndian.Uint64(*b)
	*b = (*b)[8:]
	return v
}

func (b *readBuf) sub(n int) readBuf {
	b2 := (*b)[:n]
	*b = (*b)[n:]
	return b2
}

func (b *readBuf) len() int { return len(*b) }

// endRecord is the legacy end-of-central-directory record.
type endRecord struct {
	disk           uint16
	directoryDisk  uint16
	diskEntryCount uint16
	entryCount     uint16
	directorySize  uint32
	directoryOffset uint32
	commentLength  uint16
}

// decodeEndRecord parses the 22 fixed bytes of an EOCD record. The
// signature has already been checked by the caller.
func decodeEndRecord(b []byte) endRecord {
	r := readBuf(b[4:22])
	return endRecord{
		disk:            r.uint16(),
		directoryDisk:   r.uint16(),
		diskEntryCount:  r.uint16(),
		entryCount:      r.uint16(),
		directorySize:   r.uint32(),
		directoryOffset: r.uint32(),
		commentLength:   r.uint16(),
	}
}

// zip64Locator is the 20-byte ZIP64 end-of-central-directory locator.
type zip64Locator struct {
	zip64Disk   uint32
	zip64Offset uint64
	diskCount   uint32
}

func decodeZip64Locator(b []byte) zip64Locator {
	r := readBuf(b[4:20])
	return zip64Locator{
		zip64Disk:   r.uint32(),
		zip64Offset: r.uint64(),
		diskCount:   r.uint32(),
	}
}

// zip64EndRecord is the fixed 56-byte prefix of the ZIP64 end-of-central
// directory record. The trailing extensible data sector, if any, is
// ignored.
type zip64EndRecord struct {
	versionMadeBy   uint16
	versionNeeded   uint16
	disk            uint32
	directoryDisk   uint32
	diskEntryCount  uint64
	entryCount      uint64
	directorySize   uint64
	directoryOffset uint64
}

func decodeZip64EndRecord(b []byte) zip64EndRecord {
	r := readBuf(b[4:56])
	_ = r.uint64() // recordSize, unused: trailing extensible sector is ignored
	return zip64EndRecord{
		versionMadeBy:   r.uint16(),
		versionNeeded:   r.uint16(),
		disk:            r.uint32(),
		directoryDisk:   r.uint32(),
		diskEntryCount:  r.uint64(),
		entryCount:      r.uint64(),
		directorySize:   r.uint64(),
		directoryOffset: r.uint64(),
	}
}

// centralFileHeader is the 46 fixed bytes of a central directory file
// header, before the variable-length name/extra/comment and before any
// ZIP64 extra-field override is applied.
type centralFileHeader struct {
	versionMadeBy     uint16
	versionNeeded     uint16
	flags             uint16
	method            uint16
	modTime           uint16
	modDate           uint16
	crc32             uint32
	compressedSize    uint32
	uncompressedSize  uint32
	nameLength        uint16
	extraLength       uint16
	commentLength     uint16
	localDisk         uint16
	internalAttr      uint16
	externalAttr      uint32
	localOffset       uint32
}

func decodeCentralFileHeader(b []byte) centralFileHeader {
	r := readBuf(b[4:46])
	return centralFileHeader{
		versionMadeBy:    r.uint16(),
		versionNeeded:    r.uint16(),
		flags:            r.uint16(),
		method:           r.uint16(),
		modTime:          r.uint16(),
		modDate:          r.uint16(),
		crc32:            r.uint32(),
		compressedSize:   r.uint32(),
		uncompressedSize: r.uint32(),
		nameLength:       r.uint16(),
		extraLength:      r.uint16(),
		commentLength:    r.uint16(),
		localDisk:        r.uint16(),
		internalAttr:     r.uint16(),
		externalAttr:     r.uint32(),
		localOffset:      r.uint32(),
	}
}

// localFileHeader is the 30 fixed bytes of a local file header.
type localFileHeader struct {
	versionNeeded    uint16
	flags            uint16
	method           uint16
	modTime          uint16
	modDate          uint16
	crc32            uint32
	compressedSize   uint32
	uncompressedSize uint32
	nameLength       uint16
	extraLength      uint16
}

func decodeLocalFileHeader(b []byte) localFileHeader {
	r := readBuf(b[4:30])
	return localFileHeader{
		versionNeeded:    r.uint16(),
		flags:            r.uint16(),
		method:           r.uint16(),
		modTime:          r.uint16(),
		modDate:          r.uint16(),
		crc32:            r.uint32(),
		compressedSize:   r.uint32(),
		uncompressedSize: r.uint32(),
		nameLength:       r.uint16(),
		extraLength:      r.uint16(),
	}
}

// msDosTimeToTime converts an MS-DOS packed date/time into a local civil
// time with 2-second resolution.
func msDosTimeToTime(dosDate, dosTime uint16) time.Time {
	return time.Date(
		int(dosDate>>9)+1980,
		time.Month(dosDate>>5&0xf),
		int(dosDate&0x1f),
		int(dosTime>>11),
		int(dosTime>>5&0x3f),
		int(dosTime&0x1f)*2,
		0,
		time.Local,
	)
}

// timeToMsDos is the inverse of msDosTimeToTime, used by round-trip tests.
// Seconds are truncated to even values (2s resolution).
func timeToMsDos(t time.Time) (date, dosTime uint16) {
	date = uint16(t.Day()) | uint16(t.Month())<<5 | uint16(t.Year()-1980)<<9
	dosTime = uint16(t.Second()/2) | uint16(t.Minute())<<5 | uint16(t.Hour())<<11
	return
}
