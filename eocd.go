package zipvault

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// archiveTail holds the reconciled view produced by locateEnd: the legacy
// end record, the optional ZIP64 locator/record, and the absolute offset
// at which the end record itself begins (used as the directory's upper
// bound when ZIP64 is absent).
type archiveTail struct {
	end        endRecord
	endOffset  int64
	comment    []byte
	zip64      bool
	locator    zip64Locator
	zip64Rec   zip64EndRecord
	// tailOffset is endOffset, or the ZIP64 end record's own offset when
	// ZIP64 is present — the upper bound the directory must fit under.
	tailOffset int64
}

var sigEndRecordBytes = leUint32Bytes(sigEndRecord)
var sigZip64LocatorBytes = leUint32Bytes(sigZip64Locator)

func leUint32Bytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// locateEnd performs the backward scan for the end-of-central-directory
// signature, followed by the ZIP64 locator probe and validation.
func locateEnd(w *window, obs Observer) (*archiveTail, error) {
	maxWindow := int64(endRecordLen + maxCommentLen)
	if maxWindow > w.length {
		maxWindow = w.length
	}

	endOffset, err := scanForSignature(w, maxWindow, sigEndRecordBytes, endRecordLen)
	if err != nil {
		return nil, err
	}
	obs.OnEndRecordFound(endOffset)

	hdr, err := w.sliceAt(endOffset, endRecordLen)
	if err != nil {
		return nil, archiveErr(ErrMalformedArchive, endOffset, "truncated end-of-central-directory record")
	}
	end := decodeEndRecord(hdr)

	if endOffset+endRecordLen+int64(end.commentLength) > w.length {
		return nil, archiveErr(ErrMalformedArchive, endOffset, "archive comment runs past end of file")
	}
	comment, err := w.sliceAt(endOffset+endRecordLen, int(end.commentLength))
	if err != nil {
		return nil, err
	}

	tail := &archiveTail{end: end, endOffset: endOffset, comment: comment, tailOffset: endOffset}

	locatorOffset := endOffset - zip64LocatorLen
	if locatorOffset >= 0 {
		locBytes, err := w.sliceAt(locatorOffset, zip64LocatorLen)
		if err == nil && bytes.Equal(locBytes[:4], sigZip64LocatorBytes) {
			loc := decodeZip64Locator(locBytes)
			if loc.diskCount != 1 {
				return nil, archiveErr(ErrUnsupportedArchive, locatorOffset, "zip64 locator disk count %d != 1", loc.diskCount)
			}
			if loc.zip64Disk != 0 {
				return nil, archiveErr(ErrUnsupportedArchive, locatorOffset, "zip64 locator disk %d != 0", loc.zip64Disk)
			}
			if loc.zip64Offset+zip64EndRecordLen > uint64(locatorOffset) {
				return nil, archiveErr(ErrMalformedArchive, locatorOffset, "zip64 end record would overlap its locator")
			}
			recBytes, err := w.sliceAt(int64(loc.zip64Offset), zip64EndRecordLen)
			if err != nil {
				return nil, err
			}
			if binary.LittleEndian.Uint32(recBytes[:4]) != sigZip64EndRecord {
				return nil, archiveErr(ErrMalformedArchive, int64(loc.zip64Offset), "bad zip64 end record signature")
			}
			tail.zip64 = true
			tail.locator = loc
			tail.zip64Rec = decodeZip64EndRecord(recBytes)
			tail.tailOffset = int64(loc.zip64Offset)
			obs.OnZip64RecordFound(int64(loc.zip64Offset))
		}
	}

	return tail, nil
}

// scanForSignature performs a backward, chunked search for sig, stepping
// back by recordLen-1 bytes between chunks so that an occurrence of sig
// straddling a chunk boundary is never missed.
func scanForSignature(w *window, maxWindow int64, sig []byte, recordLen int) (int64, error) {
	size := int64(0)
	for size < maxWindow {
		chunkSize := blockSize
		remainingWindow := maxWindow - size
		if int64(chunkSize) > remainingWindow {
			chunkSize = int(remainingWindow)
		}
		chunkStart := w.length - size - int64(chunkSize)

		chunk, err := w.sliceAt(chunkStart, chunkSize)
		if err != nil {
			return 0, err
		}

		searchUpper := chunkSize - 4
		for offset := searchUpper; offset >= 0; offset-- {
			if bytes.Equal(chunk[offset:offset+4], sig) {
				return chunkStart + int64(offset), nil
			}
		}

		size += int64(chunkSize)
		if size < maxWindow {
			size -= int64(recordLen - 1)
			if size < 0 {
				size = 0
			}
		}
	}
	return 0, fmt.Errorf("%w: end record not found", ErrNotAnArchive)
}
