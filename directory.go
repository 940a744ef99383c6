package zipvault

// directoryInfo is the reconciled, authoritative location and size of the
// central directory, after any ZIP64 override has been applied.
type directoryInfo struct {
	disk       uint32
	offset     uint64
	size       uint64
	entryCount uint64
}

// reconcileDirectory resolves the legacy end record against the optional
// ZIP64 end record: for each field, it takes the ZIP64 value when the
// legacy field holds its sentinel and a validated ZIP64 tail is present;
// otherwise it takes the legacy value as-is. A sentinel that survives
// with no ZIP64 tail to resolve it is an error, as is any disk number
// other than zero: this engine only supports single-disk archives.
func reconcileDirectory(tail *archiveTail) (directoryInfo, error) {
	e := tail.end
	var dir directoryInfo

	pick16 := func(legacy uint16, zip64Val uint64) (uint64, error) {
		if legacy != magicEntryCount && legacy != magicDisk {
			return uint64(legacy), nil
		}
		if !tail.zip64 {
			return 0, archiveErr(ErrMalformedArchive, tail.endOffset, "zip64 required but absent")
		}
		return zip64Val, nil
	}
	pick32 := func(legacy uint32, zip64Val uint64) (uint64, error) {
		if legacy != magicSize && legacy != magicOffset {
			return uint64(legacy), nil
		}
		if !tail.zip64 {
			return 0, archiveErr(ErrMalformedArchive, tail.endOffset, "zip64 required but absent")
		}
		return zip64Val, nil
	}

	disk, err := pick16(e.directoryDisk, uint64(tail.zip64Rec.directoryDisk))
	if err != nil {
		return dir, err
	}
	size, err := pick32(e.directorySize, tail.zip64Rec.directorySize)
	if err != nil {
		return dir, err
	}
	offset, err := pick32(e.directoryOffset, tail.zip64Rec.directoryOffset)
	if err != nil {
		return dir, err
	}
	count, err := pick16(e.entryCount, tail.zip64Rec.entryCount)
	if err != nil {
		return dir, err
	}

	dir = directoryInfo{disk: uint32(disk), size: size, offset: offset, entryCount: count}

	if e.disk != 0 {
		return dir, archiveErr(ErrUnsupportedArchive, tail.endOffset, "end record disk %d != 0", e.disk)
	}
	if tail.zip64 && tail.zip64Rec.disk != 0 {
		return dir, archiveErr(ErrUnsupportedArchive, tail.endOffset, "zip64 end record disk %d != 0", tail.zip64Rec.disk)
	}
	if dir.disk != 0 {
		return dir, archiveErr(ErrUnsupportedArchive, tail.endOffset, "central directory disk %d != 0", dir.disk)
	}
	if dir.offset+dir.size > uint64(tail.tailOffset) {
		return dir, archiveErr(ErrMalformedArchive, tail.endOffset, "central directory [%d, %d) overruns its tail at %d", dir.offset, dir.offset+dir.size, tail.tailOffset)
	}
	return dir, nil
}

// centralEntry is one fully-parsed central directory record, after any
// ZIP64 extra-field override has been applied to its sentinel fields.
type centralEntry struct {
	offset  int64
	header  centralFileHeader
	name    string
	extra   []byte
	comment string

	uncompressedSize uint64
	compressedSize   uint64
	localOffset      uint64
	localDisk        uint32
	nameIsUTF8       bool
}

// walkDirectory streams the central directory in bounded windows,
// decodes each header, resolves its name/extra/comment, and applies the
// ZIP64 extra field where a sentinel demands it.
func walkDirectory(w *window, dir directoryInfo, dec textDecoder, obs Observer) ([]centralEntry, error) {
	entries := make([]centralEntry, 0, dir.entryCount)

	offset := int64(dir.offset)
	limit := int64(dir.offset + dir.size)

	for i := uint64(0); i < dir.entryCount; i++ {
		if offset+fileHeaderLen > limit {
			return nil, archiveErr(ErrMalformedArchive, offset, "central directory ended after %d of %d entries", i, dir.entryCount)
		}

		hdrBytes, err := w.sliceAt(offset, fileHeaderLen)
		if err != nil {
			return nil, err
		}
		sig := leUint32(hdrBytes)
		if sig != sigCentralFileHeader {
			return nil, archiveErr(ErrMalformedArchive, offset, "bad central file header signature 0x%08x", sig)
		}
		hdr := decodeCentralFileHeader(hdrBytes)

		payload := int64(hdr.nameLength) + int64(hdr.extraLength) + int64(hdr.commentLength)
		if offset+fileHeaderLen+payload > limit {
			return nil, archiveErr(ErrMalformedArchive, offset, "central header payload runs past directory end")
		}

		nameBytes, err := w.sliceAt(offset+fileHeaderLen, int(hdr.nameLength))
		if err != nil {
			return nil, err
		}
		extra, err := w.sliceAt(offset+fileHeaderLen+int64(hdr.nameLength), int(hdr.extraLength))
		if err != nil {
			return nil, err
		}
		commentBytes, err := w.sliceAt(offset+fileHeaderLen+int64(hdr.nameLength)+int64(hdr.extraLength), int(hdr.commentLength))
		if err != nil {
			return nil, err
		}

		preferUTF8 := hdr.flags&flagUTF8 != 0
		name, nameIsUTF8 := dec.decodeName(nameBytes, preferUTF8)
		comment := dec.decode(commentBytes, preferUTF8)

		if hdr.localDisk != 0 && hdr.localDisk != magicDisk {
			return nil, archiveErr(ErrUnsupportedArchive, offset, "central header local disk %d != 0", hdr.localDisk)
		}

		ce := centralEntry{
			offset:           offset,
			header:           hdr,
			name:             name,
			extra:            extra,
			comment:          comment,
			uncompressedSize: uint64(hdr.uncompressedSize),
			compressedSize:   uint64(hdr.compressedSize),
			localOffset:      uint64(hdr.localOffset),
			localDisk:        uint32(hdr.localDisk),
			nameIsUTF8:       nameIsUTF8,
		}

		if len(extra) > 0 {
			applyZip64Extra(extra, &ce)
		}

		if ce.localDisk != 0 {
			return nil, archiveErr(ErrUnsupportedArchive, offset, "central header local disk %d != 0", ce.localDisk)
		}

		obs.OnCentralHeader(name, offset)
		entries = append(entries, ce)

		offset += fileHeaderLen + payload
	}

	return entries, nil
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// zip64Need tracks which fields are still sentinel-valued and therefore
// still eligible for a ZIP64 override. The ZIP64 extra body, when
// present, packs its fields in this fixed order: uncompressed size,
// compressed size, local header offset, local disk number.
type zip64Need struct {
	uncompressed bool
	compressed   bool
	localOffset  bool
	localDisk    bool
}

func needsFor(ce *centralEntry) zip64Need {
	return zip64Need{
		uncompressed: ce.header.uncompressedSize == magicSize,
		compressed:   ce.header.compressedSize == magicSize,
		localOffset:  ce.header.localOffset == magicOffset,
		localDisk:    ce.header.localDisk == magicDisk,
	}
}

// applyZip64Extra scans extra for the first valid ZIP64 tuple and, if
// found, overwrites ce's sentinel-valued fields from it.
func applyZip64Extra(extra []byte, ce *centralEntry) {
	need := needsFor(ce)
	body := findZip64ExtraBody(extra)
	if body == nil {
		return
	}
	applyZip64Body(body, need, ce)
}

// findZip64ExtraBody scans the TLV-encoded extra blob for the first tuple
// with header_id == 0x0001 whose declared size fits within the remaining
// bytes of the blob.
func findZip64ExtraBody(extra []byte) []byte {
	b := readBuf(extra)
	for b.len() >= extraFieldHeaderLen {
		id := b.uint16()
		size := int(b.uint16())
		if size > b.len() {
			return nil
		}
		body := b.sub(size)
		if id == zip64ExtraID {
			return body
		}
	}
	return nil
}

// applyZip64Body consumes the present fields of a ZIP64 extra body in
// fixed order, requiring its declared size to cover every field still
// needed; it aborts without applying anything otherwise.
func applyZip64Body(body []byte, need zip64Need, ce *centralEntry) {
	required := 0
	if need.uncompressed {
		required += 8
	}
	if need.compressed {
		required += 8
	}
	if need.localOffset {
		required += 8
	}
	if need.localDisk {
		required += 4
	}
	if len(body) < required {
		return
	}

	b := readBuf(body)
	if need.uncompressed {
		ce.uncompressedSize = b.uint64()
	}
	if need.compressed {
		ce.compressedSize = b.uint64()
	}
	if need.localOffset {
		ce.localOffset = b.uint64()
	}
	if need.localDisk {
		ce.localDisk = b.uint32()
	}
}
