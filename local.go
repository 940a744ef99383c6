package zipvault

// correlateLocal re-reads the local file header referenced by a central
// entry, re-runs the extra-field scanner against the local extra using
// the central header's still-sentinel state, and computes the exact byte
// offset of the member's compressed payload.
func correlateLocal(w *window, ce *centralEntry, obs Observer) (*EntryDescriptor, error) {
	localOffset := int64(ce.localOffset)
	hdrBytes, err := w.sliceAt(localOffset, localHeaderLen)
	if err != nil {
		return nil, err
	}
	sig := leUint32(hdrBytes)
	if sig != sigLocalFileHeader {
		return nil, archiveErr(ErrMalformedArchive, localOffset, "bad local file header signature 0x%08x", sig)
	}
	local := decodeLocalFileHeader(hdrBytes)

	localExtraOffset := localOffset + localHeaderLen + int64(local.nameLength)
	localExtra, err := w.sliceAt(localExtraOffset, int(local.extraLength))
	if err != nil {
		return nil, err
	}

	// A ZIP64 value present in the local extra overrides whatever the
	// central extra already applied: writers sometimes only put the
	// authoritative sizes in the local header.
	need := needsFor(ce)
	if body := findZip64ExtraBody(localExtra); body != nil {
		applyZip64Body(body, need, ce)
	}

	payloadOffset := localOffset + localHeaderLen + int64(local.nameLength) + int64(local.extraLength)
	if ce.header.flags&flagEncrypted != 0 {
		payloadOffset += encryptionHeaderLen
	}

	if payloadOffset+int64(ce.compressedSize) > w.length {
		return nil, archiveErr(ErrMalformedArchive, payloadOffset, "entry %q payload [%d, %d) overruns file of length %d", ce.name, payloadOffset, payloadOffset+int64(ce.compressedSize), w.length)
	}

	desc := &EntryDescriptor{
		Name:              ce.name,
		IsDir:             len(ce.name) > 0 && ce.name[len(ce.name)-1] == '/',
		IsProtected:       ce.header.flags&flagEncrypted != 0,
		Method:            compressionMethodFromCode(ce.header.method),
		CompressedSize:    ce.compressedSize,
		UncompressedSize:  ce.uncompressedSize,
		Modified:          msDosTimeToTime(ce.header.modDate, ce.header.modTime),
		Comment:           ce.comment,
		CentralExtra:      ce.extra,
		LocalExtra:        localExtra,
		nameIsUTF8:        ce.nameIsUTF8,
		payloadOffset:     payloadOffset,
	}

	obs.OnLocalHeaderCorrelated(ce.name, payloadOffset)
	return desc, nil
}
