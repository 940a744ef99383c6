package zipvault

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadArchive_MinimalStored(t *testing.T) {
	data := buildZip(t, []testEntry{
		{name: "A", data: []byte{0x41}, method: uint16(Stored)},
	}, "")
	path := writeTempZip(t, data)

	av, err := ReadArchive(path)
	require.NoError(t, err)
	defer av.Close()

	entity, ok, err := av.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, entity.IsComment)
	require.NotNil(t, entity.Entry)
	assert.Equal(t, "A", entity.Entry.Name)
	assert.EqualValues(t, 1, entity.Entry.UncompressedSize)

	rc, err := entity.Entry.Open()
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x41}, b)

	_, ok, err = av.Next()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReadArchive_DeflatedText(t *testing.T) {
	data := buildZip(t, []testEntry{
		{name: "hello.txt", data: []byte("hello"), method: uint16(Deflated)},
	}, "")
	path := writeTempZip(t, data)

	av, err := ReadArchive(path)
	require.NoError(t, err)
	defer av.Close()

	entity, ok, err := av.Next()
	require.NoError(t, err)
	require.True(t, ok)

	rc, err := entity.Entry.Open()
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x68, 0x65, 0x6C, 0x6C, 0x6F}, b)
}

func TestReadArchive_UTF8Name(t *testing.T) {
	data := buildZip(t, []testEntry{
		{name: string([]byte{0xC3, 0xA9}), data: []byte("x"), method: uint16(Stored), flags: flagUTF8},
	}, "")
	path := writeTempZip(t, data)

	av, err := ReadArchive(path)
	require.NoError(t, err)
	defer av.Close()

	entity, ok, err := av.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "é", entity.Entry.Name)
	assert.True(t, entity.Entry.NameIsUTF8())
}

func TestReadArchive_CP437Name(t *testing.T) {
	data := buildZip(t, []testEntry{
		{name: string([]byte{0x82}), data: []byte("x"), method: uint16(Stored)},
	}, "")
	path := writeTempZip(t, data)

	av, err := ReadArchive(path)
	require.NoError(t, err)
	defer av.Close()

	entity, ok, err := av.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "é", entity.Entry.Name)
	assert.False(t, entity.Entry.NameIsUTF8())
}

func TestReadArchive_CommentOnlyNoEntries(t *testing.T) {
	data := buildZip(t, nil, "hello")
	path := writeTempZip(t, data)

	av, err := ReadArchive(path)
	require.NoError(t, err)
	defer av.Close()

	entity, ok, err := av.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, entity.IsComment)
	assert.Equal(t, "hello", entity.Comment)

	_, ok, err = av.Next()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReadArchive_EmptyCommentOmitted(t *testing.T) {
	data := buildZip(t, []testEntry{
		{name: "A", data: []byte{0x41}, method: uint16(Stored)},
	}, "")
	path := writeTempZip(t, data)

	av, err := ReadArchive(path)
	require.NoError(t, err)
	defer av.Close()

	entity, ok, err := av.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, entity.IsComment)
}

func TestReadArchive_MultipleEntriesOrderStable(t *testing.T) {
	data := buildZip(t, []testEntry{
		{name: "a", data: []byte("1"), method: uint16(Stored)},
		{name: "b", data: []byte("22"), method: uint16(Stored)},
		{name: "c", data: []byte("333"), method: uint16(Deflated)},
	}, "")
	path := writeTempZip(t, data)

	av, err := ReadArchive(path)
	require.NoError(t, err)
	defer av.Close()

	var names []string
	for {
		entity, ok, err := av.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		names = append(names, entity.Entry.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
	assert.EqualValues(t, 3, av.Stat().EntryCount)
}

func TestReadArchive_EncryptedEntryMetadataEmittedOpenFails(t *testing.T) {
	data := buildZip(t, []testEntry{
		{name: "secret", data: []byte("x"), method: uint16(Stored), flags: flagEncrypted},
	}, "")
	path := writeTempZip(t, data)

	av, err := ReadArchive(path)
	require.NoError(t, err)
	defer av.Close()

	entity, ok, err := av.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "secret", entity.Entry.Name)
	assert.True(t, entity.Entry.IsProtected)

	_, err = entity.Entry.Open()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedEntry)
}

func TestReadArchive_NotAZip(t *testing.T) {
	path := writeTempZip(t, []byte("not a zip file at all, just plain text"))
	_, err := ReadArchive(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotAnArchive)
}

func TestReadArchive_CommentLengthsAtBoundary(t *testing.T) {
	// Total searched window (endRecordLen+commentLen) straddling a BLOCK
	// boundary is what exercises the scanner's chunk backoff; commentLen
	// itself must still fit the 16-bit comment-length field.
	totalWindows := []int{0, blockSize - 1, blockSize, blockSize + 1, endRecordLen + maxCommentLen}
	for _, total := range totalWindows {
		total := total
		commentLen := total - endRecordLen
		if commentLen < 0 {
			commentLen = 0
		}
		t.Run(fmt.Sprintf("window=%d", total), func(t *testing.T) {
			comment := strings.Repeat("x", commentLen)
			data := buildZip(t, []testEntry{
				{name: "a", data: []byte("1"), method: uint16(Stored)},
			}, comment)
			path := writeTempZip(t, data)

			av, err := ReadArchive(path)
			require.NoError(t, err)
			defer av.Close()

			var sawComment bool
			for {
				entity, ok, err := av.Next()
				require.NoError(t, err)
				if !ok {
					break
				}
				if entity.IsComment {
					sawComment = true
					assert.Equal(t, comment, entity.Comment)
				}
			}
			assert.Equal(t, len(comment) > 0, sawComment)
		})
	}
}

func TestCRC32Verify(t *testing.T) {
	data := buildZip(t, []testEntry{
		{name: "a", data: []byte("hello world"), method: uint16(Stored)},
	}, "")
	path := writeTempZip(t, data)

	av, err := ReadArchive(path)
	require.NoError(t, err)
	defer av.Close()

	entity, ok, err := av.Next()
	require.NoError(t, err)
	require.True(t, ok)

	rc, err := entity.Entry.Open()
	require.NoError(t, err)
	defer rc.Close()

	err = VerifyCRC32(rc, crc32IEEE([]byte("hello world")))
	require.NoError(t, err)
}
