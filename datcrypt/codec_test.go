package datcrypt

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSniff(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want ImageFormat
	}{
		{"jpg", []byte{0xFF, 0xD8, 0xFF, 0xE1}, FormatJPG},
		{"png", []byte("\x89PNG\r\n\x1a\n\x00\x00"), FormatPNG},
		{"gif87", []byte("GIF87a.."), FormatGIF},
		{"gif89", []byte("GIF89a.."), FormatGIF},
		{"bmp", []byte("BM\x00\x00"), FormatBMP},
		{"tiff le", []byte("II*\x00...."), FormatTIFF},
		{"tiff be", []byte("MM\x00*...."), FormatTIFF},
		{"webp", []byte("RIFF\x10\x00\x00\x00WEBPVP8 "), FormatWEBP},
		{"riff not webp", []byte("RIFF\x10\x00\x00\x00WAVE"), FormatBIN},
		{"ico", []byte{0x00, 0x00, 0x01, 0x00, 0x01}, FormatICO},
		{"short", []byte{0xFF}, FormatBIN},
		{"empty", nil, FormatBIN},
		{"unknown", []byte("hello world!"), FormatBIN},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, Sniff(c.data))
		})
	}
}

func TestGuessXorKey(t *testing.T) {
	format, key, err := GuessXorKey(xorBytes([]byte{0xFF, 0xD8, 0xFF, 0xE0}, 0x5A))
	require.NoError(t, err)
	assert.Equal(t, FormatJPG, format)
	assert.Equal(t, byte(0x5A), key)

	format, key, err = GuessXorKey(xorBytes([]byte("\x89PNG"), 0xC3))
	require.NoError(t, err)
	assert.Equal(t, FormatPNG, format)
	assert.Equal(t, byte(0xC3), key)

	format, key, err = GuessXorKey(xorBytes([]byte("GIF89a"), 0x01))
	require.NoError(t, err)
	assert.Equal(t, FormatGIF, format)
	assert.Equal(t, byte(0x01), key)

	_, _, err = GuessXorKey([]byte{0xFC, 0x24})
	assert.True(t, errors.Is(err, ErrUnrecognizedFormat))

	_, _, err = GuessXorKey([]byte{0xFF})
	assert.True(t, errors.Is(err, ErrTruncated))
}

func TestDecodeLegacy(t *testing.T) {
	plain := fakeJPEG(LegacyChunkSize*3+17, 1)
	var out bytes.Buffer
	n, err := DecodeLegacy(bytes.NewReader(xorBytes(plain, 0x9E)), &out, 0x9E)
	require.NoError(t, err)
	assert.Equal(t, int64(len(plain)), n)
	assert.Equal(t, plain, out.Bytes())
}

func TestDecodeV4(t *testing.T) {
	cases := []struct {
		name   string
		magic  []byte
		key    []byte
		size   int
		aesLen int
	}{
		{"gen1 block aligned", MagicV4Gen1, KeyV4Gen1, 3000, 1024},
		{"gen2 unaligned", MagicV4Gen2, KeyV4Gen2, 4099, 1000},
		{"everything encrypted", MagicV4Gen2, KeyV4Gen2, 700, 1024},
		{"large remainder", MagicV4Gen1, KeyV4Gen1, 1024 + TailXORSize + 5000, 1024},
	}
	for i, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			plain := fakeJPEG(c.size, int64(i))
			blob := encodeV4(t, c.magic, c.key, plain, c.aesLen, 0x37)
			got, format, err := DecodeV4(blob, 0x37)
			require.NoError(t, err)
			assert.Equal(t, FormatJPG, format)
			assert.Equal(t, len(plain), len(got))
			assert.True(t, bytes.Equal(plain, got))
		})
	}
}

func TestDecodeV4WrongXorKeyOnlyTouchesTail(t *testing.T) {
	plain := fakeJPEG(1024+TailXORSize+100, 9)
	blob := encodeV4(t, MagicV4Gen1, KeyV4Gen1, plain, 1024, 0x37)
	got, _, err := DecodeV4(blob, 0x38)
	require.NoError(t, err)
	// header region and the 100 byte middle are independent of the xor key
	assert.Equal(t, plain[:1124], got[:1124])
	assert.NotEqual(t, plain[1124:], got[1124:])
}

func TestDecodeV4Errors(t *testing.T) {
	_, _, err := DecodeV4(MagicV4Gen1, 0)
	assert.True(t, errors.Is(err, ErrTruncated))

	bad := append([]byte{0x07, 0x08, 'V', '9', 0x08, 0x07}, make([]byte, 40)...)
	_, _, err = DecodeV4(bad, 0)
	assert.True(t, errors.Is(err, ErrUnrecognizedFormat))
}

func TestDecodeV4ShortBody(t *testing.T) {
	// header announces more encrypted bytes than the file holds
	blob := encodeV4(t, MagicV4Gen1, KeyV4Gen1, fakeJPEG(2048, 3), 1024, 0)
	_, _, err := DecodeV4(blob[:V4HeaderSize+100], 0)
	assert.NoError(t, err)
	assert.Equal(t, 1040, EncryptedRegionSize(blob))
}

func TestEncryptedRegionSizeShortHeader(t *testing.T) {
	assert.Equal(t, 0, EncryptedRegionSize(nil))
	assert.Equal(t, 0, EncryptedRegionSize(MagicV4Gen1[:6]))
	assert.Equal(t, 16, EncryptedRegionSize(append(append([]byte(nil), MagicV4Gen1[:6]...), 0x00, 0x00)))
}
