// Package datcrypt decodes the obfuscated image attachments (.dat files) kept
// next to the chat databases.
package datcrypt

import (
	"github.com/zing22845/go-wxcrypt/cryptoerr"
)

const (
	V4HeaderSize    = 15
	V4MagicLen      = 6
	AESBlockSize    = 16
	TailXORSize     = 0x100000 // 1 MiB
	LegacyChunkSize = 1024
	SniffLen        = 12
	DatExt          = ".dat"
	ThumbSuffix     = "_t.dat"
)

// errors
var (
	ErrUnrecognizedFormat = cryptoerr.ErrUnrecognizedFormat
	ErrTruncated          = cryptoerr.ErrTruncated
	ErrKeyMismatch        = cryptoerr.ErrKeyMismatch
)

// ImageFormat doubles as the output file extension.
type ImageFormat string

const (
	FormatJPG  ImageFormat = "jpg"
	FormatPNG  ImageFormat = "png"
	FormatGIF  ImageFormat = "gif"
	FormatBMP  ImageFormat = "bmp"
	FormatTIFF ImageFormat = "tiff"
	FormatWEBP ImageFormat = "webp"
	FormatICO  ImageFormat = "ico"
	FormatBIN  ImageFormat = "bin"
)

// magics
var (
	MagicV4Gen1 = []byte{0x07, 0x08, 'V', '1', 0x08, 0x07}
	MagicV4Gen2 = []byte{0x07, 0x08, 'V', '2', 0x08, 0x07}

	KeyV4Gen1 = []byte("cfcd208495d565ef")
	// used since client 4.0.3
	KeyV4Gen2 = []byte("43e7d25eb1b9bb64")

	// jpeg end of image, used to recover the tail xor key
	JPEGTrailer = []byte{0xFF, 0xD9}
)

var v4Keys = []struct {
	magic []byte
	key   []byte
}{
	{MagicV4Gen1, KeyV4Gen1},
	{MagicV4Gen2, KeyV4Gen2},
}

// legacy xor candidates, tried in order
var legacyCandidates = []struct {
	format ImageFormat
	magic  [2]byte
}{
	{FormatJPG, [2]byte{0xFF, 0xD8}},
	{FormatPNG, [2]byte{0x89, 0x50}},
	{FormatGIF, [2]byte{0x47, 0x49}},
}

// Scheme names the cipher a blob was decoded with.
type Scheme string

const (
	SchemeLegacy Scheme = "legacy"
	SchemeV4     Scheme = "v4"
)
