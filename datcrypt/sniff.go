package datcrypt

import (
	"bytes"
)

var signatures = []struct {
	format ImageFormat
	match  func([]byte) bool
}{
	{FormatJPG, prefix(0xFF, 0xD8, 0xFF)},
	{FormatPNG, prefix(0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n')},
	{FormatGIF, func(b []byte) bool {
		return bytes.HasPrefix(b, []byte("GIF87a")) || bytes.HasPrefix(b, []byte("GIF89a"))
	}},
	{FormatBMP, prefix('B', 'M')},
	{FormatTIFF, func(b []byte) bool {
		return bytes.HasPrefix(b, []byte("II*\x00")) || bytes.HasPrefix(b, []byte("MM\x00*"))
	}},
	{FormatWEBP, func(b []byte) bool {
		return len(b) >= 12 && bytes.HasPrefix(b, []byte("RIFF")) && bytes.Equal(b[8:12], []byte("WEBP"))
	}},
	{FormatICO, prefix(0x00, 0x00, 0x01, 0x00)},
}

func prefix(p ...byte) func([]byte) bool {
	return func(b []byte) bool {
		return bytes.HasPrefix(b, p)
	}
}

// Sniff guesses the image type from the leading bytes of decoded data.
func Sniff(data []byte) ImageFormat {
	if len(data) > SniffLen {
		data = data[:SniffLen]
	}
	for _, sig := range signatures {
		if sig.match(data) {
			return sig.format
		}
	}
	return FormatBIN
}
