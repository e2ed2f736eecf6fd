package datcrypt

import (
	"bytes"
	"crypto/aes"
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/zing22845/go-wxcrypt/internal/utils"
)

// AESKeyForMagic picks the header key by the 6-byte generation tag.
func AESKeyForMagic(header []byte) ([]byte, bool) {
	if len(header) < V4MagicLen {
		return nil, false
	}
	for _, k := range v4Keys {
		if bytes.Equal(header[:V4MagicLen], k.magic) {
			return k.key, true
		}
	}
	return nil, false
}

// IsV4 reports whether header starts with a known v4 generation tag.
func IsV4(header []byte) bool {
	_, ok := AESKeyForMagic(header)
	return ok
}

// EncryptedRegionSize is the AES-ECB region that follows the 15-byte header,
// 0 when header is too short to carry the length field.
func EncryptedRegionSize(header []byte) int {
	if len(header) < 8 {
		return 0
	}
	n := int(binary.LittleEndian.Uint16(header[6:8]))
	return n/AESBlockSize*AESBlockSize + AESBlockSize
}

func decryptECB(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if rem := len(data) % AESBlockSize; rem != 0 {
		data = append(append([]byte(nil), data...), make([]byte, AESBlockSize-rem)...)
	}
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += AESBlockSize {
		block.Decrypt(out[i:i+AESBlockSize], data[i:i+AESBlockSize])
	}
	return out, nil
}

// DecodeV4 decodes a v4 blob held in memory: the AES-ECB header region is
// decrypted, the middle is copied as is and the final TailXORSize bytes are
// xor'ed with xorKey.
func DecodeV4(data []byte, xorKey byte) ([]byte, ImageFormat, error) {
	if len(data) < V4HeaderSize {
		return nil, "", errors.Wrapf(ErrTruncated, "v4 header needs %d bytes, got %d", V4HeaderSize, len(data))
	}
	key, ok := AESKeyForMagic(data)
	if !ok {
		return nil, "", errors.Wrapf(ErrUnrecognizedFormat, "magic %x", data[:V4MagicLen])
	}
	body := data[V4HeaderSize:]
	regionSize := EncryptedRegionSize(data)
	if regionSize > len(body) {
		regionSize = len(body)
	}
	head, err := decryptECB(key, body[:regionSize])
	if err != nil {
		return nil, "", errors.Wrap(err, "aes header")
	}
	format := Sniff(head)
	head = utils.TrimPadding(head, AESBlockSize)

	rest := body[regionSize:]
	split := len(rest) - TailXORSize
	if split < 0 {
		split = 0
	}
	out := make([]byte, 0, len(head)+len(rest))
	out = append(out, head...)
	out = append(out, rest[:split]...)
	tail := len(out)
	out = append(out, rest[split:]...)
	utils.XORInPlace(out[tail:], xorKey)
	return out, format, nil
}
