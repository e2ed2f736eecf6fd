package datcrypt

import (
	"io"

	"github.com/pkg/errors"
	"github.com/zing22845/go-wxcrypt/internal/utils"
)

// GuessXorKey recovers the single-byte key from the first two bytes of a legacy
// blob by matching known image magics. The first candidate that fits wins.
func GuessXorKey(head []byte) (ImageFormat, byte, error) {
	if len(head) < 2 {
		return "", 0, errors.Wrapf(ErrTruncated, "need 2 bytes, got %d", len(head))
	}
	for _, c := range legacyCandidates {
		key := head[0] ^ c.magic[0]
		if head[1]^key == c.magic[1] {
			return c.format, key, nil
		}
	}
	return "", 0, errors.Wrapf(ErrUnrecognizedFormat, "head %x is not a xor'ed jpg, png or gif", head[:2])
}

// DecodeLegacy xors the whole stream with key.
func DecodeLegacy(r io.Reader, w io.Writer, key byte) (int64, error) {
	return utils.ChunkedCopy(w, r, LegacyChunkSize, func(b []byte) {
		utils.XORInPlace(b, key)
	}, nil)
}
