package dbcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/zing22845/go-wxcrypt/internal/utils"
)

// page 1 carries the salt in front of its ciphertext
func payloadOffset(pageNo uint32) int {
	if pageNo == 1 {
		return SaltSize
	}
	return 0
}

// PageMAC computes HMAC(macKey, ciphertext ++ iv ++ le32(pageNo)) for a page window.
// It returns nil when window is too short to hold a reserve region.
func PageMAC(macKey []byte, p Profile, window []byte, pageNo uint32) []byte {
	ivEnd := len(window) - p.Reserve() + IVSize
	if len(window) < p.Reserve() || ivEnd < payloadOffset(pageNo) {
		return nil
	}
	mac := hmac.New(p.Hash, macKey)
	mac.Write(window[payloadOffset(pageNo):ivEnd])
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], pageNo)
	mac.Write(n[:])
	return mac.Sum(nil)
}

// VerifyPage checks the MAC stored in the reserve region of a whole page window.
func VerifyPage(macKey []byte, p Profile, window []byte, pageNo uint32) bool {
	if len(window) != PageSize || pageNo == 0 {
		return false
	}
	macStart := PageSize - p.Reserve() + IVSize
	return hmac.Equal(PageMAC(macKey, p, window, pageNo), window[macStart:macStart+p.MACSize])
}

// DecryptPage authenticates and decrypts one page window. The result is the
// plaintext followed by the untouched reserve bytes.
func DecryptPage(encKey, macKey []byte, p Profile, window []byte, pageNo uint32, padding Padding) ([]byte, error) {
	if len(window) != PageSize {
		return nil, errors.Wrapf(ErrTruncated, "page %d is %d bytes", pageNo, len(window))
	}
	if !VerifyPage(macKey, p, window, pageNo) {
		return nil, errors.Wrapf(ErrKeyMismatch, "page %d hmac", pageNo)
	}
	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, err
	}
	end := PageSize - p.Reserve()
	ciphertext := window[payloadOffset(pageNo):end]
	plain := make([]byte, len(ciphertext), len(ciphertext)+p.Reserve())
	cipher.NewCBCDecrypter(block, window[end:end+IVSize]).CryptBlocks(plain, ciphertext)
	if padding == PaddingStrip {
		plain = utils.TrimPadding(plain, AESBlockSize)
	}
	return append(plain, window[end:]...), nil
}

// IsZeroPage reports whether a page window is the all-zero end marker.
func IsZeroPage(window []byte) bool {
	return utils.IsZero(window)
}
