package dbcrypt

import (
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/pbkdf2"
)

// DeriveKeys stretches the passphrase with the file salt into the page cipher key
// and the HMAC key. The MAC key always takes MACRounds rounds over the cipher key.
func DeriveKeys(passphrase, salt []byte, p Profile) (encKey, macKey []byte) {
	encKey = pbkdf2.Key(passphrase, salt, p.Iterations, KeySize, p.Hash)
	macSalt := make([]byte, len(salt))
	for i, b := range salt {
		macSalt[i] = b ^ MACSaltMask
	}
	macKey = pbkdf2.Key(encKey, macSalt, MACRounds, KeySize, p.Hash)
	return encKey, macKey
}

// DecodeKey turns the 64 hex digit raw key into its 32 bytes.
func DecodeKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != KeySize*2 {
		return nil, errors.Wrapf(ErrInvalidKey, "want %d hex digits, got %d", KeySize*2, len(s))
	}
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidKey, err.Error())
	}
	return key, nil
}
