package batch

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zing22845/go-wxcrypt/dbcrypt"
)

var fastV4 = func() dbcrypt.Profile { p := dbcrypt.V4Profile; p.Iterations = 2; return p }()

var (
	testKey    = bytes.Repeat([]byte{0x5c}, dbcrypt.KeySize)
	testKeyHex = hex.EncodeToString(testKey)
	otherKey   = hex.EncodeToString(bytes.Repeat([]byte{0x11}, dbcrypt.KeySize))
)

// buildContainer encrypts pages of random plaintext under testKey.
func buildContainer(t testing.TB, p dbcrypt.Profile, pages int, seed int64) []byte {
	t.Helper()
	r := rand.New(rand.NewSource(seed))
	salt := make([]byte, dbcrypt.SaltSize)
	r.Read(salt)
	encKey, macKey := dbcrypt.DeriveKeys(testKey, salt, p)
	block, err := aes.NewCipher(encKey)
	require.NoError(t, err)

	var out bytes.Buffer
	for pageNo := uint32(1); pageNo <= uint32(pages); pageNo++ {
		window := make([]byte, dbcrypt.PageSize)
		off := 0
		if pageNo == 1 {
			copy(window, salt)
			off = dbcrypt.SaltSize
		}
		end := dbcrypt.PageSize - p.Reserve()
		plain := make([]byte, end-off)
		r.Read(plain)
		iv := window[end : end+dbcrypt.IVSize]
		r.Read(iv)
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(window[off:end], plain)
		copy(window[end+dbcrypt.IVSize:], dbcrypt.PageMAC(macKey, p, window, pageNo))
		out.Write(window)
	}
	return out.Bytes()
}

// legacyJPEG is a jpeg-looking blob xor'ed with key.
func legacyJPEG(n int, key byte) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(int64(n))).Read(b)
	copy(b, []byte{0xFF, 0xD8, 0xFF, 0xE0})
	for i := range b {
		b[i] ^= key
	}
	return b
}

func writeFile(t testing.TB, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}
