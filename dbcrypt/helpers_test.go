package dbcrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// cheap derivation, same algorithm
var (
	fastV3 = func() Profile { p := V3Profile; p.Name = "v3-fast"; p.Iterations = 2; return p }()
	fastV4 = func() Profile { p := V4Profile; p.Name = "v4-fast"; p.Iterations = 2; return p }()
)

func testPassphrase() []byte {
	b := make([]byte, KeySize)
	for i := range b {
		b[i] = byte(i * 7)
	}
	return b
}

func testSalt() []byte {
	return []byte("0123456789abcdef")
}

// plainSize is the decrypted payload length of a page.
func plainSize(p Profile, pageNo uint32) int {
	return PageSize - p.Reserve() - payloadOffset(pageNo)
}

func randomPlains(p Profile, n int, seed int64) [][]byte {
	r := rand.New(rand.NewSource(seed))
	plains := make([][]byte, n)
	for i := range plains {
		plains[i] = make([]byte, plainSize(p, uint32(i+1)))
		r.Read(plains[i])
	}
	return plains
}

// encryptPage builds the encrypted window for one page.
func encryptPage(t testing.TB, p Profile, encKey, macKey, salt, plain []byte, pageNo uint32) []byte {
	t.Helper()
	window := make([]byte, PageSize)
	off := payloadOffset(pageNo)
	end := PageSize - p.Reserve()
	require.Len(t, plain, end-off)
	if pageNo == 1 {
		copy(window, salt)
	}
	iv := bytes.Repeat([]byte{byte(pageNo), 0xa5}, IVSize/2)
	copy(window[end:], iv)
	block, err := aes.NewCipher(encKey)
	require.NoError(t, err)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(window[off:end], plain)
	copy(window[end+IVSize:], PageMAC(macKey, p, window, pageNo))
	return window
}

func encryptContainer(t testing.TB, p Profile, passphrase, salt []byte, plains [][]byte) []byte {
	t.Helper()
	encKey, macKey := DeriveKeys(passphrase, salt, p)
	var out bytes.Buffer
	for i, plain := range plains {
		out.Write(encryptPage(t, p, encKey, macKey, salt, plain, uint32(i+1)))
	}
	return out.Bytes()
}

// expectedOutput is what a correct decryption of plains must produce.
func expectedOutput(p Profile, encrypted []byte, plains [][]byte) []byte {
	var out bytes.Buffer
	out.WriteString(SQLiteHeader)
	for i, plain := range plains {
		window := encrypted[i*PageSize : (i+1)*PageSize]
		out.Write(plain)
		out.Write(window[PageSize-p.Reserve():])
	}
	return out.Bytes()
}
