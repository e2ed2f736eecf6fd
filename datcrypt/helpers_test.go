package datcrypt

import (
	"bytes"
	"crypto/aes"
	"encoding/binary"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeJPEG returns n bytes that sniff as jpeg and end with FF D9.
func fakeJPEG(n int, seed int64) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(b)
	copy(b, []byte{0xFF, 0xD8, 0xFF, 0xE0})
	b[n-2], b[n-1] = 0xFF, 0xD9
	return b
}

func pkcs7(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(append([]byte(nil), b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

// encodeV4 builds a v4 blob: the first aesLen bytes are padded and AES-ECB
// encrypted, the last min(rest, TailXORSize) bytes of the remainder are xor'ed.
func encodeV4(t *testing.T, magic, key, plain []byte, aesLen int, xorKey byte) []byte {
	t.Helper()
	if aesLen > len(plain) {
		aesLen = len(plain)
	}
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	head := pkcs7(plain[:aesLen])
	enc := make([]byte, len(head))
	for i := 0; i < len(head); i += aes.BlockSize {
		block.Encrypt(enc[i:i+aes.BlockSize], head[i:i+aes.BlockSize])
	}
	rest := append([]byte(nil), plain[aesLen:]...)
	split := len(rest) - TailXORSize
	if split < 0 {
		split = 0
	}
	for i := split; i < len(rest); i++ {
		rest[i] ^= xorKey
	}

	var buf bytes.Buffer
	buf.Write(magic)
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(aesLen)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(len(rest)-split)))
	buf.WriteByte(0x01)
	buf.Write(enc)
	buf.Write(rest)
	return buf.Bytes()
}

func xorBytes(b []byte, key byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[i] = b[i] ^ key
	}
	return out
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}
