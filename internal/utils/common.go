package utils

import (
	"io"
)

// ChunkedCopy copies src to dst in chunkSize pieces. When transform is set it is
// applied in place to every chunk before the write. progressFn, if set, is called
// with the number of bytes of each chunk after it is written.
func ChunkedCopy(dst io.Writer, src io.Reader, chunkSize int, transform func([]byte), progressFn func(int)) (written int64, err error) {
	buf := make([]byte, chunkSize)

	for {
		nr, er := src.Read(buf)
		if nr > 0 {
			if transform != nil {
				transform(buf[:nr])
			}
			nw, ew := dst.Write(buf[0:nr])
			if nw > 0 {
				written += int64(nw)
			}
			if ew != nil {
				err = ew
				break
			}
			if nr != nw {
				err = io.ErrShortWrite
				break
			}
			if progressFn != nil {
				progressFn(nr)
			}
		}
		if er != nil {
			if er != io.EOF {
				err = er
			}
			break
		}
	}
	return written, err
}

// XORInPlace xors every byte of b with key.
func XORInPlace(b []byte, key byte) {
	for i := range b {
		b[i] ^= key
	}
}

// IsZero reports whether b holds only zero bytes.
func IsZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// TrimPadding drops PKCS-style padding: the last byte announces how many trailing
// bytes to remove. Values outside 1..blockSize leave b untouched.
func TrimPadding(b []byte, blockSize int) []byte {
	if len(b) == 0 {
		return b
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return b
	}
	return b[:len(b)-n]
}
