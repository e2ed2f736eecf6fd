package dbcrypt

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const ioBufferSize = 64 * PageSize

// FileResult describes a finished container decryption.
type FileResult struct {
	Profile       Profile
	Pages         uint32
	Written       int64
	StoppedAtZero bool
}

// DecryptFile decrypts the container at inPath into outPath. The output only
// appears at outPath after every page was verified; on any failure the
// partially written temp file is removed.
func DecryptFile(ctx context.Context, p Profile, hexKey, inPath, outPath string, opts ...Option) (res *FileResult, err error) {
	passphrase, err := DecodeKey(hexKey)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(inPath)
	if err != nil {
		return nil, errors.Wrapf(err, "stat %s", inPath)
	}
	if fi.IsDir() {
		return nil, errors.Errorf("%s is a directory", inPath)
	}
	src, err := os.Open(inPath)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", inPath)
	}
	defer src.Close()

	outDIR := filepath.Dir(outPath)
	if _, err = os.Stat(outDIR); err != nil {
		return nil, errors.Wrapf(err, "output directory %s", outDIR)
	}
	tmp, err := os.CreateTemp(outDIR, "."+filepath.Base(outPath)+".*.tmp")
	if err != nil {
		return nil, errors.Wrapf(err, "create temp file in %s", outDIR)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriterSize(tmp, ioBufferSize)
	opts = append([]Option{WithLogger(log.WithField("path", inPath))}, opts...)
	dc, err := NewDecryptContext(p, passphrase, bufio.NewReaderSize(src, ioBufferSize), bw, opts...)
	if err != nil {
		return nil, err
	}
	if err = dc.ProcessPages(ctx); err != nil {
		return nil, errors.Wrapf(err, "decrypt %s", inPath)
	}
	if err = bw.Flush(); err != nil {
		return nil, errors.Wrapf(err, "flush %s", tmp.Name())
	}
	if err = tmp.Sync(); err != nil {
		return nil, errors.Wrapf(err, "sync %s", tmp.Name())
	}
	if err = tmp.Close(); err != nil {
		return nil, errors.Wrapf(err, "close %s", tmp.Name())
	}
	if err = os.Rename(tmp.Name(), outPath); err != nil {
		return nil, errors.Wrapf(err, "rename to %s", outPath)
	}
	return &FileResult{
		Profile:       dc.Profile(),
		Pages:         dc.Pages(),
		Written:       dc.Written(),
		StoppedAtZero: dc.StoppedAtZeroPage(),
	}, nil
}

// DetectFile reads page 1 of the container at path and resolves its generation.
func DetectFile(hexKey, path string) (Profile, error) {
	passphrase, err := DecodeKey(hexKey)
	if err != nil {
		return Profile{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return Profile{}, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	page := make([]byte, PageSize)
	n, err := io.ReadFull(f, page)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return Profile{}, errors.Wrapf(err, "read %s", path)
	}
	return Detect(passphrase, page[:n])
}
