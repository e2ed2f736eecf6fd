package datcrypt

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DecodeResult describes one decoded blob.
type DecodeResult struct {
	Output  string
	Format  ImageFormat
	Scheme  Scheme
	Skipped bool
	Written int64
}

type options struct {
	wrap   func(io.Writer) io.Writer
	logger *log.Entry
}

type Option func(*options)

// WithWriterMiddleware wraps the output writer, e.g. with a rate limiter.
func WithWriterMiddleware(wrap func(io.Writer) io.Writer) Option {
	return func(o *options) {
		o.wrap = wrap
	}
}

func WithLogger(l *log.Entry) Option {
	return func(o *options) {
		o.logger = l
	}
}

// OutputPath is outDIR/<name>.<format>, where name defaults to the input base
// name without its .dat extension.
func OutputPath(inPath, outDIR, dstName string, format ImageFormat) string {
	name := dstName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(inPath), DatExt)
	}
	return filepath.Join(outDIR, name+"."+string(format))
}

// DecodeFile decodes the blob at inPath into outDIR. v4 blobs are recognised by
// their header tag, everything else goes through the legacy xor scheme. An
// existing output file is left alone and reported as skipped.
func DecodeFile(ctx context.Context, xorKey byte, inPath, outDIR, dstName string, opts ...Option) (res *DecodeResult, err error) {
	o := &options{logger: log.WithField("path", inPath)}
	for _, opt := range opts {
		opt(o)
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}
	fi, err := os.Stat(inPath)
	if err != nil {
		return nil, errors.Wrapf(err, "stat %s", inPath)
	}
	if fi.IsDir() {
		return nil, errors.Errorf("%s is a directory", inPath)
	}
	if err = os.MkdirAll(outDIR, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create output directory %s", outDIR)
	}
	src, err := os.Open(inPath)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", inPath)
	}
	defer src.Close()

	header := make([]byte, V4HeaderSize)
	n, err := io.ReadFull(src, header)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, errors.Wrapf(err, "read header of %s", inPath)
	}
	header = header[:n]

	if IsV4(header) {
		return decodeFileV4(ctx, src, header, xorKey, inPath, outDIR, dstName, o)
	}

	format, key, err := GuessXorKey(header)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", inPath)
	}
	res = &DecodeResult{
		Output: OutputPath(inPath, outDIR, dstName, format),
		Format: format,
		Scheme: SchemeLegacy,
	}
	if exists(res.Output) {
		res.Skipped = true
		return res, nil
	}
	if _, err = src.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrapf(err, "seek %s", inPath)
	}
	res.Written, err = writeAtomic(res.Output, o.wrap, func(w io.Writer) (int64, error) {
		return DecodeLegacy(src, w, key)
	})
	if err != nil {
		return nil, err
	}
	o.logger.WithFields(log.Fields{"output": res.Output, "scheme": res.Scheme}).Debug("blob decoded")
	return res, nil
}

func decodeFileV4(ctx context.Context, src io.Reader, header []byte, xorKey byte, inPath, outDIR, dstName string, o *options) (*DecodeResult, error) {
	rest, err := io.ReadAll(src)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", inPath)
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}
	plain, format, err := DecodeV4(append(header, rest...), xorKey)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", inPath)
	}
	if format == FormatBIN {
		o.logger.Warn("unknown image type after v4 decode, writing as bin")
	}
	res := &DecodeResult{
		Output: OutputPath(inPath, outDIR, dstName, format),
		Format: format,
		Scheme: SchemeV4,
	}
	if exists(res.Output) {
		res.Skipped = true
		return res, nil
	}
	res.Written, err = writeAtomic(res.Output, o.wrap, func(w io.Writer) (int64, error) {
		return io.Copy(w, bytes.NewReader(plain))
	})
	if err != nil {
		return nil, err
	}
	o.logger.WithFields(log.Fields{"output": res.Output, "scheme": res.Scheme}).Debug("blob decoded")
	return res, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// writeAtomic materialises path only after fill succeeded.
func writeAtomic(path string, wrap func(io.Writer) io.Writer, fill func(io.Writer) (int64, error)) (n int64, err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, errors.Wrapf(err, "create temp file for %s", path)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	bw := bufio.NewWriter(tmp)
	var w io.Writer = bw
	if wrap != nil {
		w = wrap(bw)
	}
	if n, err = fill(w); err != nil {
		return 0, errors.Wrapf(err, "write %s", path)
	}
	if err = bw.Flush(); err != nil {
		return 0, errors.Wrapf(err, "flush %s", path)
	}
	if err = tmp.Sync(); err != nil {
		return 0, errors.Wrapf(err, "sync %s", tmp.Name())
	}
	if err = tmp.Close(); err != nil {
		return 0, errors.Wrapf(err, "close %s", tmp.Name())
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return 0, errors.Wrapf(err, "rename to %s", path)
	}
	return n, nil
}
