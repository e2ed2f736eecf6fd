package dbcrypt

import (
	"context"
	"io"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DecryptContext walks an encrypted container page by page. Keys are derived
// once from the salt of page 1 and reused for every later page of the same
// file. Pages are verified before their plaintext is written.
type DecryptContext struct {
	profile    Profile
	passphrase []byte
	reader     io.Reader
	writer     io.Writer
	zeroPage   ZeroPagePolicy
	padding    Padding
	logger     *log.Entry
	encKey     []byte
	macKey     []byte
	window     []byte
	pageNo     uint32
	zeroStop   bool
	done       bool
	written    int64
}

type Option func(*DecryptContext)

// WithZeroPagePolicy overrides the profile's handling of all-zero pages.
func WithZeroPagePolicy(z ZeroPagePolicy) Option {
	return func(dc *DecryptContext) {
		dc.zeroPage = z
	}
}

func WithPadding(p Padding) Option {
	return func(dc *DecryptContext) {
		dc.padding = p
	}
}

func WithLogger(l *log.Entry) Option {
	return func(dc *DecryptContext) {
		if l != nil {
			dc.logger = l
		}
	}
}

// WithWriterMiddleware wraps the output writer, e.g. with a rate limiter.
func WithWriterMiddleware(wrap func(io.Writer) io.Writer) Option {
	return func(dc *DecryptContext) {
		if wrap != nil {
			dc.writer = wrap(dc.writer)
		}
	}
}

func NewDecryptContext(p Profile, passphrase []byte, reader io.Reader, writer io.Writer, opts ...Option) (dc *DecryptContext, err error) {
	if len(passphrase) != KeySize {
		return nil, errors.Wrapf(ErrInvalidKey, "want %d bytes, got %d", KeySize, len(passphrase))
	}
	dc = &DecryptContext{
		profile:    p,
		passphrase: passphrase,
		reader:     reader,
		writer:     writer,
		window:     make([]byte, PageSize),
		logger:     log.NewEntry(log.StandardLogger()),
	}
	for _, opt := range opts {
		opt(dc)
	}
	dc.logger = dc.logger.WithField("profile", p.Name)
	return dc, nil
}

// Profile returns the generation in use; after page 1 an auto profile is resolved.
func (dc *DecryptContext) Profile() Profile {
	return dc.profile
}

// Pages is the number of page windows written so far.
func (dc *DecryptContext) Pages() uint32 {
	return dc.pageNo
}

// Written is the number of output bytes, canonical header included.
func (dc *DecryptContext) Written() int64 {
	return dc.written
}

// StoppedAtZeroPage reports whether decryption ended on an all-zero page.
func (dc *DecryptContext) StoppedAtZeroPage() bool {
	return dc.zeroStop
}

func (dc *DecryptContext) zeroPagePolicy() ZeroPagePolicy {
	if dc.zeroPage != ZeroPageDefault {
		return dc.zeroPage
	}
	if dc.profile.IsAuto() {
		// only the newer generation is known to write zero pages
		return V4Profile.ZeroPage
	}
	return dc.profile.ZeroPage
}

func (dc *DecryptContext) write(b []byte) error {
	n, err := dc.writer.Write(b)
	dc.written += int64(n)
	if err != nil {
		return errors.Wrap(err, "write decrypted page")
	}
	return nil
}

// readWindow fills the page buffer. A missing or partial trailing page is the
// end of the container, except for page 1 which must be whole.
func (dc *DecryptContext) readWindow() error {
	n, err := io.ReadFull(dc.reader, dc.window)
	if err == nil {
		return nil
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		if dc.pageNo == 0 {
			return errors.Wrapf(ErrTruncated, "first page has %d of %d bytes", n, PageSize)
		}
		if n > 0 {
			dc.logger.WithField("bytes", n).Debug("ignore trailing partial page")
		}
		return io.EOF
	}
	return errors.Wrapf(err, "read page %d", dc.pageNo+1)
}

// Next decrypts one page and writes it. It returns io.EOF when the container is exhausted.
func (dc *DecryptContext) Next() (err error) {
	if dc.done {
		return io.EOF
	}
	if err = dc.readWindow(); err != nil {
		if err == io.EOF {
			dc.done = true
		}
		return err
	}
	pageNo := dc.pageNo + 1

	if dc.zeroPagePolicy() == ZeroPageStop && IsZeroPage(dc.window) {
		if pageNo == 1 {
			if err = dc.write([]byte(SQLiteHeader)); err != nil {
				return err
			}
		}
		// on page 1 the header stands in for the salt, so the output stays
		// exactly one page long
		if err = dc.write(dc.window[payloadOffset(pageNo):]); err != nil {
			return err
		}
		dc.pageNo = pageNo
		dc.zeroStop = true
		dc.done = true
		dc.logger.WithField("page", pageNo).Info("zero page reached, stop decrypting")
		return nil
	}

	if pageNo == 1 {
		if err = dc.deriveKeys(); err != nil {
			return err
		}
	}

	plain, err := DecryptPage(dc.encKey, dc.macKey, dc.profile, dc.window, pageNo, dc.padding)
	if err != nil {
		return err
	}
	if pageNo == 1 {
		if err = dc.write([]byte(SQLiteHeader)); err != nil {
			return err
		}
	}
	if err = dc.write(plain); err != nil {
		return err
	}
	dc.pageNo = pageNo
	return nil
}

func (dc *DecryptContext) deriveKeys() error {
	salt := dc.window[:SaltSize]
	if !dc.profile.IsAuto() {
		dc.encKey, dc.macKey = DeriveKeys(dc.passphrase, salt, dc.profile)
		return nil
	}
	p, encKey, macKey, err := detect(dc.passphrase, dc.window)
	if err != nil {
		return err
	}
	dc.profile, dc.encKey, dc.macKey = p, encKey, macKey
	dc.logger = dc.logger.WithField("profile", p.Name)
	dc.logger.Debug("container generation detected")
	return nil
}

// ProcessPages decrypts until the end of the container. Cancellation is
// checked between pages.
func (dc *DecryptContext) ProcessPages(ctx context.Context) (err error) {
	for {
		if err = ctx.Err(); err != nil {
			return errors.Wrapf(err, "stopped after page %d", dc.pageNo)
		}
		err = dc.Next()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

func detect(passphrase, firstPage []byte) (p Profile, encKey, macKey []byte, err error) {
	if len(firstPage) < PageSize {
		return p, nil, nil, errors.Wrapf(ErrTruncated, "first page has %d of %d bytes", len(firstPage), PageSize)
	}
	window := firstPage[:PageSize]
	for _, p = range Profiles {
		encKey, macKey = DeriveKeys(passphrase, window[:SaltSize], p)
		if VerifyPage(macKey, p, window, 1) {
			return p, encKey, macKey, nil
		}
	}
	return Profile{}, nil, nil, errors.Wrap(ErrKeyMismatch, "no container generation verifies page 1")
}

// Detect returns the first generation whose page 1 MAC verifies under passphrase.
func Detect(passphrase, firstPage []byte) (Profile, error) {
	p, _, _, err := detect(passphrase, firstPage)
	return p, err
}
