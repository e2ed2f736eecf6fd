package dbcrypt

import (
	"crypto/sha1"
	"crypto/sha512"
	"hash"
	"strings"

	"github.com/zing22845/go-wxcrypt/cryptoerr"
)

const (
	PageSize     = 4096
	SaltSize     = 16
	KeySize      = 32
	IVSize       = 16
	AESBlockSize = 16
	MACRounds    = 2
	MACSaltMask  = 0x3a
	SQLiteHeader = "SQLite format 3\x00"
)

// errors
var (
	ErrKeyMismatch = cryptoerr.ErrKeyMismatch
	ErrTruncated   = cryptoerr.ErrTruncated
	ErrInvalidKey  = cryptoerr.ErrInvalidKey
)

// ZeroPagePolicy decides what happens when a page window is entirely zero bytes.
type ZeroPagePolicy uint8

const (
	// ZeroPageDefault defers to the profile.
	ZeroPageDefault ZeroPagePolicy = iota
	// ZeroPageStop copies the zero page to the output and ends decryption without error.
	ZeroPageStop
	// ZeroPageVerify treats a zero page like any other page, so its MAC must verify.
	ZeroPageVerify
)

func (z ZeroPagePolicy) String() string {
	switch z {
	case ZeroPageStop:
		return "stop"
	case ZeroPageVerify:
		return "verify"
	default:
		return "default"
	}
}

// ParseZeroPagePolicy maps "stop", "verify" and "" (default).
func ParseZeroPagePolicy(s string) (ZeroPagePolicy, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return ZeroPageDefault, true
	case "stop":
		return ZeroPageStop, true
	case "verify":
		return ZeroPageVerify, true
	}
	return ZeroPageDefault, false
}

// Padding selects whether PKCS-style padding is removed from page plaintext.
type Padding uint8

const (
	// PaddingRaw keeps the full decrypted payload so pages stay aligned.
	PaddingRaw Padding = iota
	// PaddingStrip drops trailing padding announced by the last plaintext byte.
	PaddingStrip
)

// ParsePadding maps "raw" (or "") and "strip".
func ParsePadding(s string) (Padding, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "raw":
		return PaddingRaw, true
	case "strip":
		return PaddingStrip, true
	}
	return PaddingRaw, false
}

// Profile carries everything that differs between container generations.
// A zero Version means the generation is detected from page 1.
type Profile struct {
	Name       string
	Version    int
	Hash       func() hash.Hash
	Iterations int
	MACSize    int
	ZeroPage   ZeroPagePolicy
}

// Reserve is the IV+MAC region at the end of each page, rounded to the AES block size.
func (p Profile) Reserve() int {
	r := IVSize + p.MACSize
	return (r + AESBlockSize - 1) / AESBlockSize * AESBlockSize
}

// IsAuto reports whether the profile must be resolved by Detect.
func (p Profile) IsAuto() bool {
	return p.Version == 0
}

func (p Profile) String() string {
	return p.Name
}

var (
	V3Profile = Profile{
		Name:       "v3",
		Version:    3,
		Hash:       sha1.New,
		Iterations: 64000,
		MACSize:    sha1.Size,
		ZeroPage:   ZeroPageVerify,
	}
	V4Profile = Profile{
		Name:       "v4",
		Version:    4,
		Hash:       sha512.New,
		Iterations: 256000,
		MACSize:    sha512.Size,
		ZeroPage:   ZeroPageStop,
	}
	AutoProfile = Profile{Name: "auto"}

	// Profiles is the order Detect tries generations in.
	Profiles = []Profile{V4Profile, V3Profile}
)

// ProfileByName accepts "v3", "3", "v4", "4" and "auto".
func ProfileByName(name string) (Profile, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "v3", "3":
		return V3Profile, true
	case "v4", "4":
		return V4Profile, true
	case "", "auto":
		return AutoProfile, true
	}
	return Profile{}, false
}
