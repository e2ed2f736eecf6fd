package datcrypt

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// searched in this order under the account directory
var xorKeyDIRs = []string{"cache", "temp", "msg"}

// FindXorKey recovers the tail xor key of v4 blobs from the thumbnails under
// wxDIR. Thumbnails are jpegs, so their last two bytes xor the key into FF D9.
func FindXorKey(wxDIR string) (byte, error) {
	fi, err := os.Stat(wxDIR)
	if err != nil {
		return 0, errors.Wrapf(err, "stat %s", wxDIR)
	}
	if !fi.IsDir() {
		return 0, errors.Errorf("%s is not a directory", wxDIR)
	}
	if _, err = os.Stat(filepath.Join(wxDIR, xorKeyDIRs[0])); err != nil {
		return 0, errors.Wrapf(err, "%s does not look like an account directory", wxDIR)
	}
	for _, sub := range xorKeyDIRs {
		key, found, err := findXorKeyIn(filepath.Join(wxDIR, sub))
		if err != nil {
			return 0, err
		}
		if found {
			log.WithFields(log.Fields{"dir": sub, "key": key}).Info("xor key found")
			return key, nil
		}
	}
	return 0, errors.Wrapf(ErrKeyMismatch, "xor key not found under %s", wxDIR)
}

func findXorKeyIn(dir string) (key byte, found bool, err error) {
	if _, err = os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// unreadable subtrees do not stop the search
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ThumbSuffix) {
			return nil
		}
		k, ok := XorKeyFromThumbnail(path)
		if !ok {
			return nil
		}
		key, found = k, true
		return fs.SkipAll
	})
	return key, found, err
}

// XorKeyFromThumbnail derives the key from one v4 thumbnail, if conclusive.
func XorKeyFromThumbnail(path string) (byte, bool) {
	data, err := os.ReadFile(path)
	if err != nil || len(data) < V4HeaderSize || !IsV4(data) {
		return 0, false
	}
	tail := data[len(data)-2:]
	k0, k1 := tail[0]^JPEGTrailer[0], tail[1]^JPEGTrailer[1]
	if k0 != k1 {
		return 0, false
	}
	return k0, true
}
