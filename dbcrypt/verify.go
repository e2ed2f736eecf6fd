package dbcrypt

import (
	"os"

	"github.com/pkg/errors"
	"github.com/zing22845/go-wxcrypt/internal/sqlitedb"
)

// DatabaseInfo is what a standard sqlite reader sees in a decrypted container.
type DatabaseInfo struct {
	Path       string
	Tables     []string
	QuickCheck string
}

// OK reports whether sqlite found no corruption.
func (i *DatabaseInfo) OK() bool {
	return i.QuickCheck == "ok"
}

// CheckDatabase opens a decrypted container with a stock sqlite driver and
// runs a quick integrity check over it.
func CheckDatabase(path string) (info *DatabaseInfo, err error) {
	// gorm would silently create a missing file
	if _, err = os.Stat(path); err != nil {
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	db, err := sqlitedb.NewConnection(path, false)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer sqlitedb.CloseConnection(db)

	info = &DatabaseInfo{Path: path}
	info.QuickCheck, err = sqlitedb.QuickCheck(db)
	if err != nil {
		return nil, errors.Wrapf(err, "quick check %s", path)
	}
	info.Tables, err = sqlitedb.ListTables(db)
	if err != nil {
		return nil, errors.Wrapf(err, "list tables of %s", path)
	}
	return info, nil
}
