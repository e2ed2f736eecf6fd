package sqlitedb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	log "github.com/sirupsen/logrus"
	gormv2logrus "github.com/thomas-tacquet/gormv2-logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewGormLogger routes gorm logs through the standard logrus logger.
func NewGormLogger() logger.Interface {
	level := logger.Warn
	switch {
	case log.IsLevelEnabled(log.DebugLevel):
		level = logger.Info
	case !log.IsLevelEnabled(log.WarnLevel):
		level = logger.Error
	}
	return gormv2logrus.NewGormlog(
		gormv2logrus.WithLogrus(log.StandardLogger()),
		gormv2logrus.WithGormOptions(
			gormv2logrus.GormOptions{
				SlowThreshold: 800 * time.Millisecond,
				LogLevel:      level,
				LogLatency:    true,
			},
		),
	)
}

// NewConnection opens a sqlite file. fastWrites turns off fsync for files
// that are only bookkeeping, like the batch ledger.
func NewConnection(dbPath string, fastWrites bool) (db *gorm.DB, err error) {
	db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{Logger: NewGormLogger()})
	if err != nil {
		return nil, err
	}
	if fastWrites {
		err = db.Exec("PRAGMA synchronous = OFF").Error
		if err != nil {
			CloseConnection(db)
			return nil, err
		}
	}
	return db, nil
}

func CloseConnection(db *gorm.DB) {
	if db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	_ = sqlDB.Close()
}

func CheckTableExists(tableName string, db *gorm.DB) (exists bool, err error) {
	query := `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`
	var result int64
	err = db.Raw(query, tableName).Scan(&result).Error
	if err != nil {
		return false, err
	}
	return result > 0, nil
}

func CheckFieldExists(
	tableName, fieldName string,
	db *gorm.DB,
) (exists bool, err error) {
	query := fmt.Sprintf("PRAGMA table_info(%s);", tableName)
	rows, err := db.Raw(query).Rows()
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue sql.NullString
		if err = rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == fieldName {
			return true, nil
		}
	}
	return false, rows.Err()
}

// ListTables returns the user table names in name order.
func ListTables(db *gorm.DB) (tables []string, err error) {
	err = db.Table("sqlite_master").
		Where("type = ?", "table").
		Order("name").
		Pluck("name", &tables).Error
	return tables, err
}

// QuickCheck runs PRAGMA quick_check and returns its first line, "ok" when sound.
func QuickCheck(db *gorm.DB) (result string, err error) {
	err = db.Raw("PRAGMA quick_check").Row().Scan(&result)
	return result, err
}
