package database

import (
	"fmt"

	"agentengine/src/externalmodel"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ReadOnlyDB is the read-only database connection used to poll external trading signals.
// The database user for this connection should have SELECT-only permissions.
var ReadOnlyDB *gorm.DB

// InitReadOnlyDB initializes the read-only database connection.
// It does not run any migrations and should only be used for reading data.
func InitReadOnlyDB() error {
	config := GetConfig()
	db, err := open(config.DatabaseURLReadOnly, config, true)
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB from ReadOnlyDB: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping ReadOnlyDB: %w", err)
	}

	var dbName, schema string
	if err := db.
		Raw("SELECT current_database(), current_schema()").
		Row().
		Scan(&dbName, &schema); err != nil {
		return fmt.Errorf("failed to query current db/schema on ReadOnlyDB: %w", err)
	}

	var count int64
	if err := db.Model(&externalmodel.TradingSignal{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to access trading_signals: %w", err)
	}

	logrus.WithFields(map[string]interface{}{
		"dbName":  dbName,
		"schema":  schema,
		"signals": count,
	}).Info("[ReadOnlyDB] connected, trading_signals reachable")

	ReadOnlyDB = db
	return nil
}
