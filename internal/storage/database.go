package storage

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"award_chat/pkg/config"
)

// Database 包裝 gorm.DB，目前只存放分類目錄
type Database struct {
	*gorm.DB
}

// NewDatabase 依照設定的 driver 建立連線，driver 為 memory 時不需要資料庫，回傳 nil
func NewDatabase(cfg config.DBConfig) (*Database, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgresDB(cfg)
	case "sqlite":
		return Open(sqlite.Open(cfg.Path))
	case "memory":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func NewPostgresDB(cfg config.DBConfig) (*Database, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=%s",
		cfg.Host, cfg.User, cfg.Password, cfg.Name, cfg.Port, cfg.SSLMode, cfg.TimeZone)

	return Open(postgres.Open(dsn))
}

// Open 使用任意 gorm dialector 建立連線，測試時搭配 sqlite 使用
func Open(dialector gorm.Dialector) (*Database, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Database{DB: db}, nil
}

func (db *Database) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AutoMigrate 自動遷移資料庫結構
func (db *Database) AutoMigrate(models ...interface{}) error {
	return db.DB.AutoMigrate(models...)
}
