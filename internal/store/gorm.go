package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const offsetKey = "sync_block_offset"

// ConfigEntry is a name/value row; the watcher offset lives under offsetKey.
type ConfigEntry struct {
	Name        string    `gorm:"primaryKey;size:64"`
	Value       string    `gorm:"not null"`
	UpdatedTime time.Time `gorm:"autoUpdateTime"`
}

func (ConfigEntry) TableName() string {
	return "config"
}

type GormStore struct {
	db *gorm.DB
}

func OpenGorm(driver, dsn string) (*GormStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case "mysql":
		dialector = mysql.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported gorm driver: %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}

	return NewGormStore(db)
}

// NewGormStore creates the tables if they are absent.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&ProcessedTransfer{}, &ConfigEntry{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Insert(ctx context.Context, txHash string, msgIndex uint32, at time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		var count int64
		err := dbtx.Model(&ProcessedTransfer{}).
			Where("tx_hash = ? AND msg_index = ?", txHash, msgIndex).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicate
		}

		err = dbtx.Create(&ProcessedTransfer{TxHash: txHash, MsgIndex: msgIndex, ProcessedAt: at.UTC()}).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return err
	})
}

func (s *GormStore) Get(ctx context.Context, txHash string, msgIndex uint32) (*ProcessedTransfer, error) {
	var record ProcessedTransfer
	err := s.db.WithContext(ctx).
		Where("tx_hash = ? AND msg_index = ?", txHash, msgIndex).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *GormStore) ListAll(ctx context.Context) ([]*ProcessedTransfer, error) {
	var records []*ProcessedTransfer
	err := s.db.WithContext(ctx).Order("processed_at, tx_hash, msg_index").Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *GormStore) GetOffset(ctx context.Context) (uint64, error) {
	return getUint64(s.db.WithContext(ctx), offsetKey)
}

func (s *GormStore) SetOffset(ctx context.Context, offset uint64) error {
	return s.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		current, err := getUint64(dbtx, offsetKey)
		if err != nil {
			return err
		}
		if offset <= current {
			return nil
		}
		return setValue(dbtx, offsetKey, strconv.FormatUint(offset, 10))
	})
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func setValue(db *gorm.DB, key, value string) error {
	var entry ConfigEntry
	err := db.Where("name = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.Create(&ConfigEntry{Name: key, Value: value}).Error
	}
	if err != nil {
		return err
	}

	return db.Model(&ConfigEntry{}).Where("name = ?", key).Update("value", value).Error
}

// getUint64 returns 0 for a missing key.
func getUint64(db *gorm.DB, key string) (uint64, error) {
	var entry ConfigEntry
	err := db.Where("name = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	value, err := strconv.ParseUint(entry.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return value, nil
}
