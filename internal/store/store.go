// Package store persists the relayer's idempotency ledger and scan checkpoint.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDuplicate is returned when a transfer has already been recorded.
var ErrDuplicate = errors.New("transfer already processed")

// ProcessedTransfer marks a source message whose destination transfer was submitted.
type ProcessedTransfer struct {
	TxHash      string    `gorm:"primaryKey;size:128"`
	MsgIndex    uint32    `gorm:"primaryKey;autoIncrement:false"`
	ProcessedAt time.Time `gorm:"not null"`
}

func (ProcessedTransfer) TableName() string {
	return "processed_transaction"
}

// ProcessedTransferStore is the at-most-once execution ledger keyed by (txHash, msgIndex).
type ProcessedTransferStore interface {
	// Insert returns ErrDuplicate if the key already exists.
	Insert(ctx context.Context, txHash string, msgIndex uint32, at time.Time) error
	// Get returns nil, nil when the key is absent.
	Get(ctx context.Context, txHash string, msgIndex uint32) (*ProcessedTransfer, error)
	ListAll(ctx context.Context) ([]*ProcessedTransfer, error)
}

// CheckpointStore holds the watcher offset. Set never lowers the stored value.
type CheckpointStore interface {
	GetOffset(ctx context.Context) (uint64, error)
	SetOffset(ctx context.Context, offset uint64) error
}

type Store interface {
	ProcessedTransferStore
	CheckpointStore
	Close() error
}

type Config struct {
	Driver string // sqlite, mysql or leveldb
	DSN    string // database file for sqlite and leveldb, connection string for mysql
}

func Open(cfg Config) (Store, error) {
	switch cfg.Driver {
	case "sqlite", "mysql":
		s, err := OpenGorm(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "leveldb":
		s, err := OpenLevel(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %q", cfg.Driver)
	}
}

// LoadOffset returns the persisted offset clamped to floor. When nothing above the
// floor is persisted yet, the floor is written so later reads agree with it.
func LoadOffset(ctx context.Context, s CheckpointStore, floor uint64) (uint64, error) {
	offset, err := s.GetOffset(ctx)
	if err != nil {
		return 0, fmt.Errorf("load offset: %w", err)
	}
	if offset >= floor {
		return offset, nil
	}

	if err := s.SetOffset(ctx, floor); err != nil {
		return 0, fmt.Errorf("seed offset: %w", err)
	}
	return floor, nil
}
