package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var (
	processedPrefix = []byte("processed/")
	offsetDBKey     = []byte("config/" + offsetKey)
)

// LevelStore keeps both stores in one embedded goleveldb database.
type LevelStore struct {
	mu sync.Mutex
	db *leveldb.DB
}

func OpenLevel(dir string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", dir, err)
	}
	return NewLevelStore(db), nil
}

func NewLevelStore(db *leveldb.DB) *LevelStore {
	return &LevelStore{db: db}
}

func processedKey(txHash string, msgIndex uint32) []byte {
	return []byte(fmt.Sprintf("%s%s/%d", processedPrefix, txHash, msgIndex))
}

func (s *LevelStore) Insert(_ context.Context, txHash string, msgIndex uint32, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := processedKey(txHash, msgIndex)
	ok, err := s.db.Has(key, nil)
	if err != nil {
		return err
	}
	if ok {
		return ErrDuplicate
	}

	value := make([]byte, 8)
	binary.BigEndian.PutUint64(value, uint64(at.UnixNano()))
	return s.db.Put(key, value, nil)
}

func (s *LevelStore) Get(_ context.Context, txHash string, msgIndex uint32) (*ProcessedTransfer, error) {
	value, err := s.db.Get(processedKey(txHash, msgIndex), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeProcessed(txHash, msgIndex, value)
}

func (s *LevelStore) ListAll(_ context.Context) ([]*ProcessedTransfer, error) {
	iter := s.db.NewIterator(util.BytesPrefix(processedPrefix), nil)
	defer iter.Release()

	var records []*ProcessedTransfer
	for iter.Next() {
		rest := bytes.TrimPrefix(iter.Key(), processedPrefix)
		sep := bytes.LastIndexByte(rest, '/')
		if sep < 0 {
			return nil, fmt.Errorf("malformed key %q", iter.Key())
		}
		msgIndex, err := strconv.ParseUint(string(rest[sep+1:]), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("malformed key %q: %w", iter.Key(), err)
		}
		record, err := decodeProcessed(string(rest[:sep]), uint32(msgIndex), iter.Value())
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *LevelStore) GetOffset(_ context.Context) (uint64, error) {
	value, err := s.db.Get(offsetDBKey, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(value) != 8 {
		return 0, fmt.Errorf("malformed offset value of %d bytes", len(value))
	}
	return binary.BigEndian.Uint64(value), nil
}

func (s *LevelStore) SetOffset(ctx context.Context, offset uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.GetOffset(ctx)
	if err != nil {
		return err
	}
	if offset <= current {
		return nil
	}

	value := make([]byte, 8)
	binary.BigEndian.PutUint64(value, offset)
	return s.db.Put(offsetDBKey, value, nil)
}

func (s *LevelStore) Close() error {
	return s.db.Close()
}

func decodeProcessed(txHash string, msgIndex uint32, value []byte) (*ProcessedTransfer, error) {
	if len(value) != 8 {
		return nil, fmt.Errorf("malformed record for %s/%d", txHash, msgIndex)
	}
	return &ProcessedTransfer{
		TxHash:      txHash,
		MsgIndex:    msgIndex,
		ProcessedAt: time.Unix(0, int64(binary.BigEndian.Uint64(value))).UTC(),
	}, nil
}
