package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

func newStores(t *testing.T) map[string]Store {
	t.Helper()

	sqliteStore, err := OpenGorm("sqlite", filepath.Join(t.TempDir(), "relayer.db"))
	require.NoError(t, err)

	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	require.NoError(t, err)

	stores := map[string]Store{
		"sqlite":  sqliteStore,
		"leveldb": NewLevelStore(db),
	}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestProcessedTransferStore(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			record, err := s.Get(ctx, "ABCD", 0)
			require.NoError(t, err)
			require.Nil(t, record)

			require.NoError(t, s.Insert(ctx, "ABCD", 0, at))
			require.NoError(t, s.Insert(ctx, "ABCD", 1, at.Add(time.Second)))
			require.ErrorIs(t, s.Insert(ctx, "ABCD", 0, at.Add(time.Minute)), ErrDuplicate)

			record, err = s.Get(ctx, "ABCD", 0)
			require.NoError(t, err)
			require.NotNil(t, record)
			require.Equal(t, "ABCD", record.TxHash)
			require.Equal(t, uint32(0), record.MsgIndex)
			require.True(t, record.ProcessedAt.Equal(at), "duplicate insert must not overwrite the record")

			all, err := s.ListAll(ctx)
			require.NoError(t, err)

			got := make([][2]any, 0, len(all))
			for _, r := range all {
				got = append(got, [2]any{r.TxHash, r.MsgIndex})
			}
			want := [][2]any{{"ABCD", uint32(0)}, {"ABCD", uint32(1)}}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("ListAll mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCheckpointStoreMonotonic(t *testing.T) {
	ctx := context.Background()

	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			offset, err := s.GetOffset(ctx)
			require.NoError(t, err)
			require.Zero(t, offset)

			var last uint64
			for _, v := range []uint64{100, 250, 120, 250, 0, 300} {
				require.NoError(t, s.SetOffset(ctx, v))
				offset, err := s.GetOffset(ctx)
				require.NoError(t, err)
				require.GreaterOrEqual(t, offset, last)
				last = offset
			}
			require.Equal(t, uint64(300), last)
		})
	}
}

func TestLoadOffset(t *testing.T) {
	ctx := context.Background()

	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			offset, err := LoadOffset(ctx, s, 36000000)
			require.NoError(t, err)
			require.Equal(t, uint64(36000000), offset)

			persisted, err := s.GetOffset(ctx)
			require.NoError(t, err)
			require.Equal(t, uint64(36000000), persisted)

			require.NoError(t, s.SetOffset(ctx, 36000500))
			offset, err = LoadOffset(ctx, s, 36000000)
			require.NoError(t, err)
			require.Equal(t, uint64(36000500), offset)
		})
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "duckdb"})
	require.Error(t, err)
}
