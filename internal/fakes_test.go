package internal

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	abci "github.com/cometbft/cometbft/abci/types"
	txtypes "github.com/cosmos/cosmos-sdk/types/tx"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/orai-bridge/relayer/internal/clients"
	"github.com/orai-bridge/relayer/internal/store"
	"github.com/orai-bridge/relayer/internal/submitter"
)

var (
	testIdentity = common.HexToAddress("0x8754032Ac7966A909e2E753308dF56bb08DabD69")
	testToken    = common.HexToAddress("0x55d398326f99059fF775485246999027B3197955")
	testNow      = time.Unix(1700000000, 0)
)

func encodeTx(t *testing.T, memo string) []byte {
	t.Helper()

	body := txtypes.TxBody{Memo: memo}
	bodyBytes, err := body.Marshal()
	require.NoError(t, err)

	raw := txtypes.TxRaw{BodyBytes: bodyBytes}
	bz, err := raw.Marshal()
	require.NoError(t, err)
	return bz
}

// bridgeEvent builds a send_packet event on the test bridge path.
func bridgeEvent(sequence, amount, denom string) abci.Event {
	data := `{"amount":"` + amount + `","denom":"` + denom + `","receiver":"orai1receiver","sender":"orai1sender","memo":""}`
	return sendPacketEvent(
		"packet_data", data,
		"packet_timeout_height", "0-0",
		"packet_timeout_timestamp", "1893456000000000000",
		"packet_sequence", sequence,
		"packet_src_port", "wasm.orai1bridge",
		"packet_src_channel", "channel-29",
		"packet_dst_port", "transfer",
		"packet_dst_channel", "channel-1",
		"msg_index", "0",
	)
}

var testSignature = BridgeSignature{
	SrcChannel: "channel-29",
	SrcPort:    "wasm.orai1bridge",
	DstChannel: "channel-1",
	DstPort:    "transfer",
}

type fakeSourceChain struct {
	mu       sync.Mutex
	tip      int64
	txs      map[int64][]clients.ChainTx
	fetchErr error
	fetches  [][2]int64
}

func (f *fakeSourceChain) LatestHeight(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tip, nil
}

func (f *fakeSourceChain) FetchTxs(_ context.Context, from, to int64) ([]clients.ChainTx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetches = append(f.fetches, [2]int64{from, to})
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	var txs []clients.ChainTx
	for h := from; h <= to; h++ {
		txs = append(txs, f.txs[h]...)
	}
	return txs, nil
}

type fakeLedger struct {
	mu      sync.Mutex
	counts  []int // result per call, the last value repeats
	err     error
	queries []string
}

func (f *fakeLedger) CountTxs(_ context.Context, query string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queries = append(f.queries, query)
	if f.err != nil {
		return 0, f.err
	}
	if len(f.counts) == 0 {
		return 0, nil
	}
	i := min(len(f.queries)-1, len(f.counts)-1)
	return f.counts[i], nil
}

func (f *fakeLedger) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

type fakeDestination struct {
	balance  *big.Int
	decimals uint8
}

func (f *fakeDestination) Address() common.Address { return testIdentity }

func (f *fakeDestination) ChainID(context.Context) (*big.Int, error) { return big.NewInt(56), nil }

func (f *fakeDestination) BalanceOf(context.Context, common.Address, common.Address) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeDestination) Decimals(context.Context, common.Address) (uint8, error) {
	return f.decimals, nil
}

type fakeSubmitter struct {
	mu       sync.Mutex
	requests []submitter.TransferRequest
	hash     string // returned with err
	err      error
}

func (f *fakeSubmitter) SubmitTransfer(_ context.Context, req submitter.TransferRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.hash, f.err
	}
	f.requests = append(f.requests, req)
	return "0xdeadbeef", nil
}

func (f *fakeSubmitter) submitted() []submitter.TransferRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submitter.TransferRequest(nil), f.requests...)
}

// stuckBridgeClient broadcasts transfers whose receipts never arrive.
type stuckBridgeClient struct {
	mu         sync.Mutex
	broadcasts int
}

func (f *stuckBridgeClient) Address() common.Address { return testIdentity }

func (f *stuckBridgeClient) Approve(context.Context, common.Address, common.Address, *big.Int) (common.Hash, error) {
	return common.HexToHash("0x01"), nil
}

func (f *stuckBridgeClient) TransferTokensWithPayload(context.Context, common.Address, common.Address, *big.Int,
	uint16, [32]byte, uint32, []byte,
) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts++
	return common.HexToHash("0x02"), errors.New("waiting for 0x02: context deadline exceeded")
}

func newTestStore(t *testing.T) *store.LevelStore {
	t.Helper()

	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	require.NoError(t, err)
	s := store.NewLevelStore(db)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// flakyStore fails the first failInserts inserts.
type flakyStore struct {
	*store.LevelStore
	mu          sync.Mutex
	failInserts int
	inserts     int
}

func (f *flakyStore) Insert(ctx context.Context, txHash string, msgIndex uint32, at time.Time) error {
	f.mu.Lock()
	f.inserts++
	fail := f.inserts <= f.failInserts
	f.mu.Unlock()

	if fail {
		return errors.New("database is locked")
	}
	return f.LevelStore.Insert(ctx, txHash, msgIndex, at)
}

type fixedOffset uint64

func (o fixedOffset) Offset() uint64 { return uint64(o) }
