package clients

import (
	"context"
	"fmt"

	abci "github.com/cometbft/cometbft/abci/types"
	rpchttp "github.com/cometbft/cometbft/rpc/client/http"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ChainTx is a committed transaction together with the events it emitted.
type ChainTx struct {
	Hash   string
	Height int64
	Tx     []byte
	Events []abci.Event
}

// CosmosClient reads blocks from a CometBFT RPC endpoint.
type CosmosClient struct {
	client         *rpchttp.HTTP
	maxThreadLevel int
	logger         *zap.Logger
}

// NewCosmosClient creates a client that fetches at most maxThreadLevel blocks concurrently.
func NewCosmosClient(logger *zap.Logger, rpcURL string, maxThreadLevel int) (*CosmosClient, error) {
	client := &CosmosClient{
		logger:         logger.With(zap.String("component", "CosmosClient")),
		maxThreadLevel: maxThreadLevel,
	}
	if client.maxThreadLevel < 1 {
		client.maxThreadLevel = 1
	}

	client.logger.Info("Connecting to CometBFT RPC", zap.String("rpcURL", rpcURL))
	rpcClient, err := rpchttp.New(rpcURL, "/websocket")
	if err != nil {
		return nil, fmt.Errorf("failed to create CometBFT client: %w", err)
	}
	client.client = rpcClient

	return client, nil
}

func (c *CosmosClient) LatestHeight(ctx context.Context) (int64, error) {
	status, err := c.client.Status(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to query status: %w", err)
	}
	return status.SyncInfo.LatestBlockHeight, nil
}

// FetchTxs returns every successful transaction in heights [from, to], ordered by height.
func (c *CosmosClient) FetchTxs(ctx context.Context, from, to int64) ([]ChainTx, error) {
	if to < from {
		return nil, nil
	}

	perHeight := make([][]ChainTx, to-from+1)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(c.maxThreadLevel)
	for height := from; height <= to; height++ {
		eg.Go(func() error {
			txs, err := c.fetchHeight(egCtx, height)
			if err != nil {
				return err
			}
			perHeight[height-from] = txs
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var txs []ChainTx
	for _, batch := range perHeight {
		txs = append(txs, batch...)
	}
	return txs, nil
}

func (c *CosmosClient) fetchHeight(ctx context.Context, height int64) ([]ChainTx, error) {
	block, err := c.client.Block(ctx, &height)
	if err != nil {
		return nil, fmt.Errorf("failed to query block %d: %w", height, err)
	}
	if len(block.Block.Data.Txs) == 0 {
		return nil, nil
	}

	results, err := c.client.BlockResults(ctx, &height)
	if err != nil {
		return nil, fmt.Errorf("failed to query block results %d: %w", height, err)
	}
	if len(results.TxsResults) != len(block.Block.Data.Txs) {
		return nil, fmt.Errorf("block %d has %d txs but %d results", height, len(block.Block.Data.Txs), len(results.TxsResults))
	}

	var txs []ChainTx
	for i, tx := range block.Block.Data.Txs {
		result := results.TxsResults[i]
		if result.Code != abci.CodeTypeOK {
			continue
		}
		txs = append(txs, ChainTx{
			Hash:   fmt.Sprintf("%X", tx.Hash()),
			Height: height,
			Tx:     tx,
			Events: result.Events,
		})
	}

	c.logger.Debug("Fetched block", zap.Int64("height", height), zap.Int("txs", len(txs)))
	return txs, nil
}

// CountTxs returns the number of transactions matching a CometBFT event query.
func (c *CosmosClient) CountTxs(ctx context.Context, query string) (int, error) {
	page, perPage := 1, 1
	res, err := c.client.TxSearch(ctx, query, false, &page, &perPage, "")
	if err != nil {
		return 0, fmt.Errorf("failed to search txs: %w", err)
	}
	return res.TotalCount, nil
}
