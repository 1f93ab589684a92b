package clients

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const erc20ABIJSON = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

const tokenBridgeABIJSON = `[{
	"inputs": [
		{"internalType": "address", "name": "token", "type": "address"},
		{"internalType": "uint256", "name": "amount", "type": "uint256"},
		{"internalType": "uint16", "name": "recipientChain", "type": "uint16"},
		{"internalType": "bytes32", "name": "recipient", "type": "bytes32"},
		{"internalType": "uint32", "name": "nonce", "type": "uint32"},
		{"internalType": "bytes", "name": "payload", "type": "bytes"}
	],
	"name": "transferTokensWithPayload",
	"outputs": [{"internalType": "uint64", "name": "sequence", "type": "uint64"}],
	"stateMutability": "payable",
	"type": "function"
}]`

var (
	erc20ABI       = mustParseABI(erc20ABIJSON)
	tokenBridgeABI = mustParseABI(tokenBridgeABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("ABI parse error: %v", err))
	}
	return parsed
}

var (
	// ErrTxReverted means the transaction was mined and failed, so it had no effect.
	ErrTxReverted = errors.New("transaction reverted")
	// ErrTxUnconfirmed means the transaction was broadcast but no receipt was seen. It may
	// still be mined.
	ErrTxUnconfirmed = errors.New("transaction sent but not confirmed")
)

const (
	receiptPollInterval = 3 * time.Second
	receiptTimeout      = 10 * time.Minute
	gasLimitMultiplier  = 12 // tenths, i.e. 1.2x the estimate
)

// EVMClient signs and submits token and token bridge calls on an EVM chain.
type EVMClient struct {
	client        *ethclient.Client
	privateKey    *ecdsa.PrivateKey
	address       common.Address
	chainID       *big.Int
	decimalsCache *lru.Cache[common.Address, uint8]
	logger        *zap.Logger
}

// NewEVMClient creates a new client for EVM-compatible blockchains
func NewEVMClient(logger *zap.Logger, rpcURL, privateKeyHex string) (*EVMClient, error) {
	client := &EVMClient{
		logger: logger.With(zap.String("component", "EVMClient")),
	}

	client.logger.Info("Connecting to EVM chain", zap.String("rpcURL", rpcURL))
	ethClient, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to EVM node: %w", err)
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	publicKeyECDSA, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("error casting public key to ECDSA")
	}

	cache, err := lru.New[common.Address, uint8](256)
	if err != nil {
		return nil, err
	}

	client.client = ethClient
	client.privateKey = privateKey
	client.address = crypto.PubkeyToAddress(*publicKeyECDSA)
	client.decimalsCache = cache

	return client, nil
}

// Address returns the public address for this client
func (c *EVMClient) Address() common.Address {
	return c.address
}

func (c *EVMClient) Close() {
	c.client.Close()
}

// ChainID queries the chain id once and caches it.
func (c *EVMClient) ChainID(ctx context.Context) (*big.Int, error) {
	if c.chainID != nil {
		return c.chainID, nil
	}
	chainID, err := c.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}
	c.chainID = chainID
	return chainID, nil
}

func (c *EVMClient) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	out, err := c.call(ctx, token, erc20ABI, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf output %T", out[0])
	}
	return balance, nil
}

func (c *EVMClient) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	if decimals, ok := c.decimalsCache.Get(token); ok {
		return decimals, nil
	}

	out, err := c.call(ctx, token, erc20ABI, "decimals")
	if err != nil {
		return 0, err
	}
	decimals, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals output %T", out[0])
	}
	c.decimalsCache.Add(token, decimals)
	return decimals, nil
}

// Approve sends approve(spender, amount) on token and waits for the receipt.
func (c *EVMClient) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("ABI pack error: %w", err)
	}
	return c.transact(ctx, token, data)
}

// TransferTokensWithPayload locks amount of token in the wormhole token bridge for recipient on recipientChain.
func (c *EVMClient) TransferTokensWithPayload(ctx context.Context, bridge, token common.Address, amount *big.Int,
	recipientChain uint16, recipient [32]byte, nonce uint32, payload []byte,
) (common.Hash, error) {
	data, err := tokenBridgeABI.Pack("transferTokensWithPayload", token, amount, recipientChain, recipient, nonce, payload)
	if err != nil {
		return common.Hash{}, fmt.Errorf("ABI pack error: %w", err)
	}
	return c.transact(ctx, bridge, data)
}

func (c *EVMClient) call(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("ABI pack error: %w", err)
	}

	result, err := c.client.CallContract(ctx, ethereum.CallMsg{From: c.address, To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s call on %s failed: %w", method, to.Hex(), err)
	}

	out, err := contractABI.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("ABI unpack error: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return out, nil
}

// transact signs an EIP-1559 transaction calling to with data, sends it and waits until it is mined.
// Once the transaction is broadcast its hash is always returned. The receipt wait outlives ctx
// cancellation and ends with ErrTxUnconfirmed after receiptTimeout.
func (c *EVMClient) transact(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	nonce, err := c.client.PendingNonceAt(ctx, c.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	chainID, err := c.ChainID(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	header, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get latest block header: %w", err)
	}

	maxPriorityFeePerGas, err := c.client.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to suggest gas tip: %w", err)
	}
	// 2x base fee as max fee to absorb fluctuations
	maxFeePerGas := new(big.Int).Mul(header.BaseFee, big.NewInt(2))
	maxFeePerGas.Add(maxFeePerGas, maxPriorityFeePerGas)

	gas, err := c.client.EstimateGas(ctx, ethereum.CallMsg{From: c.address, To: &to, Data: data})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to estimate gas: %w", err)
	}
	gas = gas * gasLimitMultiplier / 10

	c.logger.Debug("Gas fees calculated",
		zap.String("baseFee", header.BaseFee.String()),
		zap.String("maxFeePerGas", maxFeePerGas.String()),
		zap.String("maxPriorityFeePerGas", maxPriorityFeePerGas.String()),
		zap.Uint64("gas", gas))

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: maxPriorityFeePerGas,
		GasFeeCap: maxFeePerGas,
		Gas:       gas,
		To:        &to,
		Value:     big.NewInt(0),
		Data:      data,
	})

	signedTx, err := types.SignTx(tx, types.NewLondonSigner(chainID), c.privateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	c.logger.Debug("Transaction sent", zap.String("txHash", signedTx.Hash().Hex()), zap.String("to", to.Hex()))

	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), receiptTimeout)
	defer cancel()
	return signedTx.Hash(), c.waitMined(waitCtx, signedTx.Hash())
}

func (c *EVMClient) waitMined(ctx context.Context, hash common.Hash) error {
	for {
		receipt, err := c.client.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("%s: %w", hash.Hex(), ErrTxReverted)
			}
			return nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			c.logger.Warn("Failed to fetch receipt", zap.String("txHash", hash.Hex()), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: waiting for %s: %w", ErrTxUnconfirmed, hash.Hex(), ctx.Err())
		case <-time.After(receiptPollInterval):
		}
	}
}
