package clients

import (
	"context"
	"fmt"
	"strings"
	"time"

	txtypes "github.com/cosmos/cosmos-sdk/types/tx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// QueryTag is a single event attribute condition, e.g. recv_packet.packet_sequence='42'.
type QueryTag struct {
	Key   string
	Value string
}

// BuildEventQuery joins tags into a CometBFT event query.
func BuildEventQuery(tags []QueryTag) string {
	parts := make([]string, 0, len(tags))
	for _, tag := range tags {
		parts = append(parts, fmt.Sprintf("%s='%s'", tag.Key, strings.ReplaceAll(tag.Value, "'", "")))
	}
	return strings.Join(parts, " AND ")
}

// OBridgeClient searches transactions on the OBridge ledger through the cosmos tx gRPC service.
type OBridgeClient struct {
	conn   *grpc.ClientConn
	client txtypes.ServiceClient
	logger *zap.Logger
}

// NewOBridgeClient connects to the OBridge gRPC endpoint.
func NewOBridgeClient(logger *zap.Logger, endpoint string) (*OBridgeClient, error) {
	client := &OBridgeClient{
		logger: logger.With(zap.String("component", "OBridgeClient")),
	}

	client.logger.Info("Connecting to OBridge gRPC", zap.String("endpoint", endpoint))
	conn, err := grpc.Dial(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to OBridge: %w", err)
	}

	client.conn = conn
	client.client = txtypes.NewServiceClient(conn)
	return client, nil
}

func (c *OBridgeClient) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// CountTxs returns how many transactions match the event query.
func (c *OBridgeClient) CountTxs(ctx context.Context, query string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	c.logger.Debug("Searching txs", zap.String("query", query))
	resp, err := c.client.GetTxsEvent(ctx, &txtypes.GetTxsEventRequest{
		Query: query,
		Page:  1,
		Limit: 1,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to search txs: %w", err)
	}

	if resp.Total > 0 {
		return int(resp.Total), nil
	}
	return len(resp.TxResponses), nil
}
