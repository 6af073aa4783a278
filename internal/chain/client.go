package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/rpc"

	"ammScope/internal/model"
)

// Client talks to a CometBFT JSON-RPC endpoint.
type Client struct {
	rpcClient *rpc.Client
}

// NewClient dials the RPC URL (http, https, ws or wss).
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return &Client{rpcClient: rpcClient}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// GetBlock returns the raw `block` document for a height.
func (c *Client) GetBlock(ctx context.Context, height int64) (json.RawMessage, error) {
	return c.call(ctx, "block", height)
}

// GetBlockResults returns the raw `block_results` document for a height.
func (c *Client) GetBlockResults(ctx context.Context, height int64) (json.RawMessage, error) {
	return c.call(ctx, "block_results", height)
}

// LatestHeight returns the node's latest committed height.
func (c *Client) LatestHeight(ctx context.Context) (int64, error) {
	var raw json.RawMessage
	if err := c.rpcClient.CallContext(ctx, &raw, "status"); err != nil {
		return 0, err
	}
	return ParseLatestHeight(raw)
}

// FetchBlock loads header and results for a height and joins them.
func (c *Client) FetchBlock(ctx context.Context, height int64) (model.Block, error) {
	blockRaw, err := c.GetBlock(ctx, height)
	if err != nil {
		return model.Block{}, fmt.Errorf("get block %d: %w", height, err)
	}
	resultsRaw, err := c.GetBlockResults(ctx, height)
	if err != nil {
		return model.Block{}, fmt.Errorf("get block results %d: %w", height, err)
	}
	return ParseBlock(blockRaw, resultsRaw)
}

func (c *Client) call(ctx context.Context, method string, height int64) (json.RawMessage, error) {
	var raw json.RawMessage
	// CometBFT accepts int64 params as JSON strings.
	if err := c.rpcClient.CallContext(ctx, &raw, method, strconv.FormatInt(height, 10)); err != nil {
		return nil, err
	}
	return raw, nil
}
