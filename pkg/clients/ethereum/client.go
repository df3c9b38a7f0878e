package ethereum

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var jsonRPCVersion = "2.0"

type RPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      uint   `json:"id"`
}

type RPCError struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint           `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type EthereumClientConfig struct {
	BaseUrl string
	// BlockInfoTimeout bounds eth_getBlockBy*/eth_blockNumber calls,
	// DebugTraceTimeout bounds debug_traceBlock* calls. Zero values fall
	// back to the per-method handler defaults.
	BlockInfoTimeout  time.Duration
	DebugTraceTimeout time.Duration
	// RetryBackoffs is the per-attempt backoff schedule. len(RetryBackoffs)
	// is the number of attempts.
	RetryBackoffs []time.Duration
}

func DefaultEthereumClientConfig() *EthereumClientConfig {
	return &EthereumClientConfig{
		RetryBackoffs: []time.Duration{time.Second, 3 * time.Second, 5 * time.Second},
	}
}

type Client struct {
	Logger       *zap.Logger
	httpClient   *http.Client
	clientConfig *EthereumClientConfig
}

func NewClient(cfg *EthereumClientConfig, l *zap.Logger) *Client {
	if len(cfg.RetryBackoffs) == 0 {
		cfg.RetryBackoffs = DefaultEthereumClientConfig().RetryBackoffs
	}
	client := &http.Client{
		Timeout: time.Minute * 2,
	}

	l.Sugar().Debugw("Creating new Ethereum client", zap.String("baseUrl", cfg.BaseUrl))

	return &Client{
		httpClient:   client,
		Logger:       l,
		clientConfig: cfg,
	}
}

// SetHttpClient swaps the underlying transport, used by tests with httpmock.
func (c *Client) SetHttpClient(client *http.Client) {
	c.httpClient = client
}

func (c *Client) blockInfoTimeout(fallback time.Duration) time.Duration {
	if c.clientConfig.BlockInfoTimeout > 0 {
		return c.clientConfig.BlockInfoTimeout
	}
	return fallback
}

func (c *Client) debugTraceTimeout(fallback time.Duration) time.Duration {
	if c.clientConfig.DebugTraceTimeout > 0 {
		return c.clientConfig.DebugTraceTimeout
	}
	return fallback
}

func (c *Client) GetBlockNumber(ctx context.Context) (uint64, error) {
	res, err := c.Call(ctx, GetBlockNumberRequest(1), c.blockInfoTimeout(RPCMethod_blockNumber.RequestMethod.Timeout))
	if err != nil {
		return 0, err
	}
	blockNumber, err := RPCMethod_blockNumber.ResponseParser(res.Result)
	if err != nil {
		return 0, err
	}
	return hexutil.DecodeUint64(blockNumber)
}

func (c *Client) GetChainId(ctx context.Context) (uint64, error) {
	res, err := c.Call(ctx, GetChainIdRequest(1), c.blockInfoTimeout(RPCMethod_chainId.RequestMethod.Timeout))
	if err != nil {
		return 0, err
	}
	chainId, err := RPCMethod_chainId.ResponseParser(res.Result)
	if err != nil {
		return 0, err
	}
	return hexutil.DecodeUint64(chainId)
}

// GetBlockByNumber fetches a block by its wire-form identifier (hex number
// or tag). A nil block with a nil error means the node returned null, i.e.
// the block does not exist.
func (c *Client) GetBlockByNumber(ctx context.Context, numberOrTag string, includeTxs bool) (*EthereumBlock, error) {
	res, err := c.Call(ctx, GetBlockByNumberRequest(numberOrTag, includeTxs, 1), c.blockInfoTimeout(RPCMethod_getBlockByNumber.RequestMethod.Timeout))
	if err != nil {
		return nil, err
	}
	block, err := RPCMethod_getBlockByNumber.ResponseParser(res.Result)
	if err != nil {
		c.Logger.Sugar().Errorw("failed to parse block",
			zap.Error(err),
			zap.String("numberOrTag", numberOrTag),
		)
		return nil, err
	}
	return block, nil
}

func (c *Client) GetBlockByHash(ctx context.Context, hash string, includeTxs bool) (*EthereumBlock, error) {
	res, err := c.Call(ctx, GetBlockByHashRequest(hash, includeTxs, 1), c.blockInfoTimeout(RPCMethod_getBlockByHash.RequestMethod.Timeout))
	if err != nil {
		return nil, err
	}
	block, err := RPCMethod_getBlockByHash.ResponseParser(res.Result)
	if err != nil {
		c.Logger.Sugar().Errorw("failed to parse block",
			zap.Error(err),
			zap.String("hash", hash),
		)
		return nil, err
	}
	return block, nil
}

func (c *Client) DebugTraceBlockByNumber(ctx context.Context, numberOrTag string, cfg *TraceConfig) ([]*TraceBlockItem, error) {
	res, err := c.Call(ctx, DebugTraceBlockByNumberRequest(numberOrTag, cfg, 1), c.debugTraceTimeout(RPCMethod_debugTraceBlockByNumber.RequestMethod.Timeout))
	if err != nil {
		return nil, err
	}
	items, err := RPCMethod_debugTraceBlockByNumber.ResponseParser(res.Result)
	if err != nil {
		c.Logger.Sugar().Errorw("failed to parse block trace",
			zap.Error(err),
			zap.String("numberOrTag", numberOrTag),
		)
		return nil, err
	}
	return items, nil
}

func (c *Client) DebugTraceBlockByHash(ctx context.Context, hash string, cfg *TraceConfig) ([]*TraceBlockItem, error) {
	res, err := c.Call(ctx, DebugTraceBlockByHashRequest(hash, cfg, 1), c.debugTraceTimeout(RPCMethod_debugTraceBlockByHash.RequestMethod.Timeout))
	if err != nil {
		return nil, err
	}
	items, err := RPCMethod_debugTraceBlockByHash.ResponseParser(res.Result)
	if err != nil {
		c.Logger.Sugar().Errorw("failed to parse block trace",
			zap.Error(err),
			zap.String("hash", hash),
		)
		return nil, err
	}
	return items, nil
}

// call issues one JSON-RPC request. The context deadline cancels the
// in-flight HTTP request, so a timed-out call does not leave a request
// running behind the caller's back.
func (c *Client) call(ctx context.Context, rpcRequest *RPCRequest, timeout time.Duration) (*RPCResponse, error) {
	requestBody, err := json.Marshal(rpcRequest)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.clientConfig.BaseUrl, bytes.NewReader(requestBody))
	if err != nil {
		return nil, errors.Wrap(err, "failed to make request")
	}

	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read body")
	}
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received http error code %d", response.StatusCode)
	}

	destination := &RPCResponse{}
	if err := json.Unmarshal(responseBody, destination); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal response")
	}

	if destination.Error != nil {
		return nil, fmt.Errorf("received error response: code %d, %s", destination.Error.Code, destination.Error.Message)
	}

	return destination, nil
}

// Call issues a JSON-RPC request with retries on the configured backoff
// schedule. Retries stop as soon as the caller's context is done.
func (c *Client) Call(ctx context.Context, rpcRequest *RPCRequest, timeout time.Duration) (*RPCResponse, error) {
	var lastErr error
	for i, backoff := range c.clientConfig.RetryBackoffs {
		res, err := c.call(ctx, rpcRequest, timeout)
		if err == nil {
			if i > 0 {
				c.Logger.Sugar().Infow("Successfully called after backoff",
					zap.Int("attempt", i+1),
					zap.String("method", rpcRequest.Method),
				)
			}
			return res, nil
		}
		lastErr = err
		c.Logger.Sugar().Errorw("Failed to call",
			zap.Error(err),
			zap.String("method", rpcRequest.Method),
			zap.Duration("backoff", backoff),
		)
		if ctx.Err() != nil {
			return nil, lastErr
		}
		if i < len(c.clientConfig.RetryBackoffs)-1 {
			select {
			case <-ctx.Done():
				return nil, lastErr
			case <-time.After(backoff):
			}
		}
	}
	return nil, fmt.Errorf("exceeded retries for %s: %w", rpcRequest.Method, lastErr)
}
