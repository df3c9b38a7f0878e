package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/pyusd-analytics/blocktracer/internal/config"
	"github.com/pyusd-analytics/blocktracer/internal/logger"
	"github.com/pyusd-analytics/blocktracer/internal/tests"
	"github.com/pyusd-analytics/blocktracer/pkg/blockinfo"
	"github.com/pyusd-analytics/blocktracer/pkg/clients/ethereum"
	"github.com/pyusd-analytics/blocktracer/pkg/tracetypes"
	"github.com/stretchr/testify/assert"
)

const mockRpcUrl = "http://localhost:8545"

func setup(handlers map[string]tests.RpcHandler) (*TraceFetcher, *tests.MockRpcServer) {
	l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: true})
	cfg := config.NewConfig()

	server := tests.NewMockRpcServer(handlers)
	httpmock.RegisterResponder("POST", mockRpcUrl, server.Responder())

	clientCfg := ethereum.DefaultEthereumClientConfig()
	clientCfg.BaseUrl = mockRpcUrl
	clientCfg.RetryBackoffs = []time.Duration{0}
	client := ethereum.NewClient(clientCfg, l)
	client.SetHttpClient(server.HttpClient())

	resolver := blockinfo.NewResolver(client, cfg, l)
	return NewTraceFetcher(client, resolver, cfg, l), server
}

func traceItem(txHash string, gasUsed string) map[string]any {
	return map[string]any{
		"txHash": txHash,
		"result": map[string]any{
			"type":    "CALL",
			"from":    "0x1111111111111111111111111111111111111111",
			"to":      "0x2222222222222222222222222222222222222222",
			"gas":     "0x7530",
			"gasUsed": gasUsed,
			"input":   "0x",
		},
	}
}

func Test_TraceFetcher(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	t.Run("Traces a block by number end to end", func(t *testing.T) {
		httpmock.Reset()
		fetcher, server := setup(map[string]tests.RpcHandler{
			"eth_getBlockByNumber": func(params []json.RawMessage) (any, error) {
				return tests.Block(19000000, tests.BlockHash(19000000), []string{tests.TxHash(0), tests.TxHash(1)}), nil
			},
			"debug_traceBlockByNumber": func(params []json.RawMessage) (any, error) {
				var numberOrTag string
				if err := json.Unmarshal(params[0], &numberOrTag); err != nil {
					return nil, err
				}
				if numberOrTag != "0x121eac0" {
					return nil, fmt.Errorf("unexpected block %s", numberOrTag)
				}
				return []any{
					traceItem(tests.TxHash(0), "0x5208"),
					traceItem(tests.TxHash(1), "0x5208"),
				}, nil
			},
		})

		fetched, err := fetcher.TraceBlockByNumber(context.Background(), "19000000")
		assert.Nil(t, err)
		assert.Equal(t, uint64(19000000), fetched.Block.Number)
		assert.Len(t, fetched.Items, 2)
		assert.Equal(t, tests.TxHash(0), fetched.Items[0].TxHash)
		assert.False(t, fetched.Items[0].SyntheticHash)
		assert.Equal(t, "0x5208", fetched.Items[0].Result.GasUsed)
		assert.Equal(t, 1, server.Calls["debug_traceBlockByNumber"])
	})

	t.Run("Traces a block by hash", func(t *testing.T) {
		httpmock.Reset()
		hash := tests.BlockHash(19000000)
		fetcher, _ := setup(map[string]tests.RpcHandler{
			"eth_getBlockByHash": func(params []json.RawMessage) (any, error) {
				return tests.Block(19000000, hash, []string{tests.TxHash(0)}), nil
			},
			"debug_traceBlockByHash": func(params []json.RawMessage) (any, error) {
				return []any{traceItem(tests.TxHash(0), "0x5208")}, nil
			},
		})

		fetched, err := fetcher.TraceBlockByHash(context.Background(), hash)
		assert.Nil(t, err)
		assert.Len(t, fetched.Items, 1)
	})

	t.Run("Falls back to block transactions, then synthetic hashes", func(t *testing.T) {
		httpmock.Reset()
		fetcher, _ := setup(map[string]tests.RpcHandler{
			"eth_getBlockByNumber": func(params []json.RawMessage) (any, error) {
				// Only one known transaction, but the node returns three items.
				return tests.Block(100, tests.BlockHash(100), []string{tests.TxHash(0)}), nil
			},
			"debug_traceBlockByNumber": func(params []json.RawMessage) (any, error) {
				return []any{
					map[string]any{"result": map[string]any{"from": "0x1111111111111111111111111111111111111111"}},
					map[string]any{"result": map[string]any{"from": "0x1111111111111111111111111111111111111111"}},
					nil,
				}, nil
			},
		})

		fetched, err := fetcher.TraceBlockByNumber(context.Background(), 100)
		assert.Nil(t, err)
		assert.Len(t, fetched.Items, 3)

		// Item 0 aligns with the block's transaction list.
		assert.Equal(t, tests.TxHash(0), fetched.Items[0].TxHash)
		assert.False(t, fetched.Items[0].SyntheticHash)

		// Items 1 and 2 have nothing to align with.
		assert.Equal(t, "tx_1", fetched.Items[1].TxHash)
		assert.True(t, fetched.Items[1].SyntheticHash)
		assert.Equal(t, "tx_2", fetched.Items[2].TxHash)
		assert.True(t, fetched.Items[2].SyntheticHash)
	})

	t.Run("Converts nested call frames recursively", func(t *testing.T) {
		httpmock.Reset()
		fetcher, _ := setup(map[string]tests.RpcHandler{
			"eth_getBlockByNumber": func(params []json.RawMessage) (any, error) {
				return tests.Block(100, tests.BlockHash(100), []string{tests.TxHash(0)}), nil
			},
			"debug_traceBlockByNumber": func(params []json.RawMessage) (any, error) {
				item := traceItem(tests.TxHash(0), "0x5208")
				result := item["result"].(map[string]any)
				result["calls"] = []any{
					map[string]any{
						"type":  "DELEGATECALL",
						"from":  "0x2222222222222222222222222222222222222222",
						"to":    "0x3333333333333333333333333333333333333333",
						"calls": []any{map[string]any{"type": "STATICCALL"}},
					},
				}
				return []any{item}, nil
			},
		})

		fetched, err := fetcher.TraceBlockByNumber(context.Background(), 100)
		assert.Nil(t, err)
		root := fetched.Items[0].Result
		assert.Len(t, root.Calls, 1)
		assert.Equal(t, "delegatecall", root.Calls[0].Type)
		assert.Len(t, root.Calls[0].Calls, 1)
	})

	t.Run("A null trace result is a parsing error", func(t *testing.T) {
		httpmock.Reset()
		fetcher, _ := setup(map[string]tests.RpcHandler{
			"eth_getBlockByNumber": func(params []json.RawMessage) (any, error) {
				return tests.Block(100, tests.BlockHash(100), nil), nil
			},
			"debug_traceBlockByNumber": func(params []json.RawMessage) (any, error) {
				return nil, nil
			},
		})

		_, err := fetcher.TraceBlockByNumber(context.Background(), 100)
		assert.NotNil(t, err)
		svcErr, ok := err.(*tracetypes.ServiceError)
		assert.True(t, ok)
		assert.Equal(t, tracetypes.ErrorCode_ParsingError, svcErr.Code)
	})

	t.Run("Node errors are tagged rpc_error", func(t *testing.T) {
		httpmock.Reset()
		fetcher, _ := setup(map[string]tests.RpcHandler{
			"eth_getBlockByNumber": func(params []json.RawMessage) (any, error) {
				return tests.Block(100, tests.BlockHash(100), nil), nil
			},
			"debug_traceBlockByNumber": func(params []json.RawMessage) (any, error) {
				return nil, fmt.Errorf("historical state unavailable")
			},
		})

		_, err := fetcher.TraceBlockByNumber(context.Background(), 100)
		assert.NotNil(t, err)
		svcErr, ok := err.(*tracetypes.ServiceError)
		assert.True(t, ok)
		assert.Equal(t, tracetypes.ErrorCode_RpcError, svcErr.Code)
	})
}

func Test_EstimateProcessingTime(t *testing.T) {
	cases := []struct {
		txCount  int
		seconds  int
		category tracetypes.EstimateCategory
		warning  bool
	}{
		{0, 30, tracetypes.EstimateCategory_Fast, false},
		{50, 30, tracetypes.EstimateCategory_Fast, false},
		{51, 120, tracetypes.EstimateCategory_Medium, false},
		{200, 120, tracetypes.EstimateCategory_Medium, false},
		{201, 300, tracetypes.EstimateCategory_Slow, true},
		{500, 300, tracetypes.EstimateCategory_Slow, true},
		{501, 600, tracetypes.EstimateCategory_VerySlow, true},
	}

	for _, tc := range cases {
		estimate := EstimateProcessingTime(tc.txCount)
		assert.Equal(t, tc.seconds, estimate.EstimatedSeconds, tc.txCount)
		assert.Equal(t, tc.category, estimate.Category, tc.txCount)
		if tc.warning {
			assert.NotEmpty(t, estimate.Warning, tc.txCount)
		} else {
			assert.Empty(t, estimate.Warning, tc.txCount)
		}
	}
}
