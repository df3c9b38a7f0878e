package ethereum

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/pyusd-analytics/blocktracer/internal/logger"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

const mockRpcUrl = "http://localhost:8545"

func setup(backoffs []time.Duration) (*Client, *zap.Logger) {
	l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: true})

	cfg := DefaultEthereumClientConfig()
	cfg.BaseUrl = mockRpcUrl
	if backoffs != nil {
		cfg.RetryBackoffs = backoffs
	}
	client := NewClient(cfg, l)
	client.SetHttpClient(&http.Client{Transport: httpmock.DefaultTransport})
	return client, l
}

func rpcResult(result string) string {
	return `{"jsonrpc":"2.0","id":1,"result":` + result + `}`
}

func Test_EthereumClient(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	t.Run("GetBlockNumber decodes the hex quantity", func(t *testing.T) {
		httpmock.Reset()
		client, _ := setup([]time.Duration{0})
		httpmock.RegisterResponder("POST", mockRpcUrl,
			httpmock.NewStringResponder(200, rpcResult(`"0x121eac0"`)))

		n, err := client.GetBlockNumber(context.Background())
		assert.Nil(t, err)
		assert.Equal(t, uint64(19000000), n)
	})

	t.Run("GetBlockByNumber returns nil for a null result", func(t *testing.T) {
		httpmock.Reset()
		client, _ := setup([]time.Duration{0})
		httpmock.RegisterResponder("POST", mockRpcUrl,
			httpmock.NewStringResponder(200, rpcResult(`null`)))

		block, err := client.GetBlockByNumber(context.Background(), "0x1", false)
		assert.Nil(t, err)
		assert.Nil(t, block)
	})

	t.Run("GetBlockByNumber parses string and object transactions", func(t *testing.T) {
		httpmock.Reset()
		client, _ := setup([]time.Duration{0})
		body := `{
			"number": "0x64",
			"hash": "0xABCDEF",
			"parentHash": "0x63",
			"timestamp": "0x66f00000",
			"gasUsed": "0x5208",
			"gasLimit": "0x1c9c380",
			"transactions": [
				"0x1111",
				{"hash": "0x2222", "from": "0x3333", "to": "0x4444"}
			]
		}`
		httpmock.RegisterResponder("POST", mockRpcUrl,
			httpmock.NewStringResponder(200, rpcResult(body)))

		block, err := client.GetBlockByNumber(context.Background(), "0x64", true)
		assert.Nil(t, err)
		assert.Equal(t, uint64(100), block.Number.Value())
		assert.Equal(t, "0xabcdef", block.Hash.Value())
		assert.Len(t, block.Transactions, 2)
		assert.Equal(t, "0x1111", block.Transactions[0].Hash.Value())
		assert.Equal(t, "0x2222", block.Transactions[1].Hash.Value())
		assert.Equal(t, "0x3333", block.Transactions[1].From.Value())
	})

	t.Run("JSON-RPC error responses become errors", func(t *testing.T) {
		httpmock.Reset()
		client, _ := setup([]time.Duration{0})
		httpmock.RegisterResponder("POST", mockRpcUrl,
			httpmock.NewStringResponder(200, `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"header not found"}}`))

		_, err := client.GetBlockByNumber(context.Background(), "0x1", false)
		assert.NotNil(t, err)
		assert.Contains(t, err.Error(), "header not found")
	})

	t.Run("Non-200 responses become errors", func(t *testing.T) {
		httpmock.Reset()
		client, _ := setup([]time.Duration{0})
		httpmock.RegisterResponder("POST", mockRpcUrl,
			httpmock.NewStringResponder(502, "bad gateway"))

		_, err := client.GetBlockNumber(context.Background())
		assert.NotNil(t, err)
	})

	t.Run("Call retries on the backoff schedule until success", func(t *testing.T) {
		httpmock.Reset()
		client, _ := setup([]time.Duration{0, 0, 0})

		attempts := 0
		httpmock.RegisterResponder("POST", mockRpcUrl,
			func(req *http.Request) (*http.Response, error) {
				attempts++
				if attempts < 3 {
					return httpmock.NewStringResponse(500, "boom"), nil
				}
				return httpmock.NewStringResponse(200, rpcResult(`"0x1"`)), nil
			})

		n, err := client.GetBlockNumber(context.Background())
		assert.Nil(t, err)
		assert.Equal(t, uint64(1), n)
		assert.Equal(t, 3, attempts)
	})

	t.Run("Call gives up after exhausting retries", func(t *testing.T) {
		httpmock.Reset()
		client, _ := setup([]time.Duration{0, 0})
		httpmock.RegisterResponder("POST", mockRpcUrl,
			httpmock.NewStringResponder(500, "boom"))

		_, err := client.GetBlockNumber(context.Background())
		assert.NotNil(t, err)
		assert.Equal(t, 2, httpmock.GetTotalCallCount())
	})

	t.Run("A cancelled context stops retrying", func(t *testing.T) {
		httpmock.Reset()
		client, _ := setup([]time.Duration{time.Hour, time.Hour})
		httpmock.RegisterResponder("POST", mockRpcUrl,
			httpmock.NewStringResponder(500, "boom"))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		start := time.Now()
		_, err := client.GetBlockNumber(ctx)
		assert.NotNil(t, err)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("DebugTraceBlockByNumber sends the tracer config", func(t *testing.T) {
		httpmock.Reset()
		client, _ := setup([]time.Duration{0})

		var captured *RPCRequest
		httpmock.RegisterResponder("POST", mockRpcUrl,
			func(req *http.Request) (*http.Response, error) {
				captured = &RPCRequest{}
				if err := json.NewDecoder(req.Body).Decode(captured); err != nil {
					return httpmock.NewStringResponse(400, "bad request"), nil
				}
				return httpmock.NewStringResponse(200, rpcResult(`[{"txHash":"0x1234","result":{"type":"CALL","gasUsed":"0x5208"}}]`)), nil
			})

		items, err := client.DebugTraceBlockByNumber(context.Background(), "0x64", &TraceConfig{
			Tracer:       "callTracer",
			TracerConfig: &TracerCallOptions{OnlyTopCall: false, WithLog: true},
		})
		assert.Nil(t, err)
		assert.Len(t, items, 1)
		assert.Equal(t, "0x1234", items[0].TxHash.Value())
		assert.Equal(t, "debug_traceBlockByNumber", captured.Method)

		params, ok := captured.Params.([]any)
		assert.True(t, ok)
		assert.Equal(t, "0x64", params[0])
		cfgParam, ok := params[1].(map[string]any)
		assert.True(t, ok)
		assert.Equal(t, "callTracer", cfgParam["tracer"])
	})
}
