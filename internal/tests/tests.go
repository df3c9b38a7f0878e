package tests

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jarcoal/httpmock"
)

// RpcHandler produces the result payload for one mocked JSON-RPC method.
// Returning an error yields a JSON-RPC error response with code -32000.
type RpcHandler func(params []json.RawMessage) (any, error)

// MockRpcServer dispatches httpmock'd JSON-RPC requests by method name.
type MockRpcServer struct {
	Handlers map[string]RpcHandler
	// Calls counts requests per method.
	Calls map[string]int
}

func NewMockRpcServer(handlers map[string]RpcHandler) *MockRpcServer {
	return &MockRpcServer{
		Handlers: handlers,
		Calls:    make(map[string]int),
	}
}

type rpcRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
	ID     uint              `json:"id"`
}

func (m *MockRpcServer) Responder() httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		rpcReq := &rpcRequest{}
		if err := json.NewDecoder(req.Body).Decode(rpcReq); err != nil {
			return httpmock.NewStringResponse(400, "bad request"), nil
		}
		m.Calls[rpcReq.Method]++

		handler, ok := m.Handlers[rpcReq.Method]
		if !ok {
			return httpmock.NewJsonResponse(200, map[string]any{
				"jsonrpc": "2.0",
				"id":      rpcReq.ID,
				"error":   map[string]any{"code": -32601, "message": fmt.Sprintf("method %s not found", rpcReq.Method)},
			})
		}

		result, err := handler(rpcReq.Params)
		if err != nil {
			return httpmock.NewJsonResponse(200, map[string]any{
				"jsonrpc": "2.0",
				"id":      rpcReq.ID,
				"error":   map[string]any{"code": -32000, "message": err.Error()},
			})
		}
		return httpmock.NewJsonResponse(200, map[string]any{
			"jsonrpc": "2.0",
			"id":      rpcReq.ID,
			"result":  result,
		})
	}
}

// HttpClient returns a client routed through httpmock's transport.
func (m *MockRpcServer) HttpClient() *http.Client {
	return &http.Client{
		Transport: httpmock.DefaultTransport,
	}
}

// Block returns a minimal eth_getBlockBy* response body.
func Block(number uint64, hash string, txHashes []string) map[string]any {
	txs := make([]any, 0, len(txHashes))
	for _, h := range txHashes {
		txs = append(txs, h)
	}
	return map[string]any{
		"number":       fmt.Sprintf("0x%x", number),
		"hash":         hash,
		"parentHash":   "0x" + fmt.Sprintf("%064x", number-1),
		"timestamp":    "0x66f00000",
		"gasUsed":      "0x5208",
		"gasLimit":     "0x1c9c380",
		"miner":        "0x1111111111111111111111111111111111111111",
		"transactions": txs,
	}
}

// TxHash returns a deterministic well-formed transaction hash.
func TxHash(i int) string {
	return fmt.Sprintf("0x%064x", i+1)
}

// BlockHash returns a deterministic well-formed block hash.
func BlockHash(number uint64) string {
	return fmt.Sprintf("0x%064x", number)
}
