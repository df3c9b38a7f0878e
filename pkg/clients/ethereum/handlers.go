package ethereum

import (
	"encoding/json"
	"strings"
	"time"
)

type RequestMethod struct {
	Name    string
	Timeout time.Duration
}

type ResponseParserFunc[T any] func(res json.RawMessage) (T, error)

type RequestResponseHandler[T any] struct {
	RequestMethod  *RequestMethod
	ResponseParser ResponseParserFunc[T]
}

func parseQuantityResponse(res json.RawMessage) (string, error) {
	return strings.ReplaceAll(string(res), `"`, ""), nil
}

func parseBlockResponse(res json.RawMessage) (*EthereumBlock, error) {
	if isNullResult(res) {
		return nil, nil
	}
	block := &EthereumBlock{}
	if err := json.Unmarshal(res, block); err != nil {
		return nil, err
	}
	return block, nil
}

func parseTraceBlockResponse(res json.RawMessage) ([]*TraceBlockItem, error) {
	if isNullResult(res) {
		return nil, nil
	}
	items := []*TraceBlockItem{}
	if err := json.Unmarshal(res, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func isNullResult(res json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(res))
	return trimmed == "" || trimmed == "null"
}

var (
	RPCMethod_blockNumber = &RequestResponseHandler[string]{
		RequestMethod: &RequestMethod{
			Name:    "eth_blockNumber",
			Timeout: time.Second * 5,
		},
		ResponseParser: parseQuantityResponse,
	}
	RPCMethod_chainId = &RequestResponseHandler[string]{
		RequestMethod: &RequestMethod{
			Name:    "eth_chainId",
			Timeout: time.Second * 5,
		},
		ResponseParser: parseQuantityResponse,
	}
	RPCMethod_getBlockByNumber = &RequestResponseHandler[*EthereumBlock]{
		RequestMethod: &RequestMethod{
			Name:    "eth_getBlockByNumber",
			Timeout: time.Second * 15,
		},
		ResponseParser: parseBlockResponse,
	}
	RPCMethod_getBlockByHash = &RequestResponseHandler[*EthereumBlock]{
		RequestMethod: &RequestMethod{
			Name:    "eth_getBlockByHash",
			Timeout: time.Second * 15,
		},
		ResponseParser: parseBlockResponse,
	}
	RPCMethod_debugTraceBlockByNumber = &RequestResponseHandler[[]*TraceBlockItem]{
		RequestMethod: &RequestMethod{
			Name:    "debug_traceBlockByNumber",
			Timeout: time.Second * 60,
		},
		ResponseParser: parseTraceBlockResponse,
	}
	RPCMethod_debugTraceBlockByHash = &RequestResponseHandler[[]*TraceBlockItem]{
		RequestMethod: &RequestMethod{
			Name:    "debug_traceBlockByHash",
			Timeout: time.Second * 60,
		},
		ResponseParser: parseTraceBlockResponse,
	}
)

func GetBlockNumberRequest(id uint) *RPCRequest {
	return &RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  RPCMethod_blockNumber.RequestMethod.Name,
		ID:      id,
	}
}

func GetChainIdRequest(id uint) *RPCRequest {
	return &RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  RPCMethod_chainId.RequestMethod.Name,
		ID:      id,
	}
}

// GetBlockByNumberRequest builds an eth_getBlockByNumber request.
// numberOrTag must already be in wire form: a 0x-prefixed hex number or
// one of the node tags (latest, pending, earliest, safe, finalized).
func GetBlockByNumberRequest(numberOrTag string, includeTxs bool, id uint) *RPCRequest {
	return &RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  RPCMethod_getBlockByNumber.RequestMethod.Name,
		Params:  []interface{}{numberOrTag, includeTxs},
		ID:      id,
	}
}

func GetBlockByHashRequest(hash string, includeTxs bool, id uint) *RPCRequest {
	return &RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  RPCMethod_getBlockByHash.RequestMethod.Name,
		Params:  []interface{}{hash, includeTxs},
		ID:      id,
	}
}

func DebugTraceBlockByNumberRequest(numberOrTag string, cfg *TraceConfig, id uint) *RPCRequest {
	return &RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  RPCMethod_debugTraceBlockByNumber.RequestMethod.Name,
		Params:  []interface{}{numberOrTag, cfg},
		ID:      id,
	}
}

func DebugTraceBlockByHashRequest(hash string, cfg *TraceConfig, id uint) *RPCRequest {
	return &RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  RPCMethod_debugTraceBlockByHash.RequestMethod.Name,
		Params:  []interface{}{hash, cfg},
		ID:      id,
	}
}
