package ethereum

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

type (
	EthereumHexString string
	EthereumQuantity  uint64
)

func (v EthereumHexString) MarshalJSON() ([]byte, error) {
	s := fmt.Sprintf(`"%s"`, v)
	return []byte(s), nil
}

func (v *EthereumHexString) UnmarshalJSON(input []byte) error {
	var s string
	if err := json.Unmarshal(input, &s); err != nil {
		return fmt.Errorf("failed to unmarshal EthereumHexString: %w", err)
	}
	*v = EthereumHexString(strings.ToLower(s))
	return nil
}

func (v EthereumHexString) Value() string {
	return string(v)
}

func (v EthereumQuantity) MarshalJSON() ([]byte, error) {
	s := fmt.Sprintf(`"%s"`, hexutil.EncodeUint64(uint64(v)))
	return []byte(s), nil
}

func (v *EthereumQuantity) UnmarshalJSON(input []byte) error {
	if len(input) > 0 && input[0] != '"' {
		var i uint64
		if err := json.Unmarshal(input, &i); err != nil {
			return fmt.Errorf("failed to unmarshal EthereumQuantity into uint64: %w", err)
		}
		*v = EthereumQuantity(i)
		return nil
	}

	var s string
	if err := json.Unmarshal(input, &s); err != nil {
		return fmt.Errorf("failed to unmarshal EthereumQuantity into string: %w", err)
	}
	if s == "" {
		*v = 0
		return nil
	}

	i, err := hexutil.DecodeUint64(s)
	if err != nil {
		return fmt.Errorf("failed to decode EthereumQuantity %v: %w", s, err)
	}
	*v = EthereumQuantity(i)
	return nil
}

func (v EthereumQuantity) Value() uint64 {
	return uint64(v)
}

// TransactionRef handles both shapes eth_getBlockBy* returns for the
// transactions array: plain hash strings when includeTxs is false, full
// objects when true.
type TransactionRef struct {
	Hash EthereumHexString `json:"hash"`
	From EthereumHexString `json:"from"`
	To   EthereumHexString `json:"to"`
}

func (t *TransactionRef) UnmarshalJSON(input []byte) error {
	if len(input) > 0 && input[0] == '"' {
		var s EthereumHexString
		if err := json.Unmarshal(input, &s); err != nil {
			return err
		}
		*t = TransactionRef{Hash: s}
		return nil
	}

	type transactionRefAlias TransactionRef
	var alias transactionRefAlias
	if err := json.Unmarshal(input, &alias); err != nil {
		return fmt.Errorf("failed to unmarshal TransactionRef: %w", err)
	}
	*t = TransactionRef(alias)
	return nil
}

type EthereumBlock struct {
	Hash         EthereumHexString `json:"hash"`
	ParentHash   EthereumHexString `json:"parentHash"`
	Number       EthereumQuantity  `json:"number"`
	Timestamp    EthereumQuantity  `json:"timestamp"`
	GasUsed      EthereumQuantity  `json:"gasUsed"`
	GasLimit     EthereumQuantity  `json:"gasLimit"`
	Miner        EthereumHexString `json:"miner"`
	Transactions []*TransactionRef `json:"transactions"`
}

// TraceCallFrame is the untrusted wire shape of one call frame from the
// callTracer. Downstream code only ever sees the validated
// tracetypes.TraceCallResult built from it.
type TraceCallFrame struct {
	Type    EthereumHexString `json:"type"`
	From    EthereumHexString `json:"from"`
	To      EthereumHexString `json:"to"`
	Value   EthereumHexString `json:"value"`
	Gas     EthereumHexString `json:"gas"`
	GasUsed EthereumHexString `json:"gasUsed"`
	Input   EthereumHexString `json:"input"`
	Output  EthereumHexString `json:"output"`
	Error   string            `json:"error,omitempty"`
	Calls   []*TraceCallFrame `json:"calls,omitempty"`
}

type TraceBlockItem struct {
	TxHash EthereumHexString `json:"txHash"`
	Result *TraceCallFrame   `json:"result"`
	Error  string            `json:"error,omitempty"`
}

// TraceConfig is the second param of the debug_traceBlock* calls.
// Immutable per request.
type TraceConfig struct {
	Tracer       string             `json:"tracer"`
	TracerConfig *TracerCallOptions `json:"tracerConfig,omitempty"`
}

type TracerCallOptions struct {
	OnlyTopCall bool `json:"onlyTopCall"`
	WithLog     bool `json:"withLog"`
}
