package blockinfo

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pyusd-analytics/blocktracer/internal/config"
	"github.com/pyusd-analytics/blocktracer/pkg/clients/ethereum"
	"github.com/pyusd-analytics/blocktracer/pkg/identifier"
	"github.com/pyusd-analytics/blocktracer/pkg/tracetypes"
	"go.uber.org/zap"
)

// Resolver turns block identifiers into BlockInfo metadata and answers
// simple questions about ranges and recent blocks.
type Resolver struct {
	EthClient *ethereum.Client
	Logger    *zap.Logger
	Config    *config.Config
}

func NewResolver(ethClient *ethereum.Client, cfg *config.Config, l *zap.Logger) *Resolver {
	return &Resolver{
		EthClient: ethClient,
		Logger:    l,
		Config:    cfg,
	}
}

type SearchCriteria struct {
	MinTransactions int
	MaxTransactions int
	Limit           int
	// FromBlock is the upper bound of the backward scan. Zero means the
	// current head.
	FromBlock uint64
}

func toBlockInfo(block *ethereum.EthereumBlock) *tracetypes.BlockInfo {
	txs := make([]string, 0, len(block.Transactions))
	for _, tx := range block.Transactions {
		txs = append(txs, tx.Hash.Value())
	}
	return &tracetypes.BlockInfo{
		Number:           block.Number.Value(),
		Hash:             block.Hash.Value(),
		ParentHash:       block.ParentHash.Value(),
		Timestamp:        block.Timestamp.Value(),
		GasUsed:          block.GasUsed.Value(),
		GasLimit:         block.GasLimit.Value(),
		Transactions:     txs,
		TransactionCount: len(txs),
	}
}

// wrapFetchError tags transport failures. Context deadline errors become
// network_error, everything else rpc_error.
func wrapFetchError(err error, id string) *tracetypes.ServiceError {
	msg := err.Error()
	if strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "timeout") {
		return tracetypes.NewServiceError(tracetypes.ErrorCode_NetworkError, "block fetch timed out", id, err, nil)
	}
	return tracetypes.NewServiceError(tracetypes.ErrorCode_RpcError, "block fetch failed", id, err, nil)
}

func notFoundError(id string) *tracetypes.ServiceError {
	return tracetypes.NewServiceError(tracetypes.ErrorCode_ValidationError, "block not found", id, nil, nil)
}

// GetByNumber resolves a block by number or tag. The identifier may be an
// integer, a decimal or hex number string, or a tag.
func (r *Resolver) GetByNumber(ctx context.Context, id any, includeTxs bool) (*tracetypes.BlockInfo, error) {
	numberOrTag, err := identifier.Normalize(id)
	if err != nil {
		return nil, tracetypes.NewServiceError(tracetypes.ErrorCode_ValidationError, "invalid block identifier", fmt.Sprintf("%v", id), err, nil)
	}

	block, err := r.EthClient.GetBlockByNumber(ctx, numberOrTag, includeTxs)
	if err != nil {
		return nil, wrapFetchError(err, numberOrTag)
	}
	if block == nil {
		return nil, notFoundError(numberOrTag)
	}
	return toBlockInfo(block), nil
}

func (r *Resolver) GetByHash(ctx context.Context, hash string, includeTxs bool) (*tracetypes.BlockInfo, error) {
	hash = strings.ToLower(strings.TrimSpace(hash))
	if identifier.Classify(hash) != identifier.Kind_BlockHashOrTxHash {
		return nil, tracetypes.NewServiceError(tracetypes.ErrorCode_ValidationError, "invalid block hash", hash, nil, nil)
	}

	block, err := r.EthClient.GetBlockByHash(ctx, hash, includeTxs)
	if err != nil {
		return nil, wrapFetchError(err, hash)
	}
	if block == nil {
		return nil, notFoundError(hash)
	}
	return toBlockInfo(block), nil
}

func (r *Resolver) GetCurrentNumber(ctx context.Context) (uint64, error) {
	n, err := r.EthClient.GetBlockNumber(ctx)
	if err != nil {
		return 0, wrapFetchError(err, "latest")
	}
	return n, nil
}

var chainNames = map[uint64]string{
	1:        "mainnet",
	17000:    "holesky",
	11155111: "sepolia",
}

func (r *Resolver) GetNetworkInfo(ctx context.Context) (*tracetypes.NetworkInfo, error) {
	chainId, err := r.EthClient.GetChainId(ctx)
	if err != nil {
		return nil, wrapFetchError(err, "chainId")
	}
	name, ok := chainNames[chainId]
	if !ok {
		name = fmt.Sprintf("chain-%d", chainId)
	}
	return &tracetypes.NetworkInfo{Name: name, ChainId: chainId}, nil
}

// BlockExists reports whether a block identifier resolves to a block.
// Not-found is a false result, not an error.
func (r *Resolver) BlockExists(ctx context.Context, id any) (bool, error) {
	_, err := r.GetByNumber(ctx, id, false)
	if err != nil {
		if tracetypes.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetRange fetches both endpoints in parallel and derives totals.
func (r *Resolver) GetRange(ctx context.Context, start, end uint64) (*tracetypes.BlockRange, error) {
	if end < start {
		return nil, tracetypes.NewServiceError(tracetypes.ErrorCode_ValidationError, "range end is before range start", fmt.Sprintf("%d-%d", start, end), nil, nil)
	}

	var wg sync.WaitGroup
	var startBlock, endBlock *tracetypes.BlockInfo
	var startErr, endErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		startBlock, startErr = r.GetByNumber(ctx, start, false)
	}()
	go func() {
		defer wg.Done()
		endBlock, endErr = r.GetByNumber(ctx, end, false)
	}()
	wg.Wait()

	if startErr != nil {
		return nil, startErr
	}
	if endErr != nil {
		return nil, endErr
	}

	return &tracetypes.BlockRange{
		Start:             startBlock,
		End:               endBlock,
		TotalBlocks:       endBlock.Number - startBlock.Number + 1,
		TotalTransactions: startBlock.TransactionCount + endBlock.TransactionCount,
	}, nil
}

// GetRecent fetches the count blocks ending at the current head in
// parallel. Order of the returned slice follows block number descending.
func (r *Resolver) GetRecent(ctx context.Context, count int) ([]*tracetypes.BlockInfo, error) {
	if count <= 0 {
		return []*tracetypes.BlockInfo{}, nil
	}
	head, err := r.GetCurrentNumber(ctx)
	if err != nil {
		return nil, err
	}

	numbers := make([]uint64, 0, count)
	for i := 0; i < count; i++ {
		// Skip numbers that would underflow past genesis.
		if uint64(i) > head {
			break
		}
		numbers = append(numbers, head-uint64(i))
	}

	blocks := make([]*tracetypes.BlockInfo, len(numbers))
	errs := make([]error, len(numbers))
	var wg sync.WaitGroup
	for i, n := range numbers {
		wg.Add(1)
		go func(i int, n uint64) {
			defer wg.Done()
			blocks[i], errs[i] = r.GetByNumber(ctx, n, false)
		}(i, n)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return blocks, nil
}

// SearchBlocks walks backward from the search window bound collecting
// blocks whose transaction count falls within the criteria. The scan is
// capped to bound RPC cost; individual block failures are logged and
// skipped.
func (r *Resolver) SearchBlocks(ctx context.Context, criteria *SearchCriteria) ([]*tracetypes.BlockInfo, error) {
	limit := criteria.Limit
	if limit <= 0 {
		limit = 10
	}
	maxTxs := criteria.MaxTransactions
	if maxTxs <= 0 {
		maxTxs = int(^uint(0) >> 1)
	}

	from := criteria.FromBlock
	if from == 0 {
		head, err := r.GetCurrentNumber(ctx)
		if err != nil {
			return nil, err
		}
		from = head
	}

	scanCap := r.Config.BlocksConfig.SearchScanCap
	matches := make([]*tracetypes.BlockInfo, 0, limit)

	for scanned := 0; scanned < scanCap && len(matches) < limit; scanned++ {
		n := from - uint64(scanned)
		block, err := r.GetByNumber(ctx, n, false)
		if err != nil {
			r.Logger.Sugar().Warnw("Skipping block during search",
				zap.Uint64("blockNumber", n),
				zap.Error(err),
			)
			if n == 0 {
				break
			}
			continue
		}
		if block.TransactionCount >= criteria.MinTransactions && block.TransactionCount <= maxTxs {
			matches = append(matches, block)
		}
		if n == 0 {
			break
		}
	}
	return matches, nil
}

// Stats derives simple block statistics.
func Stats(block *tracetypes.BlockInfo) *tracetypes.BlockStats {
	stats := &tracetypes.BlockStats{
		Number:           block.Number,
		TransactionCount: block.TransactionCount,
		GasUsed:          block.GasUsed,
		GasLimit:         block.GasLimit,
	}
	if block.GasLimit > 0 {
		stats.GasUtilization = float64(block.GasUsed) / float64(block.GasLimit) * 100
	}
	if block.TransactionCount > 0 {
		stats.AvgGasPerTx = float64(block.GasUsed) / float64(block.TransactionCount)
	}
	return stats
}

// FormatBlockNumber renders a block number in wire form.
func FormatBlockNumber(n uint64) string {
	return hexutil.EncodeUint64(n)
}
