package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	corechain "github.com/kilianp07/dobi/core/chain"
	"github.com/kilianp07/dobi/core/logger"
	"github.com/kilianp07/dobi/internal/keylock"
)

const transferGas = 21000

// backend is the subset of ethclient.Client used here.
type backend interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	Close()
}

// Options configures an EthChain.
type Options struct {
	RPCURL string
	// MasterKey funds deposits. Optional when on-chain sends are disabled.
	MasterKey      string
	ReceiptTimeout time.Duration
	PollInterval   time.Duration
	HistoryBlocks  int
	Log            logger.Logger
}

// EthChain talks to an Ethereum compatible JSON-RPC node.
type EthChain struct {
	b       backend
	master  *ecdsa.PrivateKey
	cb      *gobreaker.CircuitBreaker
	senders *keylock.Locker
	opts    Options
	log     logger.Logger

	mu      sync.Mutex
	chainID *big.Int
}

var _ corechain.Chain = (*EthChain)(nil)

// Dial connects to opts.RPCURL.
func Dial(ctx context.Context, opts Options) (*EthChain, error) {
	cli, err := ethclient.DialContext(ctx, opts.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", opts.RPCURL, err)
	}
	c, err := newEthChain(cli, opts)
	if err != nil {
		cli.Close()
		return nil, err
	}
	return c, nil
}

func newEthChain(b backend, opts Options) (*EthChain, error) {
	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = 2 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.HistoryBlocks <= 0 {
		opts.HistoryBlocks = 50
	}
	log := logger.OrNop(opts.Log)
	c := &EthChain{b: b, cb: newBreaker("eth-rpc", log), senders: keylock.New(), opts: opts, log: log}
	if opts.MasterKey != "" {
		key, err := ParseKey(opts.MasterKey)
		if err != nil {
			return nil, fmt.Errorf("master key: %w", err)
		}
		c.master = key
	}
	return c, nil
}

// Close releases the RPC connection.
func (c *EthChain) Close() { c.b.Close() }

func (c *EthChain) NewWallet() (corechain.Wallet, error) { return GenerateWallet() }

func (c *EthChain) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	addr, err := parseAddress(address)
	if err != nil {
		return decimal.Zero, err
	}
	wei, err := guarded(c.cb, "balance", func() (*big.Int, error) {
		return c.b.BalanceAt(ctx, addr, nil)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return corechain.FromWei(wei), nil
}

func (c *EthChain) Fund(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
	if c.master == nil {
		return "", errors.New("master key not configured")
	}
	return c.transfer(ctx, c.master, to, amount)
}

func (c *EthChain) Send(ctx context.Context, privateKey, to string, amount decimal.Decimal) (string, error) {
	key, err := ParseKey(privateKey)
	if err != nil {
		return "", err
	}
	return c.transfer(ctx, key, to, amount)
}

// transfer signs a plain value transfer and waits for a successful receipt.
// Sends from one address are serialized so pending nonces do not collide.
func (c *EthChain) transfer(ctx context.Context, key *ecdsa.PrivateKey, to string, amount decimal.Decimal) (string, error) {
	toAddr, err := parseAddress(to)
	if err != nil {
		return "", err
	}
	from := AddressOf(key)
	unlock := c.senders.Lock(from.Hex())
	signed, err := c.sign(ctx, key, from, toAddr, corechain.ToWei(amount))
	if err == nil {
		_, err = guarded(c.cb, "send", func() (struct{}, error) {
			return struct{}{}, c.b.SendTransaction(ctx, signed)
		})
	}
	unlock()
	if err != nil {
		return "", err
	}
	c.log.Infof("sent %s ETH %s -> %s (%s)", amount, from.Hex(), toAddr.Hex(), signed.Hash().Hex())
	receipt, err := c.waitReceipt(ctx, signed.Hash())
	if err != nil {
		return "", err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("transaction %s reverted", signed.Hash().Hex())
	}
	return receipt.TxHash.Hex(), nil
}

func (c *EthChain) sign(ctx context.Context, key *ecdsa.PrivateKey, from, to common.Address, wei *big.Int) (*types.Transaction, error) {
	nonce, err := guarded(c.cb, "nonce", func() (uint64, error) { return c.b.PendingNonceAt(ctx, from) })
	if err != nil {
		return nil, err
	}
	gasPrice, err := guarded(c.cb, "gas price", func() (*big.Int, error) { return c.b.SuggestGasPrice(ctx) })
	if err != nil {
		return nil, err
	}
	id, err := c.id(ctx)
	if err != nil {
		return nil, err
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    wei,
		Gas:      transferGas,
		GasPrice: gasPrice,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(id), key)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return signed, nil
}

func (c *EthChain) id(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chainID != nil {
		return c.chainID, nil
	}
	id, err := guarded(c.cb, "chain id", func() (*big.Int, error) { return c.b.ChainID(ctx) })
	if err != nil {
		return nil, err
	}
	c.chainID = id
	return id, nil
}

func (c *EthChain) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ReceiptTimeout)
	defer cancel()
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()
	for {
		receipt, err := guarded(c.cb, "receipt", func() (*types.Receipt, error) {
			r, err := c.b.TransactionReceipt(ctx, hash)
			if errors.Is(err, ethereum.NotFound) {
				return nil, nil
			}
			return r, err
		})
		if err != nil {
			return nil, err
		}
		if receipt != nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait receipt %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// History scans the most recent blocks for transfers touching addresses.
// Blocks that cannot be read are skipped.
func (c *EthChain) History(ctx context.Context, addresses []string, limit int) ([]corechain.Tx, error) {
	watched := make(map[common.Address]struct{}, len(addresses))
	for _, a := range addresses {
		if common.IsHexAddress(a) {
			watched[common.HexToAddress(a)] = struct{}{}
		}
	}
	if len(watched) == 0 {
		return nil, nil
	}
	latest, err := guarded(c.cb, "block number", func() (uint64, error) { return c.b.BlockNumber(ctx) })
	if err != nil {
		return nil, err
	}
	id, err := c.id(ctx)
	if err != nil {
		return nil, err
	}
	signer := types.LatestSignerForChainID(id)

	var start uint64
	if latest > uint64(c.opts.HistoryBlocks) {
		start = latest - uint64(c.opts.HistoryBlocks)
	}
	var out []corechain.Tx
	for n := latest + 1; n > start; n-- {
		num := n - 1
		block, err := guarded(c.cb, "block", func() (*types.Block, error) {
			return c.b.BlockByNumber(ctx, new(big.Int).SetUint64(num))
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Debugf("skip block %d: %v", num, err)
			continue
		}
		out = append(out, c.matchBlock(ctx, block, signer, watched)...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].BlockNumber > out[j].BlockNumber })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *EthChain) matchBlock(ctx context.Context, block *types.Block, signer types.Signer, watched map[common.Address]struct{}) []corechain.Tx {
	var out []corechain.Tx
	for _, tx := range block.Transactions() {
		from, err := types.Sender(signer, tx)
		if err != nil {
			continue
		}
		var to common.Address
		if tx.To() != nil {
			to = *tx.To()
		}
		_, incoming := watched[to]
		_, outgoing := watched[from]
		if !incoming && !outgoing {
			continue
		}
		entry := corechain.Tx{
			Hash:        tx.Hash().Hex(),
			BlockNumber: block.NumberU64(),
			Timestamp:   time.Unix(int64(block.Time()), 0).UTC(),
			From:        from.Hex(),
			To:          to.Hex(),
			ValueETH:    corechain.FromWei(tx.Value()),
			Type:        corechain.Outgoing,
			Wallet:      from.Hex(),
		}
		if incoming {
			entry.Type = corechain.Incoming
			entry.Wallet = to.Hex()
		}
		if receipt, err := c.b.TransactionReceipt(ctx, tx.Hash()); err == nil && receipt != nil {
			entry.GasUsed = receipt.GasUsed
			entry.Status = "failed"
			if receipt.Status == types.ReceiptStatusSuccessful {
				entry.Status = "success"
			}
		}
		out = append(out, entry)
	}
	return out
}

// sameAddress compares hex addresses case-insensitively.
func sameAddress(a, b string) bool { return strings.EqualFold(a, b) }
