package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vstep-dao/vstep-hub/internal/domain/chain"
	"github.com/vstep-dao/vstep-hub/internal/domain/shared"
	"github.com/vstep-dao/vstep-hub/internal/infrastructure/metrics"
	"github.com/vstep-dao/vstep-hub/pkg/circuitbreaker"
	"github.com/vstep-dao/vstep-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the ledger client.
type ClientConfig struct {
	ContractAddress string

	// PrivateKey is the hex key (without 0x) of the reward-issuing wallet.
	PrivateKey string

	// ChainID is used to sign transactions; 0 asks the node.
	ChainID int64

	// CallTimeout bounds every single RPC call.
	CallTimeout time.Duration

	// RequestsPerSec and Burst throttle outgoing RPC calls.
	RequestsPerSec float64
	Burst          int

	// ConfirmPollEvery is the receipt polling interval in AwaitConfirmation.
	ConfirmPollEvery time.Duration

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// DefaultClientConfig returns sensible defaults for a public RPC endpoint.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		CallTimeout:      15 * time.Second,
		RequestsPerSec:   5,
		Burst:            5,
		ConfirmPollEvery: 2 * time.Second,
	}
}

// Backend is the subset of *ethclient.Client the ledger client needs.
type Backend interface {
	bind.ContractBackend
	BlockNumber(ctx context.Context) (uint64, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client implements chain.Ledger.
type Client struct {
	config   ClientConfig
	backend  Backend
	contract *bind.BoundContract
	address  common.Address
	key      *ecdsa.PrivateKey
	chainID  *big.Int

	limiter *rate.Limiter
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger

	// txMu serializes transaction submission so nonces are assigned in order.
	txMu sync.Mutex

	closeBackend func()
}

// Dial connects to rawURL and creates a client.
func Dial(ctx context.Context, rawURL string, cfg ClientConfig) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("ethereum: dial %s: %w", rawURL, err)
	}

	c, err := NewClient(ctx, ec, cfg)
	if err != nil {
		ec.Close()
		return nil, err
	}
	c.closeBackend = ec.Close
	return c, nil
}

// Close releases the RPC connection opened by Dial.
func (c *Client) Close() {
	if c.closeBackend != nil {
		c.closeBackend()
	}
}

// NewClient creates a client over an existing backend.
func NewClient(ctx context.Context, backend Backend, cfg ClientConfig) (*Client, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("ethereum: invalid contract address %q", cfg.ContractAddress)
	}

	defaults := DefaultClientConfig()
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaults.CallTimeout
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = defaults.RequestsPerSec
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaults.Burst
	}
	if cfg.ConfirmPollEvery <= 0 {
		cfg.ConfirmPollEvery = defaults.ConfirmPollEvery
	}

	log := logger.OrNop(cfg.Logger).Named("ledger")

	c := &Client{
		config:  cfg,
		backend: backend,
		address: common.HexToAddress(cfg.ContractAddress),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst),
		logger:  log,
		breaker: circuitbreaker.LedgerRPCBreaker(func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		}),
	}
	c.contract = bind.NewBoundContract(c.address, parsedABI, backend, backend, backend)

	if cfg.PrivateKey != "" {
		key, err := crypto.HexToECDSA(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("ethereum: invalid private key: %w", err)
		}
		c.key = key
	}

	if cfg.ChainID > 0 {
		c.chainID = big.NewInt(cfg.ChainID)
	} else if c.key != nil {
		err := c.call(ctx, "chainId", func(ctx context.Context) error {
			id, err := backend.ChainID(ctx)
			c.chainID = id
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	return c, nil
}

// WalletAddress returns the reward-issuing wallet, or the zero address.
func (c *Client) WalletAddress() common.Address {
	if c.key == nil {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(c.key.PublicKey)
}

// call runs fn under the rate limiter, the circuit breaker and the per-call
// timeout, mapping failures to shared.ErrLedgerUnavailable.
func (c *Client) call(ctx context.Context, method string, fn func(context.Context) error) error {
	start := time.Now()
	defer c.config.Metrics.ObserveLedger(method, start)

	if err := c.limiter.Wait(ctx); err != nil {
		return ledgerError(method, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
	defer cancel()

	if err := c.breaker.Execute(callCtx, fn); err != nil {
		return ledgerError(method, err)
	}
	return nil
}

func ledgerError(method string, err error) error {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return shared.WrapError("ledger", "Call", shared.ErrLedgerUnavailable,
			shared.ErrLedgerTimeout.Message, fmt.Errorf("%s: %w", method, err))
	}
	return shared.WrapError("ledger", method, shared.ErrLedgerUnavailable, "ledger call failed", err)
}

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

// GetProposal reads proposal state. A proposal with no proposer was never
// created and yields shared.ErrProposalNotFound.
func (c *Client) GetProposal(ctx context.Context, id uint64) (*chain.Proposal, error) {
	if id > math.MaxInt64 {
		return nil, shared.NewDomainError("ledger", "GetProposal", shared.ErrValidation, "proposal id out of range")
	}

	var p *chain.Proposal
	err := c.call(ctx, methodProposals, func(ctx context.Context) error {
		var out []interface{}
		if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, methodProposals, new(big.Int).SetUint64(id)); err != nil {
			return err
		}
		decoded, err := decodeProposal(out)
		if err != nil {
			return err
		}
		p = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}

	if p.ProposerAddress == (common.Address{}).Hex() {
		return nil, shared.ErrProposalNotFound
	}
	return p, nil
}

// LatestBlock returns the head block number.
func (c *Client) LatestBlock(ctx context.Context) (uint64, error) {
	var n uint64
	err := c.call(ctx, "blockNumber", func(ctx context.Context) error {
		var err error
		n, err = c.backend.BlockNumber(ctx)
		return err
	})
	return n, err
}

func (c *Client) approvalsQuery(from, to *big.Int) goethereum.FilterQuery {
	return goethereum.FilterQuery{
		FromBlock: from,
		ToBlock:   to,
		Addresses: []common.Address{c.address},
		Topics:    [][]common.Hash{{approvedTopic()}},
	}
}

// QueryApprovals returns approvals in [fromBlock, toBlock]. Logs that fail to
// decode are logged and skipped.
func (c *Client) QueryApprovals(ctx context.Context, fromBlock, toBlock uint64) ([]chain.ApprovalEvent, error) {
	q := c.approvalsQuery(new(big.Int).SetUint64(fromBlock), new(big.Int).SetUint64(toBlock))

	var logs []types.Log
	err := c.call(ctx, "getLogs", func(ctx context.Context) error {
		var err error
		logs, err = c.backend.FilterLogs(ctx, q)
		return err
	})
	if err != nil {
		return nil, err
	}

	events := make([]chain.ApprovalEvent, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		ev, err := decodeApproval(l)
		if err != nil {
			c.logger.Warn("skipping undecodable approval log", zap.Error(err), logger.TxHash(l.TxHash.Hex()))
			continue
		}
		events = append(events, ev)
	}

	return events, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Rewards
// ─────────────────────────────────────────────────────────────────────────────

// IssueReward submits issueReward(addr, units * 10^18).
func (c *Client) IssueReward(ctx context.Context, addr string, units int64) (chain.TxHandle, error) {
	if c.key == nil {
		return chain.TxHandle{}, shared.NewDomainError("ledger", methodIssueReward, shared.ErrLedgerUnavailable, "no reward wallet configured")
	}
	if !common.IsHexAddress(addr) {
		return chain.TxHandle{}, shared.ErrInvalidWallet
	}
	if units <= 0 {
		return chain.TxHandle{}, shared.NewDomainError("ledger", methodIssueReward, shared.ErrValidation, "reward must be positive")
	}

	c.txMu.Lock()
	defer c.txMu.Unlock()

	var tx *types.Transaction
	err := c.call(ctx, methodIssueReward, func(ctx context.Context) error {
		opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
		if err != nil {
			return err
		}
		opts.Context = ctx

		tx, err = c.contract.Transact(opts, methodIssueReward, common.HexToAddress(addr), ToBaseUnits(units))
		return err
	})
	if err != nil {
		return chain.TxHandle{}, err
	}

	h := chain.TxHandle{Hash: tx.Hash().Hex(), To: addr, Units: units}
	c.logger.Info("reward submitted", logger.TxHash(h.Hash), logger.UserID(addr), logger.RewardUnits(units))
	return h, nil
}

// AwaitConfirmation polls for the receipt until ctx is done.
func (c *Client) AwaitConfirmation(ctx context.Context, h chain.TxHandle) error {
	hash := common.HexToHash(h.Hash)
	ticker := time.NewTicker(c.config.ConfirmPollEvery)
	defer ticker.Stop()

	for {
		var receipt *types.Receipt
		err := c.call(ctx, "getTransactionReceipt", func(ctx context.Context) error {
			var err error
			receipt, err = c.backend.TransactionReceipt(ctx, hash)
			if errors.Is(err, goethereum.NotFound) {
				receipt = nil
				return nil
			}
			return err
		})
		if err != nil {
			// Transient; keep polling until the caller's deadline.
			c.logger.Debug("receipt poll failed", logger.TxHash(h.Hash), zap.Error(err))
		}

		if receipt != nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return shared.WrapError("ledger", "AwaitConfirmation", shared.ErrLedgerUnavailable,
					shared.ErrRewardReverted.Message, fmt.Errorf("tx %s status %d", h.Hash, receipt.Status))
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ledgerError("AwaitConfirmation", ctx.Err())
		case <-ticker.C:
		}
	}
}

var _ chain.Ledger = (*Client)(nil)
