// Package chain defines the port to the governance ledger: proposal reads,
// reward transactions and the approval event stream. Adapters live in
// infrastructure/external.
package chain

import (
	"context"
	"strings"
)

// Proposal is ledger-owned state; it is the source of truth for authorship.
type Proposal struct {
	ID              uint64
	ProposerAddress string
	ContentHash     string
	VoteCount       uint64
	Executed        bool
}

// ApprovalEvent is emitted by the ledger when a proposal is approved.
type ApprovalEvent struct {
	ProposalID  uint64
	ContentHash string
	BlockNumber uint64
	TxHash      string
}

// TxHandle identifies a submitted transaction.
type TxHandle struct {
	Hash string
	To   string
	// Units is the amount in whole token units.
	Units int64
}

// String returns the transaction hash.
func (h TxHandle) String() string {
	return h.Hash
}

// Subscription is a live approval event stream.
type Subscription interface {
	// Events delivers approvals until the subscription fails or is closed.
	Events() <-chan ApprovalEvent

	// Err receives at most one error. Events sent before it stay readable
	// until Events is closed.
	Err() <-chan error

	Unsubscribe()
}

// Reader is the read side of the ledger.
type Reader interface {
	GetProposal(ctx context.Context, id uint64) (*Proposal, error)
	LatestBlock(ctx context.Context) (uint64, error)

	// QueryApprovals returns approvals emitted in [fromBlock, toBlock].
	QueryApprovals(ctx context.Context, fromBlock, toBlock uint64) ([]ApprovalEvent, error)

	SubscribeApprovals(ctx context.Context) (Subscription, error)
}

// Rewarder submits reward transactions.
type Rewarder interface {
	// IssueReward submits a reward of units whole tokens to addr and returns
	// without waiting for it to be mined.
	IssueReward(ctx context.Context, addr string, units int64) (TxHandle, error)

	// AwaitConfirmation blocks until the transaction is mined. A reverted
	// transaction yields shared.ErrRewardReverted.
	AwaitConfirmation(ctx context.Context, tx TxHandle) error
}

// Ledger is the full ledger client.
type Ledger interface {
	Reader
	Rewarder
}

// SameAddress compares two addresses case-insensitively.
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// PayoutKind tells primary rewards from authorship bonuses.
type PayoutKind string

const (
	PayoutPrimary PayoutKind = "primary"
	PayoutBonus   PayoutKind = "bonus"
)

// Payout is a reward transfer handed to a background worker.
type Payout struct {
	Kind  PayoutKind
	To    string
	Units int64
	// Reference ties the payout to the submission that earned it.
	Reference string

	// Issued is a transaction already sent for this payout. It is only
	// awaited, never re-issued.
	Issued *TxHandle

	// Then is enqueued once this payout is confirmed.
	Then []Payout
}

// ApprovalHandler consumes approval events. Implementations must tolerate
// duplicates.
type ApprovalHandler interface {
	HandleApproval(ctx context.Context, ev ApprovalEvent) error
}

// ApprovalHandlerFunc adapts a function to ApprovalHandler.
type ApprovalHandlerFunc func(ctx context.Context, ev ApprovalEvent) error

// HandleApproval calls f.
func (f ApprovalHandlerFunc) HandleApproval(ctx context.Context, ev ApprovalEvent) error {
	return f(ctx, ev)
}
