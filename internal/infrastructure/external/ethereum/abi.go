// Package ethereum implements the ledger client against the governance
// contract on an EVM chain.
package ethereum

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vstep-dao/vstep-hub/internal/domain/chain"
)

// governanceABI is the subset of the governance contract this service uses.
const governanceABI = `[
	{"type":"function","name":"issueReward","stateMutability":"nonpayable",
	 "inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"proposals","stateMutability":"view",
	 "inputs":[{"name":"","type":"uint256"}],
	 "outputs":[
		{"name":"id","type":"uint256"},
		{"name":"proposer","type":"address"},
		{"name":"ipfsHash","type":"string"},
		{"name":"voteCount","type":"uint256"},
		{"name":"executed","type":"bool"}]},
	{"type":"event","name":"TestApproved","anonymous":false,
	 "inputs":[{"name":"id","type":"uint256","indexed":false},{"name":"ipfsHash","type":"string","indexed":false}]}
]`

const (
	methodIssueReward = "issueReward"
	methodProposals   = "proposals"
	eventApproved     = "TestApproved"
)

// TokenDecimals is the ERC-20 decimals of the reward token.
const TokenDecimals = 18

var parsedABI = mustParseABI()

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(governanceABI))
	if err != nil {
		panic(fmt.Sprintf("ethereum: invalid governance ABI: %v", err))
	}
	return parsed
}

// approvedTopic is the topic0 of TestApproved logs.
func approvedTopic() common.Hash {
	return parsedABI.Events[eventApproved].ID
}

// ToBaseUnits converts whole token units to the token's smallest unit.
func ToBaseUnits(units int64) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(TokenDecimals), nil)
	return new(big.Int).Mul(big.NewInt(units), scale)
}

// decodeApproval turns a TestApproved log into a domain event.
func decodeApproval(l types.Log) (chain.ApprovalEvent, error) {
	if len(l.Topics) == 0 || l.Topics[0] != approvedTopic() {
		return chain.ApprovalEvent{}, fmt.Errorf("log is not %s", eventApproved)
	}

	values, err := parsedABI.Unpack(eventApproved, l.Data)
	if err != nil {
		return chain.ApprovalEvent{}, fmt.Errorf("unpack %s: %w", eventApproved, err)
	}
	if len(values) != 2 {
		return chain.ApprovalEvent{}, fmt.Errorf("unpack %s: got %d values", eventApproved, len(values))
	}

	id, ok := values[0].(*big.Int)
	if !ok || !validProposalID(id) {
		return chain.ApprovalEvent{}, fmt.Errorf("unpack %s: bad id %v", eventApproved, values[0])
	}
	hash, ok := values[1].(string)
	if !ok {
		return chain.ApprovalEvent{}, fmt.Errorf("unpack %s: bad hash %v", eventApproved, values[1])
	}

	return chain.ApprovalEvent{
		ProposalID:  id.Uint64(),
		ContentHash: hash,
		BlockNumber: l.BlockNumber,
		TxHash:      l.TxHash.Hex(),
	}, nil
}

// validProposalID reports whether id fits the catalog's signed 64-bit key.
func validProposalID(id *big.Int) bool {
	return id.IsUint64() && id.Uint64() <= math.MaxInt64
}

// decodeProposal maps the proposals(uint256) outputs.
func decodeProposal(out []interface{}) (*chain.Proposal, error) {
	if len(out) != 5 {
		return nil, fmt.Errorf("proposals: got %d outputs", len(out))
	}

	id, ok1 := out[0].(*big.Int)
	proposer, ok2 := out[1].(common.Address)
	hash, ok3 := out[2].(string)
	votes, ok4 := out[3].(*big.Int)
	executed, ok5 := out[4].(bool)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return nil, fmt.Errorf("proposals: unexpected output types %T %T %T %T %T", out[0], out[1], out[2], out[3], out[4])
	}
	if !validProposalID(id) {
		return nil, fmt.Errorf("proposals: id %v out of range", id)
	}
	if !votes.IsUint64() {
		return nil, fmt.Errorf("proposals: vote count %v out of range", votes)
	}

	return &chain.Proposal{
		ID:              id.Uint64(),
		ProposerAddress: proposer.Hex(),
		ContentHash:     hash,
		VoteCount:       votes.Uint64(),
		Executed:        executed,
	}, nil
}
