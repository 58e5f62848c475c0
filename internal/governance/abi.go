// File: internal/governance/abi.go
package governance

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// DefaultVoteStorageAddress is the VoteStorage deployment on Calibration
const DefaultVoteStorageAddress = "0x3e0713d099145499df55f0dc083cfdd909162e54"

// DefaultProposalVoteAddress is the proposal voting deployment on Calibration
const DefaultProposalVoteAddress = "0xf49ba5eaCdFD5EE3744efEdf413791935FE4D4c5"

// VoteStorageABI records vote receipt CIDs on chain
const VoteStorageABI = `[
	{"inputs":[{"internalType":"string","name":"cid","type":"string"}],"name":"submitVote","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"anonymous":false,"inputs":[
		{"indexed":false,"internalType":"string","name":"cid","type":"string"},
		{"indexed":true,"internalType":"address","name":"voter","type":"address"},
		{"indexed":false,"internalType":"uint256","name":"timestamp","type":"uint256"}
	],"name":"VoteStored","type":"event"},
	{"inputs":[{"internalType":"uint256","name":"index","type":"uint256"}],"name":"getVote","outputs":[
		{"internalType":"string","name":"","type":"string"},
		{"internalType":"address","name":"","type":"address"},
		{"internalType":"uint256","name":"","type":"uint256"}
	],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"getVoteCount","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// ProposalVoteABI is the rug/safe proposal voting interface
const ProposalVoteABI = `[
	{"inputs":[
		{"internalType":"string","name":"proposalId","type":"string"},
		{"internalType":"bool","name":"support","type":"bool"}
	],"name":"vote","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[
		{"internalType":"string","name":"proposalId","type":"string"},
		{"internalType":"address","name":"voter","type":"address"}
	],"name":"hasVoted","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"string","name":"proposalId","type":"string"}],"name":"getVoteCount","outputs":[
		{"internalType":"uint256","name":"rugVotes","type":"uint256"},
		{"internalType":"uint256","name":"safeVotes","type":"uint256"},
		{"internalType":"uint256","name":"totalVotes","type":"uint256"}
	],"stateMutability":"view","type":"function"}
]`

var (
	voteStorageABI  = mustParseABI(VoteStorageABI)
	proposalVoteABI = mustParseABI(ProposalVoteABI)
)

func mustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic("governance: invalid ABI: " + err.Error())
	}
	return parsed
}
