// Package chainfeed is the read-only event feed consumed by the recovery
// engine and the ASP service: it wraps go-ethereum's ethclient/accounts/abi
// stack to filter and decode the pool contract's Deposited, MergeDeposit,
// and Withdrawn events, and the entrypoint contract's root-publication
// calls. Per spec §1 the on-chain indexer and the contracts themselves are
// external collaborators; this package only reads what they emit.
//
// Grounded on the bind/abi usage pattern in the prysm end-to-end
// Depositor (txops/contractDepositor/SendDeposit), generalized from
// sending deposit transactions to filtering and decoding event logs, plus
// one outgoing call (updateRoot) for the ASP side.
package chainfeed

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const poolABIJSON = `[
  {"anonymous": false, "type": "event", "name": "Deposited", "inputs": [
    {"name": "depositor", "type": "address", "indexed": true},
    {"name": "pool", "type": "address", "indexed": true},
    {"name": "commitment", "type": "uint256", "indexed": false},
    {"name": "label", "type": "uint256", "indexed": false},
    {"name": "value", "type": "uint256", "indexed": false},
    {"name": "precommitment", "type": "uint256", "indexed": false}
  ]},
  {"anonymous": false, "type": "event", "name": "MergeDeposit", "inputs": [
    {"name": "existingNullifierHash", "type": "uint256", "indexed": false},
    {"name": "newCommitment", "type": "uint256", "indexed": false},
    {"name": "depositValue", "type": "uint256", "indexed": false}
  ]},
  {"anonymous": false, "type": "event", "name": "Withdrawn", "inputs": [
    {"name": "processooor", "type": "address", "indexed": true},
    {"name": "value", "type": "uint256", "indexed": false},
    {"name": "spentNullifier", "type": "uint256", "indexed": false},
    {"name": "newCommitment", "type": "uint256", "indexed": false}
  ]},
  {"type": "function", "name": "SCOPE", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "uint256"}]},
  {"type": "function", "name": "currentRoot", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "uint256"}]},
  {"type": "function", "name": "currentTreeDepth", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "uint256"}]},
  {"type": "function", "name": "currentTreeSize", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "uint256"}]}
]`

const entrypointABIJSON = `[
  {"type": "function", "name": "updateRoot", "stateMutability": "nonpayable", "inputs": [
    {"name": "newRoot", "type": "uint256"},
    {"name": "ipfsCid", "type": "string"}
  ], "outputs": []},
  {"type": "function", "name": "latestRoot", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "uint256"}]}
]`

// PoolABI is the parsed ABI for the pool contract's events and views.
var PoolABI abi.ABI

// EntrypointABI is the parsed ABI for the ASP entrypoint contract's root
// publication surface.
var EntrypointABI abi.ABI

func init() {
	var err error
	PoolABI, err = abi.JSON(strings.NewReader(poolABIJSON))
	if err != nil {
		panic(err)
	}
	EntrypointABI, err = abi.JSON(strings.NewReader(entrypointABIJSON))
	if err != nil {
		panic(err)
	}
}
