// Package contractstest provides small hand-assembled contracts for exercising
// deployment and resolution against the in-process chain.
package contractstest

import (
	"encoding/json"

	"ContractHub/internal/contracts"
)

const (
	// PingABI describes a contract whose runtime emits a single log and stops.
	PingABI = `[{"anonymous":false,"inputs":[],"name":"Ping","type":"event"}]`
	// PingBin deploys a 39 byte runtime that emits one log per call.
	PingBin = "0x6027600c60003960276000f37f0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f2060006000a100"

	// DispatcherABI is a proxy whose target is fixed by its constructor.
	DispatcherABI = `[{"inputs":[{"internalType":"address","name":"_target","type":"address"}],"stateMutability":"nonpayable","type":"constructor"},{"inputs":[],"name":"target","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"}]`
	// DispatcherBin stores the constructor argument in slot 0 and returns it
	// for every call.
	DispatcherBin = "0x6020803803600039600051600055600b8060196000396000f360005460005260206000f3"

	// RevertingABI has no callable members.
	RevertingABI = `[]`
	// RevertingBin reverts in its constructor.
	RevertingBin = "0x60006000fd"
)

// Compiler returns a compiler serving Ping, Dispatcher and Reverting.
func Compiler() contracts.StaticCompiler {
	return contracts.StaticCompiler{
		"Ping":       {ABI: json.RawMessage(PingABI), Bin: PingBin},
		"Dispatcher": {ABI: json.RawMessage(DispatcherABI), Bin: DispatcherBin},
		"Reverting":  {ABI: json.RawMessage(RevertingABI), Bin: RevertingBin},
	}
}
