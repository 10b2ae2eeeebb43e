// Package web3 houses the chain-facing building blocks shared by the provider
// resolver, the connection manager and the contract resolution layers: the
// backend surface every transport must expose, live contract bindings, and
// the YAML network profiles that name sets of provider endpoints.
package web3
