// Package persistence stores the node key on disk.
//
// The key file uses the JSON layout of a node_key.json: account id, public key
// and secret key, each key as "ed25519:<base58>". The file is written with mode
// 0600 through a temporary file and rename. Nothing else about a run (peers,
// edges, nonces) is persisted.
package persistence
