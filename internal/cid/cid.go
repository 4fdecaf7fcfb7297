// Package cid handles content identifiers for the storage network.
package cid

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Normalize strips any <scheme>:// prefix from a content identifier, so
// "ipfs://Qm..." and a bare "Qm..." refer to the same content.
func Normalize(id string) string {
	if i := strings.Index(id, "://"); i >= 0 {
		return id[i+len("://"):]
	}
	return id
}

// GatewayURL builds the fetch URL for a content id on a gateway base.
// The base is expected to already carry the network's path convention
// (e.g. "https://gateway.example.com/ipfs/").
func GatewayURL(base, id string) string {
	return base + Normalize(id)
}

// Sum returns the sha256 hex digest of data. The local content-addressed
// backend uses it as the content id for stored blobs.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
