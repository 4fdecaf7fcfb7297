package cid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "QmAbc123", Normalize("ipfs://QmAbc123"))
	assert.Equal(t, "QmAbc123", Normalize("QmAbc123"))
	assert.Equal(t, "bafy123", Normalize("dweb://bafy123"))
}

func TestGatewayURL(t *testing.T) {
	assert.Equal(t,
		"https://gw.example.com/ipfs/QmAbc123",
		GatewayURL("https://gw.example.com/ipfs/", "ipfs://QmAbc123"))
}

func TestSum_Deterministic(t *testing.T) {
	a := Sum([]byte("hello"))
	b := Sum([]byte("hello"))
	c := Sum([]byte("world"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
