// internal/netclient/types.go
package netclient

import (
	"sync"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
)

const (
	defaultTimeout    = 10 * time.Second
	balanceCacheTTL   = 30 * time.Second
	feeCacheTTL       = 10 * time.Second
	confirmPollPeriod = 1 * time.Second

	// maxNodeRetries bounds the node-rotation loop for read calls.
	maxNodeRetries = 3

	// DefaultPriorityFee is used when the fee estimator itself is
	// unavailable. Trade execution never blocks on fee estimation.
	DefaultPriorityFee uint64 = 10_000 // micro-lamports per compute unit
)

// rpcNode is one RPC endpoint with health bookkeeping.
type rpcNode struct {
	client *rpc.Client
	url    string

	mu           sync.Mutex
	active       bool
	failCount    int
	requestCount uint64
	lastLatency  time.Duration
}

func (n *rpcNode) isActive() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.active
}

func (n *rpcNode) recordResult(ok bool, latency time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requestCount++
	n.lastLatency = latency
	if ok {
		n.failCount = 0
		n.active = true
		return
	}
	n.failCount++
	// Three consecutive failures sideline the node until a later success.
	if n.failCount >= 3 {
		n.active = false
	}
}

type cachedBalance struct {
	lamports  uint64
	fetchedAt time.Time
}

type cachedFee struct {
	microLamports uint64
	fetchedAt     time.Time
}
