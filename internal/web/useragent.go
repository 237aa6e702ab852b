package web

import (
	"math/rand"
	"sync"
)

var browserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14.4; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:124.0) Gecko/20100101 Firefox/124.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
}

// AgentPool hands out browser User-Agent strings at random
type AgentPool struct {
	mu     sync.Mutex
	rng    *rand.Rand
	agents []string
}

// NewAgentPool creates a pool over the built-in browser agents
func NewAgentPool(agents ...string) *AgentPool {
	if len(agents) == 0 {
		agents = browserAgents
	}
	return &AgentPool{
		rng:    rand.New(rand.NewSource(rand.Int63())),
		agents: agents,
	}
}

// Pick returns one agent; safe for concurrent use
func (a *AgentPool) Pick() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.agents[a.rng.Intn(len(a.agents))]
}
