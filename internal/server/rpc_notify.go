package server

import (
	"context"
	"sync"

	"github.com/creachadair/jrpc2"
	"github.com/skytrace/copilot/internal/copilot"
	"github.com/skytrace/copilot/internal/timeline"
	"github.com/skytrace/copilot/pkg/logger"
)

// Push notification methods.
const (
	NotifyMark   = "copilot.mark"
	NotifyWindow = "copilot.window"
)

// pushQueueSize bounds the notifications held for slow clients.
const pushQueueSize = 256

// RPCNotifier maintains a set of connected jrpc2 WebSocket servers and
// broadcasts push notifications to all of them. As a copilot.Observer it
// never blocks the caller: pushes are queued and sent from its own
// goroutine, and dropped when the queue is full.
type RPCNotifier struct {
	mu      sync.RWMutex
	servers map[*jrpc2.Server]struct{}
	log     logger.Logger

	queue chan push
	done  chan struct{}
	once  sync.Once
}

type push struct {
	method string
	params any
}

// MarkNotification is pushed for every mark.
type MarkNotification struct {
	WindowID string `json:"windowId"`
	Name     string `json:"name"`
	AtUs     uint64 `json:"atUs"`
}

// NewRPCNotifier creates a notifier and starts its sender.
func NewRPCNotifier(l logger.Logger) *RPCNotifier {
	if l == nil {
		l = logger.NewNopLogger()
	}
	n := &RPCNotifier{
		servers: make(map[*jrpc2.Server]struct{}),
		log:     l,
		queue:   make(chan push, pushQueueSize),
		done:    make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *RPCNotifier) run() {
	for {
		select {
		case p := <-n.queue:
			n.Broadcast(p.method, p.params)
		case <-n.done:
			return
		}
	}
}

// Close stops the sender.
func (n *RPCNotifier) Close() {
	n.once.Do(func() { close(n.done) })
}

// Register adds a server to the broadcast set.
func (n *RPCNotifier) Register(srv *jrpc2.Server) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.servers[srv] = struct{}{}
}

// Unregister removes a server from the broadcast set.
func (n *RPCNotifier) Unregister(srv *jrpc2.Server) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.servers, srv)
}

// Broadcast sends a push notification to all registered servers.
// Servers that fail to receive are unregistered.
func (n *RPCNotifier) Broadcast(method string, params any) {
	n.mu.RLock()
	servers := make([]*jrpc2.Server, 0, len(n.servers))
	for srv := range n.servers {
		servers = append(servers, srv)
	}
	n.mu.RUnlock()

	var failed []*jrpc2.Server
	for _, srv := range servers {
		if err := srv.Notify(context.Background(), method, params); err != nil {
			n.log.Warning("RPC push failed: %v", err)
			failed = append(failed, srv)
		}
	}

	if len(failed) > 0 {
		n.mu.Lock()
		for _, srv := range failed {
			delete(n.servers, srv)
		}
		n.mu.Unlock()
	}
}

// Count returns the number of registered servers.
func (n *RPCNotifier) Count() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.servers)
}

func (n *RPCNotifier) enqueue(method string, params any) {
	select {
	case n.queue <- push{method: method, params: params}:
	default:
		n.log.Warning("RPC push queue full, dropping %s", method)
	}
}

// OnMark queues a mark push.
func (n *RPCNotifier) OnMark(windowID string, e timeline.Entry) {
	n.enqueue(NotifyMark, MarkNotification{WindowID: windowID, Name: e.Name, AtUs: e.AtUs})
}

// OnWindowReport queues a window report push.
func (n *RPCNotifier) OnWindowReport(r copilot.Report) {
	n.enqueue(NotifyWindow, r)
}
