package nodes

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gaiandb/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/models"
)

// ErrFlowClosed is returned by Dispatch once Close has been called.
var ErrFlowClosed = errors.New("flow is closed")

// Flow is the registry of config nodes and flow nodes. It dispatches every
// inbound message on its own goroutine.
type Flow struct {
	mu      sync.RWMutex
	configs map[string]*GaianConfig
	nodes   map[string]Node
	closed  bool

	inflight sync.WaitGroup
	logger   *zap.Logger
}

// NewFlow creates an empty flow.
func NewFlow(logger *zap.Logger) *Flow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flow{
		configs: make(map[string]*GaianConfig),
		nodes:   make(map[string]Node),
		logger:  logger.Named("flow"),
	}
}

// AddConfig registers a database config node.
func (f *Flow) AddConfig(g *GaianConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.configs[g.ID()]; ok {
		return fmt.Errorf("database %q: %w", g.ID(), apperrors.ErrConflict)
	}
	f.configs[g.ID()] = g
	return nil
}

// AddNode registers a flow node.
func (f *Flow) AddNode(n Node) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.nodes[n.ID()]; ok {
		return fmt.Errorf("node %q: %w", n.ID(), apperrors.ErrConflict)
	}
	f.nodes[n.ID()] = n
	return nil
}

// Config returns the config node registered under id.
func (f *Flow) Config(id string) (*GaianConfig, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	g, ok := f.configs[id]
	if !ok {
		return nil, fmt.Errorf("database %q: %w", id, apperrors.ErrNotFound)
	}
	return g, nil
}

// Node returns the flow node registered under id.
func (f *Flow) Node(id string) (Node, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n, ok := f.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node %q: %w", id, apperrors.ErrNotFound)
	}
	return n, nil
}

// Configs returns every config node, sorted by ID.
func (f *Flow) Configs() []*GaianConfig {
	f.mu.RLock()
	defer f.mu.RUnlock()

	configs := make([]*GaianConfig, 0, len(f.configs))
	for _, g := range f.configs {
		configs = append(configs, g)
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].ID() < configs[j].ID() })
	return configs
}

// Nodes returns a status snapshot of every node, sorted by ID.
func (f *Flow) Nodes() []Info {
	f.mu.RLock()
	defer f.mu.RUnlock()

	infos := make([]Info, 0, len(f.nodes))
	for _, n := range f.nodes {
		infos = append(infos, n.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// InputChannels maps each input channel to the nodes listening on it.
func (f *Flow) InputChannels() map[string][]string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	channels := make(map[string][]string)
	for id, n := range f.nodes {
		if n.Input() == "" {
			continue
		}
		channels[n.Input()] = append(channels[n.Input()], id)
	}
	for _, ids := range channels {
		sort.Strings(ids)
	}
	return channels
}

// Dispatch hands msg to the node on a new goroutine and returns immediately.
// The run is detached from ctx cancellation so a finished HTTP request or bus
// read does not abort it.
func (f *Flow) Dispatch(ctx context.Context, nodeID string, msg models.Message) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return ErrFlowClosed
	}
	n, ok := f.nodes[nodeID]
	if !ok {
		return fmt.Errorf("node %q: %w", nodeID, apperrors.ErrNotFound)
	}

	msgID := msg.EnsureID()
	runCtx := context.WithoutCancel(ctx)

	f.inflight.Add(1)
	go func() {
		defer f.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				f.logger.Error("node panicked",
					zap.String("node", nodeID),
					zap.String("msg_id", msgID),
					zap.Any("panic", r))
			}
		}()

		if err := n.Handle(runCtx, msg); err != nil {
			f.logger.Debug("message not processed",
				zap.String("node", nodeID),
				zap.String("msg_id", msgID),
				zap.Error(err))
		}
	}()
	return nil
}

// Close stops accepting messages and waits for in-flight runs until ctx is done.
func (f *Flow) Close(ctx context.Context) error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()

	done := make(chan struct{})
	go func() {
		f.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight runs: %w", ctx.Err())
	}
}
