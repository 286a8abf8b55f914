package bridge

import (
	"context"
	"sync"

	"github.com/devadigapratham/pandaprint/bambu"
	"github.com/rs/zerolog"
)

// Bridge maps every configured printer to its Node. The mapping is built once
// at construction and never changes.
type Bridge struct {
	registry Registry
	nodes    map[string]*Node
	log      zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a node, with its own session, for every printer in registry
func New(registry Registry, dialer bambu.Dialer, uploader Uploader, cfg bambu.SessionConfig, log zerolog.Logger) *Bridge {
	b := &Bridge{
		registry: registry,
		nodes:    make(map[string]*Node),
		log:      log.With().Str("component", "bridge").Logger(),
	}
	for _, p := range registry.Printers() {
		session := bambu.NewSession(p, dialer, cfg, log)
		b.nodes[p.Name] = NewNode(p, session, uploader, log)
	}
	return b
}

// Start launches the connection loop and telemetry listener of every printer
func (b *Bridge) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		return
	}
	ctx, b.cancel = context.WithCancel(ctx)

	for _, p := range b.registry.Printers() {
		node := b.nodes[p.Name]
		b.wg.Add(2)
		go func() {
			defer b.wg.Done()
			node.session.Run(ctx)
		}()
		go func() {
			defer b.wg.Done()
			node.listen(ctx)
		}()
	}
	b.log.Info().Int("printers", len(b.nodes)).Msg("Bridge started")
}

// Stop disconnects every printer and waits for the background loops
func (b *Bridge) Stop() {
	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	b.wg.Wait()
	b.log.Info().Msg("Bridge stopped")
}

// Node resolves name through the registry and returns its printer's node
func (b *Bridge) Node(name string) (*Node, error) {
	p, ok := b.registry.Lookup(name)
	if !ok {
		return nil, &UnknownPrinterError{Name: name}
	}
	return b.nodes[p.Name], nil
}

// Nodes returns every node in configuration order
func (b *Bridge) Nodes() []*Node {
	printers := b.registry.Printers()
	nodes := make([]*Node, 0, len(printers))
	for _, p := range printers {
		nodes = append(nodes, b.nodes[p.Name])
	}
	return nodes
}
