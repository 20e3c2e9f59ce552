package chat

import (
	"github.com/rs/zerolog"

	"github.com/omochice/presence-chat/internal/metrics"
	"github.com/omochice/presence-chat/internal/pkg/logx"
	"github.com/omochice/presence-chat/pkg/protocol"
)

// Router delivers INCOMING_MESSAGE pushes to sessions held in a Registry.
// Recipients are resolved under the registry lock and written to after it is
// released; a slow recipient loses the push instead of stalling the sender.
type Router struct {
	registry      *Registry
	echoBroadcast bool
	logger        zerolog.Logger
}

// NewRouter creates a Router. With echoBroadcast set, a broadcast is also
// pushed back to its sender.
func NewRouter(registry *Registry, echoBroadcast bool) *Router {
	return &Router{
		registry:      registry,
		echoBroadcast: echoBroadcast,
		logger:        logx.Component("router"),
	}
}

// Route sends content from sender to recipient, or to everyone when
// recipient is empty. It returns the number of pushes queued.
func (r *Router) Route(sender, recipient, content string) (int, error) {
	if recipient == "" {
		return r.Broadcast(sender, content)
	}
	return r.Direct(sender, recipient, content)
}

// Broadcast pushes content from sender to every ONLINE session. It returns
// the number of pushes queued.
func (r *Router) Broadcast(sender, content string) (int, error) {
	data, err := protocol.NewIncomingMessage(sender, content, protocol.MessageTypeBroadcast).Encode()
	if err != nil {
		return 0, err
	}

	exclude := sender
	if r.echoBroadcast {
		exclude = ""
	}
	peers := r.registry.OnlinePeers(exclude)

	delivered := 0
	for _, p := range peers {
		if r.push(p, data, protocol.MessageTypeBroadcast) {
			delivered++
		}
	}
	r.logger.Debug().
		Str("sender", sender).
		Int("recipients", len(peers)).
		Int("delivered", delivered).
		Msg("Broadcast routed")
	return delivered, nil
}

// Direct pushes content from sender to recipient, which must be ONLINE.
func (r *Router) Direct(sender, recipient, content string) (int, error) {
	peer, ok := r.registry.OnlinePeer(recipient)
	if !ok {
		return 0, ErrRecipientNotFound
	}

	data, err := protocol.NewIncomingMessage(sender, content, protocol.MessageTypeDirect).Encode()
	if err != nil {
		return 0, err
	}
	if !r.push(peer, data, protocol.MessageTypeDirect) {
		return 0, nil
	}
	return 1, nil
}

func (r *Router) push(p *Peer, data []byte, kind protocol.MessageType) bool {
	if !p.Push(data) {
		metrics.PushesDropped.Inc()
		p.logger.Warn().Str("kind", kind.String()).Msg("Push dropped, outbound queue full or closed")
		return false
	}
	metrics.PushesDelivered.WithLabelValues(kind.String()).Inc()
	return true
}
