package marketdata

import (
	"context"

	"tinyex.com/internal/marketdata/broker"
	"tinyex.com/internal/marketdata/ws"
	"tinyex.com/pkg/safe"
)

// Gateway relays broker messages to the websocket hub of this process.
type Gateway struct {
	hub    *ws.Hub
	broker broker.Broker
}

func NewGateway(hub *ws.Hub, b broker.Broker) *Gateway {
	return &Gateway{hub: hub, broker: b}
}

// Start subscribes to topics and relays every message to the hub until ctx
// is done. The subscription is in place when Start returns.
func (g *Gateway) Start(ctx context.Context, topics []string) error {
	ch, err := g.broker.Subscribe(ctx, topics)
	if err != nil {
		return err
	}
	safe.GoCtx(ctx, func(ctx context.Context) {
		for m := range ch {
			g.hub.Publish(m.Topic, m.Payload)
		}
	})
	return nil
}
