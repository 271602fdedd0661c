package broker

import "context"

type Message struct {
	Topic   string
	Payload []byte
}

// Broker carries market-data messages between the feed and the websocket
// gateways. Topics are colon separated, e.g. kline:1m:AAPL. Delivery is at
// most once: slow subscribers lose messages.
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe delivers the given topics until ctx is done, then closes the
	// channel.
	Subscribe(ctx context.Context, topics []string) (<-chan Message, error)
	Close() error
}
