package engine

// journal is the durable command log of one instrument.
type journal interface {
	Append(payload []byte) error
	Flush() error
	Close() error
}

type CmdCodec interface {
	Encode(dst []byte, seq uint64, cmd Command) ([]byte, error)
	Decode(payload []byte) (seq uint64, cmd Command, err error)
}

// EventSink receives engine events. Slow sinks must drop, never block.
type EventSink interface {
	TryPublish(ev Event) bool
}
