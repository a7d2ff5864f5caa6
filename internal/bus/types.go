package bus

import "time"

// Message is what a consumer receives, grounded in spec §4.1's contract:
// {topic, key?, payload, partition, offset, producerTimestamp}. Redis
// Streams has no native partition concept, so Partition is always 0 here —
// ordering is preserved per (topic, stream) exactly as Redis Streams
// guarantees per-stream append order.
type Message struct {
	Topic            string
	Key              string
	Payload          []byte
	Partition        int
	Offset           string // Redis Stream entry ID, monotonic within the stream
	ProducerTimestamp time.Time

	// ackID is the underlying Redis Streams message ID used to XACK this
	// entry once the handler completes successfully.
	ackID string
}

// ProduceOptions customizes a single Produce call.
type ProduceOptions struct {
	Key      string
	Validate bool
}
