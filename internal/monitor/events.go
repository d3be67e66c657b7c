// Package monitor decouples the session FSM from its observers. The FSM
// publishes state transitions, predictions, and the final performance
// report onto a small pubsub broker; the stdout prediction printer and
// an optional live-monitor websocket server both subscribe to the same
// stream instead of being called directly.
package monitor

import "github.com/cskr/pubsub"

// Topic names on the broker. Kept as named constants rather than magic
// strings scattered across callers.
const (
	TopicState      = "state"
	TopicPrediction = "prediction"
	TopicPerf       = "perf"
)

// StateChanged is published whenever the session FSM transitions.
type StateChanged struct {
	From string
	To   string
}

// Prediction is published for every accepted DATASET_SAMPLE answer.
type Prediction struct {
	TaskType uint32
	Columns  []float32
}

// PerfReport is published once, when the device's PERF_REPORT answer is accepted.
type PerfReport struct {
	Freq        uint32
	FlashUsage  uint32
	RAMUsage    uint32
	RAMUsageCur uint32
	BufferSize  uint32
	USSampleMin float32
	USSampleMax float32
	USSampleAvg float32
}

// Broker is a thin wrapper over pubsub.PubSub fixing the topic set this
// tool uses, so callers publish/subscribe by event type instead of by
// string topic name.
type Broker struct {
	ps *pubsub.PubSub
}

// NewBroker creates a broker with the given per-subscriber channel capacity.
func NewBroker(capacity int) *Broker {
	return &Broker{ps: pubsub.New(capacity)}
}

// PublishState, PublishPrediction, and PublishPerf use TryPub rather than
// Pub: the session FSM calls these synchronously from its single event
// loop, and a subscriber with a full channel must never be able to stall
// that loop. A slow observer drops events instead of blocking the FSM.
func (b *Broker) PublishState(e StateChanged)    { b.ps.TryPub(e, TopicState) }
func (b *Broker) PublishPrediction(e Prediction) { b.ps.TryPub(e, TopicPrediction) }
func (b *Broker) PublishPerf(e PerfReport)       { b.ps.TryPub(e, TopicPerf) }

// SubscribePredictions returns a channel receiving only Prediction events.
func (b *Broker) SubscribePredictions() chan interface{} {
	return b.ps.Sub(TopicPrediction)
}

// SubscribePerf returns a channel receiving only PerfReport events.
func (b *Broker) SubscribePerf() chan interface{} {
	return b.ps.Sub(TopicPerf)
}

// SubscribeAll returns a channel receiving every event this tool
// publishes, for the live-monitor bridge.
func (b *Broker) SubscribeAll() chan interface{} {
	return b.ps.Sub(TopicState, TopicPrediction, TopicPerf)
}

// Unsubscribe removes ch from all topics this package publishes on.
func (b *Broker) Unsubscribe(ch chan interface{}) {
	b.ps.Unsub(ch, TopicState, TopicPrediction, TopicPerf)
}

// Shutdown tears down the broker, closing all subscriber channels.
func (b *Broker) Shutdown() {
	b.ps.Shutdown()
}
