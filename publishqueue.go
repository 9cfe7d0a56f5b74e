package mqttd

import (
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
)

// Direction records which side of the exchange owns retransmission: a
// PUBLISH the broker sent to a subscriber, or one a publisher sent to the
// broker that is still working through the QoS 2 handshake.
type Direction int

const (
	ToSubscriber Direction = iota
	FromPublisher
)

// State is one step of the QoS 1/2 acknowledgement state machine: an
// "Awaiting" state names the acknowledgement this exchange is blocked on;
// its "Received" counterpart is the brief state after that acknowledgement
// arrives and before the resulting reaction (if any) has been sent.
type State int

const (
	AwaitingPuback State = iota
	PubackReceived
	AwaitingPubrec
	PubrecReceived
	AwaitingPubrel
	PubrelReceived
	AwaitingPubcomp
	PubcompReceived
)

// retryTick and retryBudget implement §5's "~222s polled at 100ms"
// retransmission policy: a burst-tolerant bound on how long the broker will
// keep retrying a single QoS1/2 exchange before giving up and dropping it.
const (
	retryTick   = 100 * time.Millisecond
	retryBudget = 222 * time.Second
)

type key struct {
	packetID  uint16
	direction Direction
}

// Item is one in-flight QoS 1 or QoS 2 exchange.
type Item struct {
	PacketID uint16
	Direction Direction
	QoS      byte

	mu    sync.Mutex
	state State
	acked chan struct{}
}

// setState records an externally observed acknowledgement and wakes the
// retry pump.
func (it *Item) setState(s State) {
	it.mu.Lock()
	it.state = s
	it.mu.Unlock()
	select {
	case it.acked <- struct{}{}:
	default:
	}
}

// advance records a state transition the pump itself made while reacting to
// an ack (e.g. PubrecReceived -> AwaitingPubcomp after emitting PUBREL). It
// does not re-wake the pump; the pump is already running this transition.
func (it *Item) advance(s State) {
	it.mu.Lock()
	it.state = s
	it.mu.Unlock()
}

func (it *Item) getState() State {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.state
}

// PublishQueue is the process-wide (packet_id, direction) → Item map, plus
// the bounded worker pool that drives retransmission. A burst of in-flight
// QoS traffic is bounded by the pool's worker count rather than one OS
// thread per exchange, per the domain-stack's ants/v2 wiring.
type PublishQueue struct {
	mu    sync.Mutex
	items map[key]*Item
	pool  *ants.Pool
}

// NewPublishQueue constructs a queue backed by a worker pool sized for
// poolSize concurrent retry tasks.
func NewPublishQueue(poolSize int) (*PublishQueue, error) {
	pool, err := ants.NewPool(poolSize, ants.WithNonblocking(false))
	if err != nil {
		return nil, err
	}
	return &PublishQueue{items: make(map[key]*Item), pool: pool}, nil
}

// Release shuts the underlying worker pool down. Call on server shutdown.
func (q *PublishQueue) Release() {
	q.pool.Release()
}

// Len reports the number of in-flight exchanges, used by the Prometheus gauge.
func (q *PublishQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// SendFunc reacts to the exchange's current state: set DUP and retransmit a
// PUBLISH while awaiting an ack, or emit the next handshake packet (PUBREL,
// PUBCOMP) once one arrives. isRetry is true for every call after the very
// first. advance lets send move the item to a new "awaiting" state without
// waking the pump a second time (used after reacting to a "Received" state,
// e.g. PubrecReceived -> AwaitingPubcomp).
type SendFunc func(state State, isRetry bool, advance func(State)) error

// Start records a new in-flight exchange and submits its retry pump to the
// worker pool. send is called once immediately (isRetry false), then again
// on every retry tick and every time Ack reports a new state (isRetry true),
// until done(current state) is true after a send, or retryBudget has
// elapsed since Start (acks received along the way do not extend it).
func (q *PublishQueue) Start(packetID uint16, direction Direction, qos byte, initial State, send SendFunc, done func(State) bool) {
	k := key{packetID, direction}
	it := &Item{PacketID: packetID, Direction: direction, QoS: qos, state: initial, acked: make(chan struct{}, 1)}

	q.mu.Lock()
	q.items[k] = it
	q.mu.Unlock()

	_ = q.pool.Submit(func() {
		deadline := time.Now().Add(retryBudget)
		ticker := time.NewTicker(retryTick)
		defer ticker.Stop()

		checkDone := func(isRetry bool) bool {
			_ = send(it.getState(), isRetry, it.advance)
			if done(it.getState()) {
				q.remove(k)
				return true
			}
			return false
		}

		if checkDone(false) {
			return
		}
		for {
			select {
			case <-it.acked:
				if checkDone(true) {
					return
				}
			case <-ticker.C:
				if time.Now().After(deadline) {
					q.remove(k)
					return
				}
				if checkDone(true) {
					return
				}
			}
		}
	})
}

// Ack advances the exchange identified by (packetID, direction) to newState
// and wakes its retry pump. It returns false if no such exchange exists
// (e.g. a duplicate or stray acknowledgement).
func (q *PublishQueue) Ack(packetID uint16, direction Direction, newState State) bool {
	q.mu.Lock()
	it, ok := q.items[key{packetID, direction}]
	q.mu.Unlock()
	if !ok {
		return false
	}
	it.setState(newState)
	return true
}

// Lookup returns the in-flight item for (packetID, direction), if any. Used
// to detect a duplicate inbound QoS 2 PUBLISH (§4.4 PublishHandler).
func (q *PublishQueue) Lookup(packetID uint16, direction Direction) (*Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	it, ok := q.items[key{packetID, direction}]
	return it, ok
}

// Remove deletes the exchange identified by (packetID, direction) from the
// map. A retry pump already started for it is not stopped: it keeps calling
// its send function until its done predicate holds or retryBudget elapses.
func (q *PublishQueue) Remove(packetID uint16, direction Direction) {
	q.remove(key{packetID, direction})
}

func (q *PublishQueue) remove(k key) {
	q.mu.Lock()
	delete(q.items, k)
	q.mu.Unlock()
}
