/*
Copyright © 2020 Marvin

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package server

import (
	"sync"
	"time"

	EventBus "github.com/asaskevich/EventBus"
	"github.com/wentaojin/pounder/logger"
	"github.com/wentaojin/pounder/utils/cluster"
	"go.uber.org/zap"
)

// EventTopic is the bus topic every supervisor publishes on
const EventTopic = "server:event"

type EventKind string

const (
	EventState       EventKind = "state"
	EventPid         EventKind = "pid"
	EventLine        EventKind = "line"
	EventServerState EventKind = "server-state"
	EventCompleted   EventKind = "completed"
	EventFailed      EventKind = "failed"
)

// Event is one observable change of a server slot. Only the fields of its kind are set.
type Event struct {
	Key         cluster.ServerKey
	Kind        EventKind
	Time        time.Time
	State       State
	Pid         int
	Line        string
	ServerState string
	Err         error
}

// NewBus returns the bus shared by the supervisors of one session
func NewBus() EventBus.Bus {
	return EventBus.New()
}

// Subscribe registers fn for the events of every supervisor publishing on bus. Handlers
// run on the queue goroutine of the slot and must not publish or subscribe themselves.
func Subscribe(bus EventBus.Bus, fn func(Event)) (func(), error) {
	if err := bus.Subscribe(EventTopic, fn); err != nil {
		return nil, err
	}
	return func() {
		_ = bus.Unsubscribe(EventTopic, fn)
	}, nil
}

// Dispatcher publishes the events of every slot through one ordered queue per slot.
// The queue of a slot outlives its runs and its supervisors, so the events of a
// stopped run are always published before those of the next one.
type Dispatcher struct {
	bus    EventBus.Bus
	logger *zap.Logger

	mu     sync.Mutex
	queues map[cluster.ServerKey]*eventQueue
	closed bool
}

func NewDispatcher(bus EventBus.Bus, l *zap.Logger) *Dispatcher {
	if l == nil {
		l = logger.GetRootLogger()
	}
	return &Dispatcher{
		bus:    bus,
		logger: l,
		queues: make(map[cluster.ServerKey]*eventQueue),
	}
}

// push queues e behind the earlier events of its slot, events pushed after Close are
// dropped
func (d *Dispatcher) push(e Event) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger.Debug("event dropped after dispatcher close", zap.String("kind", string(e.Kind)))
		return
	}
	q, ok := d.queues[e.Key]
	if !ok {
		q = newEventQueue(d.bus, d.logger)
		d.queues[e.Key] = q
	}
	// pushing under d.mu keeps the queue from being closed in between
	q.push(e)
	d.mu.Unlock()
}

// Close publishes the pending events of every slot and stops the queues
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	queues := make([]*eventQueue, 0, len(d.queues))
	for _, q := range d.queues {
		q.close()
		queues = append(queues, q)
	}
	d.mu.Unlock()

	for _, q := range queues {
		<-q.drained
	}
}

// eventQueue keeps the events of one slot in order and publishes them from a single
// goroutine, so a slow subscriber never blocks the output reader
type eventQueue struct {
	bus    EventBus.Bus
	logger *zap.Logger

	mu      sync.Mutex
	pending []Event
	closed  bool
	wake    chan struct{}
	drained chan struct{}
}

func newEventQueue(bus EventBus.Bus, logger *zap.Logger) *eventQueue {
	q := &eventQueue{
		bus:     bus,
		logger:  logger,
		wake:    make(chan struct{}, 1),
		drained: make(chan struct{}),
	}
	go q.dispatch()
	return q
}

// push appends e, events pushed after close are dropped
func (q *eventQueue) push(e Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.logger.Debug("event dropped after queue close", zap.String("kind", string(e.Kind)))
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	q.pending = append(q.pending, e)
	q.mu.Unlock()
	q.signal()
}

// close lets the dispatcher exit once the pending events are published
func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *eventQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *eventQueue) dispatch() {
	defer close(q.drained)
	for range q.wake {
		for {
			q.mu.Lock()
			batch := q.pending
			q.pending = nil
			closed := q.closed
			q.mu.Unlock()

			if len(batch) == 0 {
				if closed {
					return
				}
				break
			}
			if q.bus == nil {
				continue
			}
			for _, e := range batch {
				q.bus.Publish(EventTopic, e)
			}
		}
	}
}
