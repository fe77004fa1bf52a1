// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package net

import (
	"sync"
)

// Priority selects one of a peer's three outbound queues.
type Priority uint8

const (
	// PriorityControl is drained first: pings, pongs, bootstrap.
	PriorityControl Priority = iota
	// PriorityBlock is drained before transactions.
	PriorityBlock
	// PriorityTransaction is drained last.
	PriorityTransaction

	numPriorities
)

// Peer is the outbound half of a connection as seen by the worker
// pool. The transport behind it is out of scope; tests substitute a
// recording double.
type Peer interface {
	// Send enqueues a message to this peer.
	Send(*Message)
}

// Broadcaster fans a message out to every connected peer.
type Broadcaster interface {
	// Broadcast enqueues a message to all peers.
	Broadcast(*Message)
}

// OutboundQueue is the per-peer send buffer: three bounded FIFO queues
// drained with strict priority preference (control > block >
// transaction), each internally round-robin by arrival. A full queue
// drops the newest message, never blocks the enqueuer.
type OutboundQueue struct {
	mu     sync.Mutex
	queues [numPriorities][]*Message
	limit  int
}

// NewOutboundQueue returns a queue holding at most limit messages per
// priority class.
func NewOutboundQueue(limit int) *OutboundQueue {
	return &OutboundQueue{limit: limit}
}

// Enqueue adds m to the queue for its kind's priority. Reports false
// when that class is full and the message was dropped.
func (q *OutboundQueue) Enqueue(m *Message) bool {
	pri := m.Kind.Priority()

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.queues[pri]) >= q.limit {
		return false
	}
	q.queues[pri] = append(q.queues[pri], m)
	return true
}

// Dequeue removes and returns the next message to send, preferring
// higher-priority classes. Returns nil when every queue is empty.
func (q *OutboundQueue) Dequeue() *Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	for pri := range q.queues {
		if len(q.queues[pri]) > 0 {
			m := q.queues[pri][0]
			q.queues[pri] = q.queues[pri][1:]
			return m
		}
	}
	return nil
}

// Len returns the total number of queued messages.
func (q *OutboundQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for pri := range q.queues {
		n += len(q.queues[pri])
	}
	return n
}
