// Package ipc implements the in-kernel, per-task mailbox IPC described
// in §4.9: send/request/respond/broadcast/receive and a flat
// subscribe/unsubscribe table, all addressed by task id.
package ipc

import (
	"errors"
	"sync"

	"code.hybscloud.com/atomix"

	"code.hybscloud.com/monokernel/ring"
)

// MailboxCapacity is the fixed per-task mailbox size (§4.9).
const MailboxCapacity = 32

// MessageKind distinguishes the three payload shapes a mailbox carries.
type MessageKind uint8

const (
	KindMessage MessageKind = iota
	KindRequest
	KindResponse
)

// Message is one mailbox entry.
type Message struct {
	Kind      MessageKind
	Sender    uint64
	RequestID uint64 // set for Request/Response
	Data      []byte
}

var ErrNoMailbox = errors.New("ipc: no mailbox for task")

// mailbox wraps a fixed-capacity MPSC queue (many tasks may send to one
// task's mailbox, only the owner drains it) plus its counters.
type mailbox struct {
	q                  *ring.MPSC[Message]
	mu                 sync.Mutex
	sent               atomix.Uint64
	received           atomix.Uint64
	dropped            atomix.Uint64
	broadcastsSent     atomix.Uint64
	broadcastsReceived atomix.Uint64
}

// Counters is a snapshot of one mailbox's traffic counters.
type Counters struct {
	Sent               uint64
	Received           uint64
	Dropped            uint64
	BroadcastsSent     uint64
	BroadcastsReceived uint64
}

// Bus owns every task's mailbox plus the subscription table.
type Bus struct {
	mu        sync.Mutex
	mailboxes map[uint64]*mailbox
	nextReqID uint64
	subs      *subscriptionTable
}

// NewBus builds an empty Bus. Request ids start at 1.
func NewBus() *Bus {
	return &Bus{
		mailboxes: make(map[uint64]*mailbox),
		nextReqID: 1,
		subs:      newSubscriptionTable(),
	}
}

// CreateMailbox allocates taskID's mailbox. Called when Operations
// creates the owning task.
func (b *Bus) CreateMailbox(taskID uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.mailboxes[taskID]; ok {
		return
	}
	b.mailboxes[taskID] = &mailbox{q: ring.NewMPSC[Message](MailboxCapacity)}
}

// RemoveMailbox releases taskID's mailbox. Called on task exit.
func (b *Bus) RemoveMailbox(taskID uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.mailboxes, taskID)
}

func (b *Bus) get(taskID uint64) (*mailbox, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	mb, ok := b.mailboxes[taskID]
	return mb, ok
}

func (b *mailbox) enqueue(msg Message) error {
	if err := b.q.Enqueue(&msg); err != nil {
		b.dropped.AddAcqRel(1)
		return err
	}
	b.sent.AddAcqRel(1)
	return nil
}

// Send enqueues a plain message, dropping (and counting) on a full
// mailbox (§4.9).
func (b *Bus) Send(sender, receiver uint64, data []byte) error {
	mb, ok := b.get(receiver)
	if !ok {
		return ErrNoMailbox
	}
	return mb.enqueue(Message{Kind: KindMessage, Sender: sender, Data: data})
}

// Request enqueues a request and returns its unique, monotonic id
// (§4.9).
func (b *Bus) Request(sender, receiver uint64, data []byte) (uint64, error) {
	mb, ok := b.get(receiver)
	if !ok {
		return 0, ErrNoMailbox
	}
	b.mu.Lock()
	reqID := b.nextReqID
	b.nextReqID++
	b.mu.Unlock()

	if err := mb.enqueue(Message{Kind: KindRequest, Sender: sender, RequestID: reqID, Data: data}); err != nil {
		return 0, err
	}
	return reqID, nil
}

// Respond enqueues a response to sender. The caller supplies sender
// (caller-side matching, §4.9: "the responder is responsible for
// routing the response back by originally-matched sender").
func (b *Bus) Respond(responder, sender, requestID uint64, data []byte) error {
	mb, ok := b.get(sender)
	if !ok {
		return ErrNoMailbox
	}
	return mb.enqueue(Message{Kind: KindResponse, Sender: responder, RequestID: requestID, Data: data})
}

// Broadcast counts the broadcast against the sender's mailbox, if it has
// one, then fans out to every task in members except the sender (the
// Operations deck supplies members by asking package task's GroupTable
// for the group's members). Members without a mailbox are skipped (§4.9).
func (b *Bus) Broadcast(sender uint64, members []uint64, data []byte) {
	senderMB, ok := b.get(sender)
	if ok {
		senderMB.broadcastsSent.AddAcqRel(1)
	}
	for _, memberID := range members {
		if memberID == sender {
			continue
		}
		mb, ok := b.get(memberID)
		if !ok {
			continue
		}
		_ = mb.enqueue(Message{Kind: KindMessage, Sender: sender, Data: data})
		mb.broadcastsReceived.AddAcqRel(1)
	}
}

// Receive pops the head of taskID's mailbox; non-blocking (§4.9).
func (b *Bus) Receive(taskID uint64) (Message, error) {
	mb, ok := b.get(taskID)
	if !ok {
		return Message{}, ErrNoMailbox
	}
	msg, err := mb.q.Dequeue()
	if err != nil {
		return Message{}, err
	}
	mb.received.AddAcqRel(1)
	return msg, nil
}

// CountersFor returns a snapshot of taskID's mailbox counters.
func (b *Bus) CountersFor(taskID uint64) (Counters, error) {
	mb, ok := b.get(taskID)
	if !ok {
		return Counters{}, ErrNoMailbox
	}
	return Counters{
		Sent:               mb.sent.LoadRelaxed(),
		Received:           mb.received.LoadRelaxed(),
		Dropped:            mb.dropped.LoadRelaxed(),
		BroadcastsSent:     mb.broadcastsSent.LoadRelaxed(),
		BroadcastsReceived: mb.broadcastsReceived.LoadRelaxed(),
	}, nil
}

// Subscribe/Unsubscribe delegate to the subscription table.
func (b *Bus) Subscribe(subscriber, publisher uint64) error {
	return b.subs.subscribe(subscriber, publisher)
}

func (b *Bus) Unsubscribe(subscriber, publisher uint64) error {
	return b.subs.unsubscribe(subscriber, publisher)
}

// SubscribersOf returns every active subscriber of publisher.
func (b *Bus) SubscribersOf(publisher uint64) []uint64 {
	return b.subs.subscribersOf(publisher)
}
