package midi

import (
	"container/heap"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// Sender writes one message to a port.
type Sender func(gomidi.Message) error

type noteKey struct {
	channel uint8
	key     uint8
}

// message is a scheduled channel message. seq breaks ties so a note-off
// queued before a note-on at the same time goes out first.
type message struct {
	at  float64
	seq uint64
	on  bool
	key noteKey
	vel uint8
}

func (m message) midi() gomidi.Message {
	if m.on {
		return gomidi.NoteOn(m.key.channel, m.key.key, m.vel)
	}
	return gomidi.NoteOff(m.key.channel, m.key.key)
}

// messageQueue is a min-heap on (at, seq).
type messageQueue []message

func (q messageQueue) Len() int { return len(q) }

func (q messageQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	return q[i].seq < q[j].seq
}

func (q messageQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *messageQueue) Push(x any) { *q = append(*q, x.(message)) }

func (q *messageQueue) Pop() any {
	old := *q
	n := len(old)
	m := old[n-1]
	*q = old[:n-1]
	return m
}

func (q *messageQueue) push(m message) { heap.Push(q, m) }

func (q *messageQueue) pop() message { return heap.Pop(q).(message) }

func (q messageQueue) peek() (message, bool) {
	if len(q) == 0 {
		return message{}, false
	}
	return q[0], true
}
