package usecase

import "strings"

// appendTicket reserves a transcript position for a label that will be
// appended later.
type appendTicket struct {
	epoch uint64
	seq   uint64
}

// transcript holds recognized labels in tick order. It is not safe for
// concurrent use; DetectionLoop guards it with its own mutex.
type transcript struct {
	tokens []string

	epoch   uint64
	issued  uint64
	applied uint64
	held    map[uint64]string
}

func newTranscript() transcript {
	return transcript{held: make(map[uint64]string)}
}

func (t *transcript) reserve() appendTicket {
	t.issued++
	return appendTicket{epoch: t.epoch, seq: t.issued}
}

// commit stores text for ticket and applies every append whose
// predecessors have landed. It returns the number of tokens added.
func (t *transcript) commit(ticket appendTicket, text string) int {
	if ticket.epoch != t.epoch || ticket.seq <= t.applied {
		return 0
	}
	t.held[ticket.seq] = text

	added := 0
	for {
		next, ok := t.held[t.applied+1]
		if !ok {
			return added
		}
		delete(t.held, t.applied+1)
		t.applied++
		if next = strings.TrimSpace(next); next != "" {
			t.tokens = append(t.tokens, next)
			added++
		}
	}
}

// skip releases a reserved position without appending anything.
func (t *transcript) skip(ticket appendTicket) int {
	return t.commit(ticket, "")
}

// clear empties the transcript and invalidates outstanding tickets.
func (t *transcript) clear() {
	t.tokens = nil
	t.epoch++
	t.applied = t.issued
	t.held = make(map[uint64]string)
}

func (t *transcript) Text() string {
	return strings.Join(t.tokens, " ")
}

func (t *transcript) Tokens() []string {
	out := make([]string, len(t.tokens))
	copy(out, t.tokens)
	return out
}
