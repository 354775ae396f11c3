package carrier

import (
	"context"
	"sync"

	"poolgate.io/pgw/internal/types"

	"github.com/google/uuid"
)

// Loopback is an in-process carrier used for development and tests. It
// charges a flat fee per message and remembers everything it accepted.
// SendErr and QuoteErr inject failures.
type Loopback struct {
	mu       sync.Mutex
	Fee      uint64
	QuoteErr error
	SendErr  error
	sent     []Sent
}

// Sent is one accepted loopback message.
type Sent struct {
	MessageID   string
	Destination types.Destination
	Message     Message
}

// NewLoopback creates a loopback carrier with a flat fee.
func NewLoopback(fee uint64) *Loopback {
	return &Loopback{Fee: fee}
}

// QuoteFee implements Carrier.
func (lb *Loopback) QuoteFee(ctx context.Context, dest types.Destination, msg *Message) (uint64, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	if lb.QuoteErr != nil {
		return 0, lb.QuoteErr
	}
	return lb.Fee, nil
}

// Send implements Carrier.
func (lb *Loopback) Send(ctx context.Context, dest types.Destination, msg *Message) (string, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	if lb.SendErr != nil {
		return "", lb.SendErr
	}
	id := uuid.New().String()
	lb.sent = append(lb.sent, Sent{MessageID: id, Destination: dest, Message: *msg})
	return id, nil
}

// SentMessages returns a copy of every accepted message in order.
func (lb *Loopback) SentMessages() []Sent {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	out := make([]Sent, len(lb.sent))
	copy(out, lb.sent)
	return out
}
