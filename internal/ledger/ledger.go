// ABOUTME: Durable approval request ledger with a strict state machine
// ABOUTME: Requests move pending -> approved/denied exactly once, never back

package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/greenlight/internal/storage"
)

// Ledger errors
var (
	ErrNotFound        = errors.New("request not found")
	ErrAlreadyDecided  = errors.New("request already decided")
	ErrInvalidDecision = errors.New("decision must be approved or denied")
	ErrTimedOut        = errors.New("timed out waiting for decision")
)

// Status is the lifecycle state of an approval request.
type Status string

// Request statuses. Transitions are monotonic: pending is the only
// non-terminal state.
const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
)

// pollInterval is how often AwaitDecision re-reads the ledger.
const pollInterval = 2 * time.Second

// Request is a single approval request. Once decided it is immutable;
// DecidedAt is non-nil exactly when Status is not pending.
type Request struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Prompt    string     `json:"prompt"`
	Status    Status     `json:"status"`
	Response  string     `json:"response"`
	CreatedAt time.Time  `json:"createdAt"`
	DecidedAt *time.Time `json:"decidedAt"`
}

// document is the on-disk ledger shape.
type document struct {
	Requests []*Request `json:"requests"`
}

func emptyDocument() *document {
	return &document{Requests: []*Request{}}
}

// Ledger is the durable collection of approval requests. All mutation goes
// through the atomic document layer so concurrent decisions cannot
// interleave into a corrupted file or silently overwrite each other.
type Ledger struct {
	doc    *storage.Document[*document]
	poll   time.Duration
	logger *slog.Logger
}

// New creates a ledger backed by the given file path.
func New(path string) *Ledger {
	return &Ledger{
		doc:    storage.New[*document](path),
		poll:   pollInterval,
		logger: slog.Default().With("component", "ledger"),
	}
}

// Ensure normalizes the ledger file: an absent or shapeless file becomes an
// empty requests document.
func (l *Ledger) Ensure() error {
	_, err := l.doc.Update(nil, func(doc *document) (*document, error) {
		if doc == nil || doc.Requests == nil {
			return emptyDocument(), nil
		}
		return doc, nil
	})
	return err
}

// Create appends a new pending request and returns the full record. The
// identifier combines a coarse timestamp with a random suffix so rapid
// successive calls within the same second cannot collide.
func (l *Ledger) Create(title, prompt string) (*Request, error) {
	id, err := newRequestID()
	if err != nil {
		return nil, err
	}

	request := &Request{
		ID:        id,
		Title:     title,
		Prompt:    prompt,
		Status:    StatusPending,
		Response:  "",
		CreatedAt: utcNow(),
		DecidedAt: nil,
	}

	_, err = l.doc.Update(nil, func(doc *document) (*document, error) {
		if doc == nil || doc.Requests == nil {
			doc = emptyDocument()
		}
		doc.Requests = append(doc.Requests, request)
		return doc, nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("request created", "id", request.ID, "title", title)
	return request, nil
}

// List returns all requests in storage order, oldest first. Newest-first
// display is a presentation concern left to consumers.
func (l *Ledger) List() ([]*Request, error) {
	doc, err := l.doc.Load(nil)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.Requests == nil {
		return []*Request{}, nil
	}
	return doc.Requests, nil
}

// Find returns the request with the given id, or ErrNotFound.
func (l *Ledger) Find(id string) (*Request, error) {
	requests, err := l.List()
	if err != nil {
		return nil, err
	}
	for _, request := range requests {
		if request.ID == id {
			return request, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Decide records the single decision on a pending request. The first
// decision wins; later attempts fail with ErrAlreadyDecided and leave the
// record untouched.
func (l *Ledger) Decide(id string, decision Status, response string) (*Request, error) {
	if decision != StatusApproved && decision != StatusDenied {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
	}

	var decided *Request
	_, err := l.doc.Update(nil, func(doc *document) (*document, error) {
		if doc == nil || doc.Requests == nil {
			return doc, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		for _, request := range doc.Requests {
			if request.ID != id {
				continue
			}
			if request.Status != StatusPending {
				return doc, fmt.Errorf("%w: %s", ErrAlreadyDecided, id)
			}
			now := utcNow()
			request.Status = decision
			request.Response = response
			request.DecidedAt = &now
			decided = request
			return doc, nil
		}
		return doc, fmt.Errorf("%w: %s", ErrNotFound, id)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("request decided", "id", id, "decision", decision)
	return decided, nil
}

// AwaitDecision polls Find until the request leaves pending, the timeout
// elapses, or the context is cancelled. A zero timeout polls indefinitely.
// This is how the external requester blocks for a human decision without
// the ledger needing push notification; it only ever reads.
func (l *Ledger) AwaitDecision(ctx context.Context, id string, timeout time.Duration) (*Request, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		request, err := l.Find(id)
		if err != nil {
			return nil, err
		}
		if request.Status != StatusPending {
			return request, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, fmt.Errorf("%w: %s", ErrTimedOut, id)
		case <-ticker.C:
		}
	}
}

// newRequestID builds an identifier like req_1712345678_9f3ab04c.
func newRequestID() (string, error) {
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("generating request id: %w", err)
	}
	return fmt.Sprintf("req_%d_%s", time.Now().Unix(), hex.EncodeToString(suffix)), nil
}

// utcNow returns the current time in UTC truncated to whole seconds, the
// precision the persisted timestamps carry.
func utcNow() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
