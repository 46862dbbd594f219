package chat

import (
	"errors"

	"github.com/eldtechnologies/buddychat/internal/models"
)

// ThreadStatus is the load state of the open thread.
type ThreadStatus string

const (
	ThreadEmpty   ThreadStatus = "empty"
	ThreadLoading ThreadStatus = "loading"
	ThreadReady   ThreadStatus = "ready"
)

var (
	ErrNoThread     = errors.New("no thread is open")
	ErrExhausted    = errors.New("thread history exhausted")
	ErrPageInFlight = errors.New("a page fetch is already in progress")
)

// PageRequest identifies one outstanding history fetch.
type PageRequest struct {
	CounterpartID string
	Offset        int
	Limit         int
	generation    uint64
}

// Thread buffers the messages of one conversation, oldest first.
//
// Thread is not safe for concurrent use; Engine serializes access.
type Thread struct {
	counterpartID string
	messages      []models.Message
	cursor        models.Cursor
	status        ThreadStatus
	generation    uint64
}

// NewThread returns an empty thread that fetches pageSize messages per page.
func NewThread(pageSize int) *Thread {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &Thread{
		status: ThreadEmpty,
		cursor: models.Cursor{PageSize: pageSize},
	}
}

// Open resets the buffer for counterpartID and returns the first page request.
func (t *Thread) Open(counterpartID string) PageRequest {
	t.generation++
	t.counterpartID = counterpartID
	t.messages = nil
	t.cursor = models.Cursor{PageSize: t.cursor.PageSize}
	t.status = ThreadLoading
	return t.request()
}

// Close forgets the current thread. Outstanding page completions are discarded.
func (t *Thread) Close() {
	t.generation++
	t.counterpartID = ""
	t.messages = nil
	t.cursor = models.Cursor{PageSize: t.cursor.PageSize}
	t.status = ThreadEmpty
}

// BeginPage marks a history fetch as outstanding and returns its request.
func (t *Thread) BeginPage() (PageRequest, error) {
	switch {
	case t.counterpartID == "":
		return PageRequest{}, ErrNoThread
	case t.status == ThreadLoading:
		return PageRequest{}, ErrPageInFlight
	case t.cursor.Exhausted:
		return PageRequest{}, ErrExhausted
	}
	t.status = ThreadLoading
	return t.request(), nil
}

// CompletePage prepends a newest-first page fetched for req. It reports false
// when req belongs to a thread that has since been reopened or closed.
func (t *Thread) CompletePage(req PageRequest, page []models.Message) bool {
	if req.generation != t.generation {
		return false
	}

	older := make([]models.Message, len(page), len(page)+len(t.messages))
	for i, m := range page {
		older[len(page)-1-i] = m
	}
	t.messages = append(older, t.messages...)

	t.cursor.Offset += len(page)
	if len(page) < t.cursor.PageSize {
		t.cursor.Exhausted = true
	}
	t.status = ThreadReady
	return true
}

// FailPage ends an outstanding fetch without touching the cursor. A thread
// whose first page failed goes back to Empty.
func (t *Thread) FailPage(req PageRequest) bool {
	if req.generation != t.generation {
		return false
	}
	t.status = ThreadReady
	if t.cursor.Offset == 0 && len(t.messages) == 0 {
		t.status = ThreadEmpty
	}
	return true
}

// AppendLive appends msg to the tail of the buffer.
func (t *Thread) AppendLive(msg models.Message) {
	t.messages = append(t.messages, msg)
}

// MarkFailed flags the locally sent message with clientID as not delivered.
func (t *Thread) MarkFailed(clientID string) {
	for i := len(t.messages) - 1; i >= 0; i-- {
		if t.messages[i].ClientID == clientID {
			t.messages[i].Failed = true
			return
		}
	}
}

// CounterpartID returns the open counterpart, or empty when closed.
func (t *Thread) CounterpartID() string { return t.counterpartID }

// Status returns the load state.
func (t *Thread) Status() ThreadStatus { return t.status }

// Cursor returns the pagination cursor.
func (t *Thread) Cursor() models.Cursor { return t.cursor }

// Messages returns a copy of the buffer, oldest first.
func (t *Thread) Messages() []models.Message {
	return append([]models.Message(nil), t.messages...)
}

func (t *Thread) request() PageRequest {
	return PageRequest{
		CounterpartID: t.counterpartID,
		Offset:        t.cursor.Offset,
		Limit:         t.cursor.PageSize,
		generation:    t.generation,
	}
}
