package bot

import "sync"

// dispatchQueue serializes event handling per user while letting different
// users run concurrently. Events are executed in arrival order: a second
// event for a user never observes the session mid-mutation from an earlier
// one, even when the first is stuck in a long download.
//
// Enqueue never blocks the caller; each user gets a lazily started drain
// goroutine that exits once its backlog is empty.
type dispatchQueue struct {
	mu    sync.Mutex
	users map[int64]*userQueue
}

type userQueue struct {
	pending []func()
	running bool
}

func newDispatchQueue() *dispatchQueue {
	return &dispatchQueue{users: make(map[int64]*userQueue)}
}

// Enqueue appends fn to userID's backlog and starts a drain goroutine if one
// is not already running for that user.
func (d *dispatchQueue) Enqueue(userID int64, fn func()) {
	d.mu.Lock()
	q, ok := d.users[userID]
	if !ok {
		q = &userQueue{}
		d.users[userID] = q
	}
	q.pending = append(q.pending, fn)
	start := !q.running
	if start {
		q.running = true
	}
	d.mu.Unlock()

	if start {
		go d.drain(q)
	}
}

func (d *dispatchQueue) drain(q *userQueue) {
	for {
		d.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			d.mu.Unlock()
			return
		}
		fn := q.pending[0]
		q.pending = q.pending[1:]
		d.mu.Unlock()

		fn()
	}
}
