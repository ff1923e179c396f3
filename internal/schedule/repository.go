package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/royalfresh/freshbridge/internal/api/websocket"
	"github.com/royalfresh/freshbridge/internal/types"
	"go.uber.org/zap"
)

// Store is the durable schedule table. Both the Postgres client and the
// in-memory store satisfy it.
type Store interface {
	ListSchedules(ctx context.Context) ([]types.Schedule, error)
	InsertSchedule(ctx context.Context, s types.Schedule) (int64, error)
	UpdateSchedule(ctx context.Context, s types.Schedule) error
	DeleteSchedule(ctx context.Context, id int64) error
	SetScheduleToggle(ctx context.Context, id int64, isOn bool) error
}

// Result is the outcome of a queued mutation. ID carries the assigned id for
// inserts and is zero otherwise.
type Result struct {
	ID  int64
	Err error
}

type mutation struct {
	apply func(ctx context.Context) (int64, error)
	reply chan Result
}

// Repository serializes all schedule mutations through a single worker so
// writes to the same row complete in submission order, and publishes the full
// list to subscribers after every committed change. Callers may ignore the
// returned result channel (fire-and-forget) or wait on it.
type Repository struct {
	logger *zap.Logger
	store  Store
	wsHub  *websocket.Hub

	mutations chan mutation
	done      chan struct{}
	closeOnce sync.Once

	listenersMu sync.RWMutex
	listeners   []chan []types.Schedule
}

func NewRepository(logger *zap.Logger, store Store, wsHub *websocket.Hub) *Repository {
	r := &Repository{
		logger:    logger,
		store:     store,
		wsHub:     wsHub,
		mutations: make(chan mutation, 64),
		done:      make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Repository) run() {
	for {
		select {
		case <-r.done:
			return
		case m := <-r.mutations:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			id, err := m.apply(ctx)
			cancel()

			if err != nil {
				// Store failures surface through the same notice channel
				// as connection failures instead of being dropped.
				r.logger.Error("Schedule store write failed", zap.Error(err))
				if r.wsHub != nil {
					r.wsHub.Broadcast(websocket.NewErrorNoticeMessage("Failed to save schedule changes"))
				}
			} else {
				r.publish()
			}

			m.reply <- Result{ID: id, Err: err}
		}
	}
}

func (r *Repository) enqueue(apply func(ctx context.Context) (int64, error)) <-chan Result {
	reply := make(chan Result, 1)
	select {
	case r.mutations <- mutation{apply: apply, reply: reply}:
	case <-r.done:
		reply <- Result{Err: context.Canceled}
	}
	return reply
}

// List returns the current rows ordered by ascending id.
func (r *Repository) List(ctx context.Context) ([]types.Schedule, error) {
	return r.store.ListSchedules(ctx)
}

// Insert queues an insert. The result carries the assigned id.
func (r *Repository) Insert(s types.Schedule) <-chan Result {
	return r.enqueue(func(ctx context.Context) (int64, error) {
		return r.store.InsertSchedule(ctx, s)
	})
}

// Update queues a full-row replace keyed by id.
func (r *Repository) Update(s types.Schedule) <-chan Result {
	return r.enqueue(func(ctx context.Context) (int64, error) {
		return 0, r.store.UpdateSchedule(ctx, s)
	})
}

// Delete queues a delete by id.
func (r *Repository) Delete(id int64) <-chan Result {
	return r.enqueue(func(ctx context.Context) (int64, error) {
		return 0, r.store.DeleteSchedule(ctx, id)
	})
}

// SetToggle queues an is_on update for a single row.
func (r *Repository) SetToggle(id int64, isOn bool) <-chan Result {
	return r.enqueue(func(ctx context.Context) (int64, error) {
		return 0, r.store.SetScheduleToggle(ctx, id, isOn)
	})
}

func (r *Repository) publish() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	schedules, err := r.store.ListSchedules(ctx)
	if err != nil {
		r.logger.Error("Failed to reload schedules after write", zap.Error(err))
		return
	}

	if r.wsHub != nil {
		r.wsHub.Broadcast(websocket.NewScheduleListMessage(schedules))
	}

	r.listenersMu.RLock()
	defer r.listenersMu.RUnlock()
	for _, listener := range r.listeners {
		select {
		case listener <- schedules:
		default:
			// Listener not keeping up, skip this snapshot
		}
	}
}

// Subscribe registers a listener that receives the full schedule list after
// every committed mutation.
func (r *Repository) Subscribe() chan []types.Schedule {
	ch := make(chan []types.Schedule, 10)

	r.listenersMu.Lock()
	r.listeners = append(r.listeners, ch)
	r.listenersMu.Unlock()

	return ch
}

// Unsubscribe removes and closes a listener channel.
func (r *Repository) Unsubscribe(ch chan []types.Schedule) {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()

	for i, listener := range r.listeners {
		if listener == ch {
			r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
			close(ch)
			break
		}
	}
}

// Close stops the mutation worker. Queued mutations that have not been picked
// up are abandoned.
func (r *Repository) Close() {
	r.closeOnce.Do(func() { close(r.done) })
}
