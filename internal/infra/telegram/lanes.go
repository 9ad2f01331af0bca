package telegram

import (
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// laneDispatcher runs work serially within a lane and concurrently across
// lanes. One lane per chat keeps a user's updates in arrival order while a
// slow dialog never holds up the others.
type laneDispatcher struct {
	mu      sync.Mutex
	queues  map[int64][]func()
	running map[int64]bool
}

func newLaneDispatcher() *laneDispatcher {
	return &laneDispatcher{
		queues:  make(map[int64][]func()),
		running: make(map[int64]bool),
	}
}

func (d *laneDispatcher) Dispatch(key int64, fn func()) {
	d.mu.Lock()
	d.queues[key] = append(d.queues[key], fn)
	if d.running[key] {
		d.mu.Unlock()
		return
	}
	d.running[key] = true
	d.mu.Unlock()

	go d.drain(key)
}

func (d *laneDispatcher) drain(key int64) {
	for {
		d.mu.Lock()
		queue := d.queues[key]
		if len(queue) == 0 {
			delete(d.queues, key)
			delete(d.running, key)
			d.mu.Unlock()
			return
		}
		fn := queue[0]
		d.queues[key] = queue[1:]
		d.mu.Unlock()

		fn()
	}
}

// updateKey picks the serialization lane for an update: everything from one
// chat shares a lane.
func updateKey(update tgbotapi.Update) int64 {
	if msg := update.Message; msg != nil && msg.Chat != nil {
		return msg.Chat.ID
	}
	if cb := update.CallbackQuery; cb != nil {
		if cb.Message != nil && cb.Message.Chat != nil {
			return cb.Message.Chat.ID
		}
		if cb.From != nil {
			return cb.From.ID
		}
	}
	return 0
}
