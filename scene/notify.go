package scene

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/sceneflow/types"
)

// NotificationTTL 通知的固定存活时长。到期自动移除，不可配置。
const NotificationTTL = 4000 * time.Millisecond

// Notifier is the self-expiring notification queue. It keeps its own lock so
// expiry timers never contend with scene mutations.
type Notifier struct {
	mu     sync.Mutex
	items  []types.Notification
	timers map[string]*time.Timer
	bus    *EventBus
	logger *zap.Logger

	// schedule is swapped in white-box tests to fire expiry deterministically.
	schedule func(d time.Duration, f func()) *time.Timer
}

func newNotifier(bus *EventBus, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		timers:   make(map[string]*time.Timer),
		bus:      bus,
		logger:   logger.With(zap.String("component", "notifier")),
		schedule: time.AfterFunc,
	}
}

// Add appends a notification and schedules its removal after NotificationTTL.
func (n *Notifier) Add(typ types.NotificationType, message string) types.Notification {
	item := types.Notification{
		ID:        uuid.New().String(),
		Type:      typ,
		Message:   message,
		CreatedAt: time.Now(),
	}

	n.mu.Lock()
	n.items = append(n.items, item)
	n.timers[item.ID] = n.schedule(NotificationTTL, func() {
		n.Remove(item.ID)
	})
	n.mu.Unlock()

	if n.bus != nil {
		n.bus.Publish(Event{Type: EventNotifyAdded, Data: item})
	}
	return item
}

// Remove deletes a notification by id. Safe to call after the expiry timer
// already fired, and safe to call twice: a missing id is a no-op.
func (n *Notifier) Remove(id string) {
	n.mu.Lock()
	if t, ok := n.timers[id]; ok {
		t.Stop()
		delete(n.timers, id)
	}
	found := false
	for i, item := range n.items {
		if item.ID == id {
			n.items = append(n.items[:i], n.items[i+1:]...)
			found = true
			break
		}
	}
	n.mu.Unlock()

	if found && n.bus != nil {
		n.bus.Publish(Event{Type: EventNotifyRemoved, Data: id})
	}
}

// Items returns a copy of the live notifications in insertion order.
func (n *Notifier) Items() []types.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]types.Notification, len(n.items))
	copy(out, n.items)
	return out
}

// Close stops all pending expiry timers. Queued items stay readable.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, t := range n.timers {
		t.Stop()
		delete(n.timers, id)
	}
}
