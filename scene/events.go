package scene

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// EventType 事件类型
type EventType string

const (
	EventAssetAdded     EventType = "asset_added"
	EventAssetUpdated   EventType = "asset_updated"
	EventAssetRemoved   EventType = "asset_removed"
	EventObjectAdded    EventType = "object_added"
	EventObjectUpdated  EventType = "object_updated"
	EventObjectRemoved  EventType = "object_removed"
	EventSceneCleared   EventType = "scene_cleared"
	EventSelection      EventType = "selection_changed"
	EventTransformMode  EventType = "transform_mode_changed"
	EventRenderSettings EventType = "render_settings_updated"
	EventHistoryUndo    EventType = "history_undo"
	EventHistoryRedo    EventType = "history_redo"
	EventCameraActive   EventType = "camera_activated"
	EventCameraFree     EventType = "camera_deactivated"
	EventCameraApplied  EventType = "camera_state_applied"
	EventNotifyAdded    EventType = "notification_added"
	EventNotifyRemoved  EventType = "notification_removed"
)

// wildcardType 订阅所有事件的内部通配键
const wildcardType EventType = "*"

// Event 携带一次状态变更。Data 是变更后的载荷（对象、资产、姿态等），
// 供网关直接序列化推送给编辑器客户端。
type Event struct {
	Type EventType `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data,omitempty"`
}

// Handler 事件处理器
type Handler func(Event)

// subscriptionCounter 生成唯一订阅 ID，避免时间戳碰撞
var subscriptionCounter int64

// EventBus 将存储层的状态变更按发布顺序分发给订阅者。
//
// 与处理器的契约：分发循环按订阅顺序同步调用每个处理器，保证单个订阅者
// 观察到的事件顺序与发布顺序一致（状态同步依赖该顺序）。处理器内部不得
// 阻塞过久，否则会延迟整条分发链。
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType]map[string]Handler
	order    map[EventType][]string
	events   chan Event
	done     chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

// NewEventBus 创建事件总线并启动分发循环。
func NewEventBus(logger *zap.Logger) *EventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	bus := &EventBus{
		handlers: make(map[EventType]map[string]Handler),
		order:    make(map[EventType][]string),
		events:   make(chan Event, 256),
		done:     make(chan struct{}),
		logger:   logger.With(zap.String("component", "scene_events")),
	}
	go bus.dispatch()
	return bus
}

// Publish 发布事件。总线已满或已停止时丢弃（状态同步客户端可随时全量拉取）。
func (b *EventBus) Publish(event Event) {
	if event.At.IsZero() {
		event.At = time.Now()
	}
	select {
	case <-b.done:
	case b.events <- event:
	default:
		b.logger.Warn("event bus saturated, dropping event", zap.String("type", string(event.Type)))
	}
}

// Subscribe 订阅单一事件类型，返回用于退订的订阅 ID。
func (b *EventBus) Subscribe(eventType EventType, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[string]Handler)
	}
	id := fmt.Sprintf("%s-%d", eventType, atomic.AddInt64(&subscriptionCounter, 1))
	b.handlers[eventType][id] = handler
	b.order[eventType] = append(b.order[eventType], id)
	return id
}

// SubscribeAll 订阅全部事件类型（网关广播用）。
func (b *EventBus) SubscribeAll(handler Handler) string {
	return b.Subscribe(wildcardType, handler)
}

// Unsubscribe 退订
func (b *EventBus) Unsubscribe(subscriptionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, handlers := range b.handlers {
		if _, ok := handlers[subscriptionID]; !ok {
			continue
		}
		delete(handlers, subscriptionID)
		ids := b.order[eventType]
		for i, id := range ids {
			if id == subscriptionID {
				b.order[eventType] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
		if len(handlers) == 0 {
			delete(b.handlers, eventType)
			delete(b.order, eventType)
		}
		return
	}
}

func (b *EventBus) dispatch() {
	for {
		select {
		case event := <-b.events:
			for _, h := range b.snapshotHandlers(event.Type) {
				b.invoke(h, event)
			}
		case <-b.done:
			return
		}
	}
}

// snapshotHandlers 返回按订阅顺序排列的处理器：先具体类型，后通配订阅。
func (b *EventBus) snapshotHandlers(t EventType) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Handler, 0, len(b.order[t])+len(b.order[wildcardType]))
	for _, id := range b.order[t] {
		out = append(out, b.handlers[t][id])
	}
	for _, id := range b.order[wildcardType] {
		out = append(out, b.handlers[wildcardType][id])
	}
	return out
}

func (b *EventBus) invoke(h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("type", string(event.Type)),
				zap.Any("recover", r),
			)
		}
	}()
	h(event)
}

// Stop 停止事件总线
func (b *EventBus) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
	})
}
