package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/sceneflow/api"
	"github.com/BaSui01/sceneflow/scene"
	"github.com/BaSui01/sceneflow/types"
)

// =============================================================================
// 📡 事件流 Handler（WebSocket）
// =============================================================================

// 帧类型：首帧全量状态，其后增量事件
const (
	frameState = "state"
	frameEvent = "event"
)

const (
	// 每会话发送队列容量。队列打满说明消费端跟不上广播节奏，
	// 该会话会被断开 — 慢消费者不能拖慢其他会话
	sendBufferSize = 64

	defaultHeartbeat = 30 * time.Second
	writeTimeout     = 10 * time.Second
)

// SessionRecorder 记录事件流会话与推送量，*metrics.Collector 满足它。
type SessionRecorder interface {
	WSSessionOpened()
	WSSessionClosed()
	RecordWSEvent(event string)
}

// EventsHandler 把存储层事件总线桥接到 WebSocket 客户端：连接建立后
// 先推一帧全量状态供客户端水合，之后按发布顺序推送增量事件。
// 每个会话持有独立的发送队列与唯一的写 goroutine（WebSocket 不支持并发写）。
type EventsHandler struct {
	store     *scene.Store
	logger    *zap.Logger
	rec       SessionRecorder
	origins   []string
	heartbeat time.Duration

	mu       sync.Mutex
	sessions map[*wsSession]struct{}
	closed   bool

	subID string
}

// EventsOption 配置 EventsHandler。
type EventsOption func(*EventsHandler)

// WithOriginPatterns 设置允许的 Origin 主机模式（如 "localhost:5173"）。
// 不设置时拒绝跨源握手。
func WithOriginPatterns(patterns []string) EventsOption {
	return func(h *EventsHandler) { h.origins = patterns }
}

// WithSessionRecorder 注入会话指标记录器。
func WithSessionRecorder(rec SessionRecorder) EventsOption {
	return func(h *EventsHandler) { h.rec = rec }
}

// WithHeartbeatInterval 调整心跳间隔，缺省 30 秒。
func WithHeartbeatInterval(d time.Duration) EventsOption {
	return func(h *EventsHandler) {
		if d > 0 {
			h.heartbeat = d
		}
	}
}

// NewEventsHandler 创建事件流处理器并订阅存储事件总线。
// 不再使用时必须调用 Close 退订并断开全部会话。
func NewEventsHandler(store *scene.Store, logger *zap.Logger, opts ...EventsOption) *EventsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &EventsHandler{
		store:     store,
		logger:    logger.With(zap.String("component", "events_handler")),
		heartbeat: defaultHeartbeat,
		sessions:  make(map[*wsSession]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.subID = store.Events().SubscribeAll(h.broadcast)
	return h
}

// wsSession 单个客户端会话。kick 通道关闭表示会话应当结束
// （慢消费或服务端关停）。
type wsSession struct {
	send chan api.EventMessage
	kick chan struct{}
	once sync.Once
}

func (s *wsSession) close() {
	s.once.Do(func() { close(s.kick) })
}

// enqueue 非阻塞入队。队列打满即踢出会话，广播循环永不阻塞。
func (s *wsSession) enqueue(msg api.EventMessage) {
	select {
	case s.send <- msg:
	default:
		s.close()
	}
}

// broadcast 把一条存储事件分发到所有会话队列。由事件总线的分发
// goroutine 调用，必须立即返回。
func (h *EventsHandler) broadcast(ev scene.Event) {
	msg := api.EventMessage{Type: frameEvent, Data: ev}

	h.mu.Lock()
	for s := range h.sessions {
		s.enqueue(msg)
	}
	h.mu.Unlock()

	if h.rec != nil {
		h.rec.RecordWSEvent(string(ev.Type))
	}
}

// HandleEvents 建立 WebSocket 事件流
// @Summary 事件流
// @Description 升级为 WebSocket：首帧 {type:"state"} 携带全量状态，
// @Description 其后 {type:"event"} 按发布顺序携带增量事件。服务端不
// @Description 读取客户端数据帧
// @Tags 事件
// @Success 101 {string} string "协议切换"
// @Security ApiKeyAuth
// @Router /v1/events [get]
func (h *EventsHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		// Accept 已经写好了 HTTP 错误响应
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}

	sess := &wsSession{
		send: make(chan api.EventMessage, sendBufferSize),
		kick: make(chan struct{}),
	}
	if !h.register(sess) {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	if h.rec != nil {
		h.rec.WSSessionOpened()
	}
	h.logger.Info("event stream session opened", zap.String("remote", r.RemoteAddr))

	defer func() {
		h.unregister(sess)
		if h.rec != nil {
			h.rec.WSSessionClosed()
		}
		h.logger.Info("event stream session closed", zap.String("remote", r.RemoteAddr))
	}()

	// 服务端只推不收：丢弃客户端数据帧，拿到随连接关闭而取消的 ctx
	ctx := conn.CloseRead(r.Context())

	// 首帧水合
	if err := writeFrame(ctx, conn, api.EventMessage{Type: frameState, Data: h.store.State()}); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "failed to send initial state")
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-sess.kick:
			_ = conn.Close(websocket.StatusPolicyViolation, "send queue overflow")
			return
		case msg := <-sess.send:
			if err := writeFrame(ctx, conn, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.Ping(ctx); err != nil {
				return
			}
		}
	}
}

// writeFrame 序列化并发送一帧，单帧写超时独立计算。
func writeFrame(ctx context.Context, conn *websocket.Conn, msg api.EventMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, data)
}

func (h *EventsHandler) register(s *wsSession) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.sessions[s] = struct{}{}
	return true
}

func (h *EventsHandler) unregister(s *wsSession) {
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
	s.close()
}

// SessionCount 返回存活会话数。
func (h *EventsHandler) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Close 退订事件总线并踢出全部会话。幂等。
func (h *EventsHandler) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	sessions := make([]*wsSession, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	h.store.Events().Unsubscribe(h.subID)
	for _, s := range sessions {
		s.close()
	}
}
