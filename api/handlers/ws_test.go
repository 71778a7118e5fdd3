package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/sceneflow/api"
	"github.com/BaSui01/sceneflow/scene"
)

type fakeSessionRecorder struct {
	mu     sync.Mutex
	opened int
	closed int
	events []string
}

func (f *fakeSessionRecorder) WSSessionOpened() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened++
}

func (f *fakeSessionRecorder) WSSessionClosed() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
}

func (f *fakeSessionRecorder) RecordWSEvent(event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeSessionRecorder) snapshot() (int, int, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened, f.closed, append([]string(nil), f.events...)
}

// eventFrame 客户端视角的一帧
type eventFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func newEventsTestServer(t *testing.T, opts ...EventsOption) (*httptest.Server, *scene.Store, *EventsHandler) {
	t.Helper()
	store := scene.NewStore()
	t.Cleanup(store.Close)

	h := NewEventsHandler(store, nil, opts...)
	t.Cleanup(h.Close)

	srv := httptest.NewServer(http.HandlerFunc(h.HandleEvents))
	t.Cleanup(srv.Close)
	return srv, store, h
}

func dialEvents(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) eventFrame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var frame eventFrame
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

// readEventOfType 跳过无关事件直到读到目标类型（添加对象还会伴随
// 选择变更等事件，顺序有保证但数量随操作而异）
func readEventOfType(t *testing.T, conn *websocket.Conn, want scene.EventType) scene.Event {
	t.Helper()
	for i := 0; i < 10; i++ {
		frame := readFrame(t, conn)
		require.Equal(t, frameEvent, frame.Type)

		var ev scene.Event
		require.NoError(t, json.Unmarshal(frame.Data, &ev))
		if ev.Type == want {
			return ev
		}
	}
	t.Fatalf("event %s not received within 10 frames", want)
	return scene.Event{}
}

func TestEventsHandler_InitialStateFrame(t *testing.T) {
	srv, store, _ := newEventsTestServer(t)
	store.AddModelToScene("https://cdn.example.com/robot.glb", "robot")

	conn := dialEvents(t, srv)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	frame := readFrame(t, conn)
	require.Equal(t, frameState, frame.Type)

	var state scene.State
	require.NoError(t, json.Unmarshal(frame.Data, &state))
	assert.Len(t, state.SceneObjects, 1)
	assert.Equal(t, "robot", state.SceneObjects[0].Name)
}

func TestEventsHandler_BroadcastsStoreEvents(t *testing.T) {
	srv, store, _ := newEventsTestServer(t)

	conn := dialEvents(t, srv)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	// 吃掉首帧
	require.Equal(t, frameState, readFrame(t, conn).Type)

	obj := store.AddModelToScene("https://cdn.example.com/robot.glb", "robot")
	ev := readEventOfType(t, conn, scene.EventObjectAdded)

	payload, ok := ev.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, obj.ID, payload["id"])
}

func TestEventsHandler_MultipleSessionsReceiveSameEvents(t *testing.T) {
	srv, store, h := newEventsTestServer(t)

	connA := dialEvents(t, srv)
	defer func() { _ = connA.Close(websocket.StatusNormalClosure, "") }()
	connB := dialEvents(t, srv)
	defer func() { _ = connB.Close(websocket.StatusNormalClosure, "") }()

	readFrame(t, connA)
	readFrame(t, connB)

	require.Eventually(t, func() bool { return h.SessionCount() == 2 },
		2*time.Second, 10*time.Millisecond)

	store.Notify("info", "broadcast check")

	evA := readEventOfType(t, connA, scene.EventNotifyAdded)
	evB := readEventOfType(t, connB, scene.EventNotifyAdded)
	assert.Equal(t, evA.Type, evB.Type)
}

func TestEventsHandler_SessionLifecycleMetrics(t *testing.T) {
	rec := &fakeSessionRecorder{}
	srv, store, h := newEventsTestServer(t, WithSessionRecorder(rec))

	conn := dialEvents(t, srv)
	readFrame(t, conn)

	opened, _, _ := rec.snapshot()
	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, h.SessionCount())

	store.AddLightToScene()
	readEventOfType(t, conn, scene.EventObjectAdded)

	_, _, events := rec.snapshot()
	assert.Contains(t, events, string(scene.EventObjectAdded))

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
	require.Eventually(t, func() bool {
		_, closed, _ := rec.snapshot()
		return closed == 1 && h.SessionCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEventsHandler_CloseKicksSessions(t *testing.T) {
	srv, _, h := newEventsTestServer(t)

	conn := dialEvents(t, srv)
	readFrame(t, conn)

	h.Close()

	// 会话被服务端断开，后续读取报错
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	require.Error(t, err)

	require.Eventually(t, func() bool { return h.SessionCount() == 0 },
		2*time.Second, 10*time.Millisecond)

	// Close 之后的事件不再广播，也不会 panic
	h.Close()
}

func TestEventsHandler_MethodNotAllowed(t *testing.T) {
	store := scene.NewStore()
	t.Cleanup(store.Close)
	h := NewEventsHandler(store, nil)
	t.Cleanup(h.Close)

	rec := httptest.NewRecorder()
	h.HandleEvents(rec, httptest.NewRequest(http.MethodPost, "/api/v1/events", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWSSession_EnqueueOverflowKicks(t *testing.T) {
	s := &wsSession{
		send: make(chan api.EventMessage, 2),
		kick: make(chan struct{}),
	}

	s.enqueue(api.EventMessage{Type: frameEvent})
	s.enqueue(api.EventMessage{Type: frameEvent})
	select {
	case <-s.kick:
		t.Fatal("session kicked before queue overflow")
	default:
	}

	// 第三条塞不进去：踢出而不是阻塞
	s.enqueue(api.EventMessage{Type: frameEvent})
	select {
	case <-s.kick:
	default:
		t.Fatal("session not kicked on queue overflow")
	}
}
