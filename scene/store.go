package scene

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/sceneflow/types"
)

// Store 是编辑器状态的唯一事实来源：资产列表、场景对象、编辑器瞬态
// 状态（选择、变换模式、激活相机）、渲染配置、自由相机状态与通知队列。
//
// 原始编辑器运行在单线程事件循环上；这里用一把互斥锁保持同样的语义 —
// 每个操作相对其它操作原子执行，异步回调与用户删除之间的竞争通过
// "陈旧 id 静默忽略"策略消化，而不是报错。
//
// Store 不是全局单例：每个实例自带全部状态，测试可以按用例新建。
type Store struct {
	mu     sync.RWMutex
	logger *zap.Logger
	bus    *EventBus

	assets  []types.Asset
	objects []types.SceneObject
	editor  types.EditorState
	render  types.RenderSettings

	hist     *history
	rig      *cameraRig
	notifier *Notifier
}

// Option 配置 Store。
type Option func(*storeOptions)

type storeOptions struct {
	logger       *zap.Logger
	bus          *EventBus
	historyLimit int
}

// WithLogger 注入日志器；缺省为 zap.NewNop()。
func WithLogger(logger *zap.Logger) Option {
	return func(o *storeOptions) { o.logger = logger }
}

// WithEventBus 共享外部事件总线；缺省内部新建。
func WithEventBus(bus *EventBus) Option {
	return func(o *storeOptions) { o.bus = bus }
}

// WithHistoryLimit 限制撤销栈深度；0 表示不限。
func WithHistoryLimit(limit int) Option {
	return func(o *storeOptions) { o.historyLimit = limit }
}

// NewStore 创建一个空场景的状态容器。
func NewStore(opts ...Option) *Store {
	cfg := &storeOptions{}
	for _, opt := range opts {
		opt(cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	bus := cfg.bus
	if bus == nil {
		bus = NewEventBus(logger)
	}

	return &Store{
		logger:   logger.With(zap.String("component", "scene_store")),
		bus:      bus,
		render:   types.DefaultRenderSettings(),
		editor:   types.EditorState{TransformMode: types.ModeTranslate},
		hist:     newHistory(cfg.historyLimit, logger),
		rig:      newCameraRig(logger),
		notifier: newNotifier(bus, logger),
	}
}

// Events 返回状态变更总线，供网关等订阅者使用。
func (s *Store) Events() *EventBus { return s.bus }

// Close 停止通知定时器与事件分发。
func (s *Store) Close() {
	s.notifier.Close()
	s.bus.Stop()
}

func (s *Store) publish(t EventType, data any) {
	s.bus.Publish(Event{Type: t, Data: data})
}

// =============================================================================
// 📦 资产操作（不进入撤销域）
// =============================================================================

// AddAsset 头插资产（最新优先）。空 ID / 零时间 / 空状态由存储补全。
// 资产列表不参与撤销：只有场景构成是可撤销的。
func (s *Store) AddAsset(a types.Asset) types.Asset {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	if a.Status == "" {
		a.Status = types.AssetPending
	}

	s.mu.Lock()
	s.assets = append([]types.Asset{a}, s.assets...)
	s.mu.Unlock()

	s.publish(EventAssetAdded, a)
	return a
}

// UpdateAsset 按 id 合并补丁。id 不存在时静默忽略 — 轮询回调可能落在
// 用户已删除的资产上，这是预期竞争而非错误。
func (s *Store) UpdateAsset(id string, patch types.AssetPatch) {
	s.mu.Lock()
	idx := s.assetIndexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		s.logger.Debug("update for missing asset ignored", zap.String("asset_id", id))
		return
	}
	patch.Apply(&s.assets[idx])
	updated := s.assets[idx]
	s.mu.Unlock()

	s.publish(EventAssetUpdated, updated)
}

// RemoveAsset 按 id 删除；不存在时静默忽略。
func (s *Store) RemoveAsset(id string) {
	s.mu.Lock()
	idx := s.assetIndexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	s.assets = append(s.assets[:idx], s.assets[idx+1:]...)
	s.mu.Unlock()

	s.publish(EventAssetRemoved, id)
}

// Assets 返回资产列表副本（最新优先）。
func (s *Store) Assets() []types.Asset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Asset, len(s.assets))
	copy(out, s.assets)
	return out
}

// Asset 按 id 查找。
func (s *Store) Asset(id string) (types.Asset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.assetIndexLocked(id); idx >= 0 {
		return s.assets[idx], true
	}
	return types.Asset{}, false
}

func (s *Store) assetIndexLocked(id string) int {
	for i := range s.assets {
		if s.assets[i].ID == id {
			return i
		}
	}
	return -1
}

// =============================================================================
// 🧱 场景对象操作（可撤销；先快照后变更）
// =============================================================================

// AddModelToScene 放置一个模型对象并选中它。
func (s *Store) AddModelToScene(url, name string) types.SceneObject {
	return s.addObject(types.NewModelObject(url, name))
}

// AddLightToScene 放置一盏默认灯光并选中它。
func (s *Store) AddLightToScene() types.SceneObject {
	return s.addObject(types.NewLightObject())
}

// AddCameraToScene 放置一台默认场景相机并选中它。
func (s *Store) AddCameraToScene() types.SceneObject {
	return s.addObject(types.NewCameraObject())
}

func (s *Store) addObject(obj types.SceneObject) types.SceneObject {
	s.mu.Lock()
	s.hist.push(s.snapshotLocked())
	s.objects = append(s.objects, obj)
	s.editor.SelectedObjectID = obj.ID
	s.mu.Unlock()

	s.publish(EventObjectAdded, obj.Clone())
	s.publish(EventSelection, obj.ID)
	return obj.Clone()
}

// UpdateSceneObject 浅合并补丁。id 不存在时完全不动（包括历史栈）。
func (s *Store) UpdateSceneObject(id string, patch types.ObjectPatch) {
	s.mu.Lock()
	idx := s.objectIndexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		s.logger.Debug("update for missing object ignored", zap.String("object_id", id))
		return
	}
	s.hist.push(s.snapshotLocked())
	patch.Apply(&s.objects[idx])
	updated := s.objects[idx].Clone()
	s.mu.Unlock()

	s.publish(EventObjectUpdated, updated)
}

// RemoveSceneObject 删除对象；若其被选中则清空选择，若其是激活相机则
// 退回自由相机模式。id 不存在时完全不动。
func (s *Store) RemoveSceneObject(id string) {
	s.mu.Lock()
	idx := s.objectIndexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	s.hist.push(s.snapshotLocked())
	s.objects = append(s.objects[:idx], s.objects[idx+1:]...)

	selectionCleared := false
	if s.editor.SelectedObjectID == id {
		s.editor.SelectedObjectID = ""
		selectionCleared = true
	}
	cameraCleared := false
	var freePose CameraPose
	if s.editor.ActiveCameraID == id {
		s.editor.ActiveCameraID = ""
		cameraCleared = true
		freePose = poseForState(s.rig.state)
	}
	s.mu.Unlock()

	s.publish(EventObjectRemoved, id)
	if selectionCleared {
		s.publish(EventSelection, "")
	}
	if cameraCleared {
		// 激活相机被删除：立即回到自由模式，悬挂引用不进入下一帧
		s.rig.dispatch(freePose)
		s.publish(EventCameraFree, freePose)
	}
}

// UpdateSelectedObjectTransform 合并选中对象的变换补丁。
// 锁定检查先于快照：锁定对象的编辑是彻底的空操作，不产生历史条目。
func (s *Store) UpdateSelectedObjectTransform(patch types.TransformPatch) {
	s.mu.Lock()
	idx := s.objectIndexLocked(s.editor.SelectedObjectID)
	if idx < 0 || s.objects[idx].Locked {
		s.mu.Unlock()
		return
	}
	s.hist.push(s.snapshotLocked())
	patch.Apply(&s.objects[idx].Transform)
	updated := s.objects[idx].Clone()
	s.mu.Unlock()

	s.publish(EventObjectUpdated, updated)
}

// ClearScene 清空场景对象、选择与激活相机。
func (s *Store) ClearScene() {
	s.mu.Lock()
	s.hist.push(s.snapshotLocked())
	s.objects = nil
	s.editor.SelectedObjectID = ""
	cameraCleared := s.editor.ActiveCameraID != ""
	s.editor.ActiveCameraID = ""
	var freePose CameraPose
	if cameraCleared {
		freePose = poseForState(s.rig.state)
	}
	s.mu.Unlock()

	s.publish(EventSceneCleared, nil)
	if cameraCleared {
		s.rig.dispatch(freePose)
		s.publish(EventCameraFree, freePose)
	}
}

// Objects 返回场景对象的深拷贝切片。
func (s *Store) Objects() []types.SceneObject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.SceneObject, len(s.objects))
	for i := range s.objects {
		out[i] = s.objects[i].Clone()
	}
	return out
}

// Object 按 id 查找，返回深拷贝。
func (s *Store) Object(id string) (types.SceneObject, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.objectIndexLocked(id); idx >= 0 {
		return s.objects[idx].Clone(), true
	}
	return types.SceneObject{}, false
}

func (s *Store) objectIndexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.objects {
		if s.objects[i].ID == id {
			return i
		}
	}
	return -1
}

// =============================================================================
// 🎛️ 编辑器瞬态状态（不进入撤销域）
// =============================================================================

// SelectObject 选中对象；id 不存在时清空选择。
func (s *Store) SelectObject(id string) {
	s.mu.Lock()
	if id != "" && s.objectIndexLocked(id) < 0 {
		id = ""
	}
	changed := s.editor.SelectedObjectID != id
	s.editor.SelectedObjectID = id
	s.mu.Unlock()

	if changed {
		s.publish(EventSelection, id)
	}
}

// SelectedObjectID 返回当前选中对象 id（空串表示无选择）。
func (s *Store) SelectedObjectID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.editor.SelectedObjectID
}

// SetTransformMode 切换变换手柄模式。
func (s *Store) SetTransformMode(mode types.TransformMode) {
	s.mu.Lock()
	s.editor.TransformMode = mode
	s.mu.Unlock()
	s.publish(EventTransformMode, mode)
}

// TransformMode 返回当前变换模式。
func (s *Store) TransformMode() types.TransformMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.editor.TransformMode
}

// EditorState 返回瞬态编辑状态副本。
func (s *Store) EditorState() types.EditorState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.editor
}

// =============================================================================
// 🖼️ 渲染配置（可撤销）
// =============================================================================

// RenderSettings 返回当前渲染配置。
func (s *Store) RenderSettings() types.RenderSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.render
}

// UpdateRenderSettings 合并渲染配置补丁（与场景变更同属撤销域）。
func (s *Store) UpdateRenderSettings(patch types.RenderSettingsPatch) {
	s.mu.Lock()
	s.hist.push(s.snapshotLocked())
	patch.Apply(&s.render)
	updated := s.render
	s.mu.Unlock()

	s.publish(EventRenderSettings, updated)
}

// =============================================================================
// ⏪ 撤销 / 重做
// =============================================================================

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		SceneObjects:     s.objects,
		RenderSettings:   s.render,
		SelectedObjectID: s.editor.SelectedObjectID,
	}
}

// applySnapshotLocked 以快照替换当前可撤销状态，并维护 EditorState 的
// 引用一致性：激活相机在恢复后的场景中不存在（或不再是相机）时退回
// 自由模式。返回需要在解锁后下发的自由位姿。
func (s *Store) applySnapshotLocked(snap Snapshot) (freePose CameraPose, cameraCleared bool) {
	s.objects = snap.SceneObjects
	s.render = snap.RenderSettings
	s.editor.SelectedObjectID = snap.SelectedObjectID
	if s.objectIndexLocked(s.editor.SelectedObjectID) < 0 {
		s.editor.SelectedObjectID = ""
	}
	if id := s.editor.ActiveCameraID; id != "" {
		idx := s.objectIndexLocked(id)
		if idx < 0 || s.objects[idx].Kind != types.KindCamera {
			s.editor.ActiveCameraID = ""
			return poseForState(s.rig.state), true
		}
	}
	return CameraPose{}, false
}

// Undo 撤销最近一次场景变更；历史为空时是空操作。
func (s *Store) Undo() {
	s.mu.Lock()
	restored, ok := s.hist.undo(s.snapshotLocked())
	if !ok {
		s.mu.Unlock()
		return
	}
	freePose, cameraCleared := s.applySnapshotLocked(restored)
	payload := cloneSnapshot(restored)
	s.mu.Unlock()

	s.publish(EventHistoryUndo, payload)
	if cameraCleared {
		s.rig.dispatch(freePose)
		s.publish(EventCameraFree, freePose)
	}
}

// Redo 重做最近一次撤销；未处于撤销链上时是空操作。
func (s *Store) Redo() {
	s.mu.Lock()
	restored, ok := s.hist.redo(s.snapshotLocked())
	if !ok {
		s.mu.Unlock()
		return
	}
	freePose, cameraCleared := s.applySnapshotLocked(restored)
	payload := cloneSnapshot(restored)
	s.mu.Unlock()

	s.publish(EventHistoryRedo, payload)
	if cameraCleared {
		s.rig.dispatch(freePose)
		s.publish(EventCameraFree, freePose)
	}
}

// CanUndo 报告过去栈是否非空。
func (s *Store) CanUndo() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	past, _ := s.hist.lengths()
	return past > 0
}

// CanRedo 报告未来栈是否非空。
func (s *Store) CanRedo() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, future := s.hist.lengths()
	return future > 0
}

// HistoryLengths 返回（过去栈长度，未来栈长度）。
func (s *Store) HistoryLengths() (past, future int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hist.lengths()
}

// =============================================================================
// 🎥 相机协调
// =============================================================================

// OnCameraApply 注册 store→live-camera 指令的接收端（视口适配层）。
// 回调可能在持有重入防护期间同步回调 ObserveOrbit，回声会被丢弃。
func (s *Store) OnCameraApply(fn ApplyFunc) {
	s.mu.Lock()
	s.rig.onApply = fn
	s.mu.Unlock()
}

// CameraState 返回自由轨道相机状态。
func (s *Store) CameraState() types.CameraState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rig.state
}

// SetCameraState 显式写入自由相机状态并递增版本号。处于自由模式时同时
// 向视口下发应用指令；对象观察模式下仅更新存储（此时自由相机被挂起）。
func (s *Store) SetCameraState(position, target types.Vec3, fov float32) {
	s.mu.Lock()
	s.rig.state.Position = position
	s.rig.state.Target = target
	s.rig.state.FOV = fov
	s.rig.state.Version++
	free := s.editor.ActiveCameraID == ""
	pose := poseForState(s.rig.state)
	state := s.rig.state
	s.mu.Unlock()

	if free {
		s.rig.dispatch(pose)
	}
	s.publish(EventCameraApplied, state)
}

// ActiveCameraID 返回当前被观察的场景相机 id（空串表示自由模式）。
func (s *Store) ActiveCameraID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.editor.ActiveCameraID
}

// SetActiveCamera 进入"透过场景相机观察"模式。live 相机从对象存储的
// 变换初始化（绝不能停留在先前的自由位姿），轨道目标点取
// position + forward × 10。id 不存在或不是相机时静默忽略。
func (s *Store) SetActiveCamera(id string) {
	s.mu.Lock()
	idx := s.objectIndexLocked(id)
	if idx < 0 || s.objects[idx].Kind != types.KindCamera {
		s.mu.Unlock()
		return
	}
	s.editor.ActiveCameraID = id
	pose := poseForObject(s.objects[idx])
	s.mu.Unlock()

	s.rig.dispatch(pose)
	s.publish(EventCameraActive, id)
}

// ClearActiveCamera 退出对象观察模式，把挂起的自由相机状态重新应用到
// live 相机（版本号递增以示显式写入）。
func (s *Store) ClearActiveCamera() {
	s.mu.Lock()
	if s.editor.ActiveCameraID == "" {
		s.mu.Unlock()
		return
	}
	s.editor.ActiveCameraID = ""
	s.rig.state.Version++
	pose := poseForState(s.rig.state)
	s.mu.Unlock()

	s.rig.dispatch(pose)
	s.publish(EventCameraFree, pose)
}

// ObserveOrbit 接收视口上报的轨道相机移动（camera→store 方向）。
//
// 两道防线防止反馈振荡：store→camera 写入期间的重入防护直接丢弃回声；
// 位置增量低于 positionEpsilon 的观察被视为漂移而忽略。自由模式写入
// CameraState（不递增版本），对象观察模式写入该相机对象的变换（不产生
// 撤销条目 — 连续同步与 CameraState 一样位于撤销域之外）。
func (s *Store) ObserveOrbit(position, target types.Vec3) {
	if s.rig.guardHeld() {
		return
	}

	s.mu.Lock()
	if id := s.editor.ActiveCameraID; id != "" {
		idx := s.objectIndexLocked(id)
		if idx < 0 {
			// 同一更新周期内刚被删除：容忍并丢弃，不崩溃
			s.mu.Unlock()
			return
		}
		current := poseForObject(s.objects[idx])
		if !significantMove(current.Position, position, current.Target, target) {
			s.mu.Unlock()
			return
		}
		s.objects[idx].Transform.Position = position
		s.objects[idx].Transform.Rotation = lookRotation(position, target)
		updated := s.objects[idx].Clone()
		s.mu.Unlock()

		s.publish(EventObjectUpdated, updated)
		return
	}

	if !significantMove(s.rig.state.Position, position, s.rig.state.Target, target) {
		s.mu.Unlock()
		return
	}
	s.rig.state.Position = position
	s.rig.state.Target = target
	s.mu.Unlock()
}

// =============================================================================
// 🔔 通知
// =============================================================================

// Notify 追加一条自动过期的通知。
func (s *Store) Notify(typ types.NotificationType, message string) types.Notification {
	return s.notifier.Add(typ, message)
}

// DismissNotification 立即移除通知；定时器已触发过时安全无害。
func (s *Store) DismissNotification(id string) {
	s.notifier.Remove(id)
}

// Notifications 返回存活通知副本。
func (s *Store) Notifications() []types.Notification {
	return s.notifier.Items()
}

// =============================================================================
// 🧾 聚合视图
// =============================================================================

// State 是推送给编辑器客户端的全量状态视图。
type State struct {
	Assets         []types.Asset        `json:"assets"`
	SceneObjects   []types.SceneObject  `json:"sceneObjects"`
	Editor         types.EditorState    `json:"editor"`
	Camera         types.CameraState    `json:"camera"`
	RenderSettings types.RenderSettings `json:"renderSettings"`
	Notifications  []types.Notification `json:"notifications"`
}

// State 聚合当前全量状态（全部为副本，调用方可自由持有）。
func (s *Store) State() State {
	s.mu.RLock()
	assets := make([]types.Asset, len(s.assets))
	copy(assets, s.assets)
	objects := make([]types.SceneObject, len(s.objects))
	for i := range s.objects {
		objects[i] = s.objects[i].Clone()
	}
	st := State{
		Assets:         assets,
		SceneObjects:   objects,
		Editor:         s.editor,
		Camera:         s.rig.state,
		RenderSettings: s.render,
	}
	s.mu.RUnlock()

	st.Notifications = s.notifier.Items()
	return st
}
