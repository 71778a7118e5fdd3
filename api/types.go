package api

import (
	"github.com/BaSui01/sceneflow/types"
)

// =============================================================================
// 场景对象请求
// =============================================================================

// AddModelRequest 放置模型对象请求。
// @Description 把一个已生成或导入的模型放入场景并选中
type AddModelRequest struct {
	// 模型文件地址（浏览器侧通常经文件代理转发）
	URL string `json:"url" example:"https://cdn.example.com/chair.glb" binding:"required"`
	// 显示名称，省略时由调用方自拟
	Name string `json:"name,omitempty" example:"chair"`
}

// SelectObjectRequest 选择对象请求。
// @Description 切换当前选中对象；objectId 为空表示清空选择
type SelectObjectRequest struct {
	// 目标对象 id，空串清空选择
	ObjectID string `json:"objectId,omitempty" example:"8d5ef7c2-6a0f-4f4e-9a3c-1f2b3c4d5e6f"`
}

// TransformModeRequest 变换模式请求。
// @Description 切换变换手柄模式
type TransformModeRequest struct {
	// 目标模式：translate / rotate / scale
	Mode string `json:"mode" example:"translate" binding:"required"`
}

// =============================================================================
// 相机请求
// =============================================================================

// CameraStateRequest 自由相机状态写入请求。
// @Description 显式写入自由轨道相机位姿（版本号随写入递增）
type CameraStateRequest struct {
	// 相机位置
	Position types.Vec3 `json:"position"`
	// 轨道注视目标
	Target types.Vec3 `json:"target"`
	// 垂直视场角（度）
	FOV float32 `json:"fov" example:"50"`
}

// OrbitObservationRequest 视口轨道观察上报。
// @Description 视口相机控制器上报的相机移动；低于阈值的漂移会被忽略
type OrbitObservationRequest struct {
	// 相机位置
	Position types.Vec3 `json:"position"`
	// 轨道注视目标
	Target types.Vec3 `json:"target"`
}

// ActiveCameraRequest 激活场景相机请求。
// @Description 进入"透过场景相机观察"模式
type ActiveCameraRequest struct {
	// 场景相机对象 id
	ObjectID string `json:"objectId" example:"8d5ef7c2-6a0f-4f4e-9a3c-1f2b3c4d5e6f" binding:"required"`
}

// =============================================================================
// 资产与生成请求
// =============================================================================

// GenerateRequest 文生模型请求。
// @Description 从文本描述创建 3D 生成任务
type GenerateRequest struct {
	// 模型描述
	Prompt string `json:"prompt" example:"a wooden chair with round legs" binding:"required"`
}

// NotificationRequest 通知创建请求。
// @Description 追加一条自动过期的通知
type NotificationRequest struct {
	// 通知类型：success / error / info，省略时取 info
	Type string `json:"type,omitempty" example:"info"`
	// 通知内容
	Message string `json:"message" example:"model imported" binding:"required"`
}

// BackendPreferenceRequest 后端地址偏好更新请求。
// @Description 更新任务后端基地址，立即生效并持久化
type BackendPreferenceRequest struct {
	// 新的后端基地址
	BaseURL string `json:"baseUrl" example:"http://localhost:8080" binding:"required"`
}

// =============================================================================
// 响应
// =============================================================================

// HistoryStatusResponse 撤销/重做状态。
// @Description 历史栈当前可用性与深度
type HistoryStatusResponse struct {
	// 过去栈非空
	CanUndo bool `json:"canUndo" example:"true"`
	// 未来栈非空
	CanRedo bool `json:"canRedo" example:"false"`
	// 过去栈深度
	Past int `json:"past" example:"3"`
	// 未来栈深度
	Future int `json:"future" example:"0"`
}

// BackendPreferenceResponse 后端地址偏好。
// @Description 当前生效的任务后端基地址
type BackendPreferenceResponse struct {
	// 后端基地址
	BaseURL string `json:"baseUrl" example:"http://localhost:8080"`
}

// ConnectionTestResponse 后端连通性探测结果。
// @Description 探测结果；探测路径 404 视为可达（路由存在性反证）
type ConnectionTestResponse struct {
	// 是否可达
	OK bool `json:"ok" example:"true"`
	// 失败原因，可达时为空
	Message string `json:"message,omitempty" example:""`
}

// EventMessage WebSocket 状态事件。
// @Description 推送给编辑器客户端的状态变更事件
type EventMessage struct {
	// 事件类型（object_added、selection_changed、history_undo…）
	Type string `json:"type" example:"object_added"`
	// 事件负载，形状随事件类型而定
	Data any `json:"data,omitempty"`
}
