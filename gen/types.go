package gen

import "encoding/json"

// Status 是任务的规范状态。厂商侧的自由格式字符串经 NormalizeStatus
// 收敛到这四个值。
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Terminal 报告状态是否终结（完成或失败），轮询应当停止。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// envelope 是任务 API 的统一响应包装。code≠0 表示应用级错误，
// message 携带厂商侧原因。
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type uploadData struct {
	ImageToken string `json:"image_token"`
}

type createData struct {
	TaskID string `json:"task_id"`
}

// taskFile 描述 image_to_model 任务的输入图：type 是文件扩展名，
// file_token 来自先前的上传。
type taskFile struct {
	Type      string `json:"type"`
	FileToken string `json:"file_token"`
}

type taskRequest struct {
	Type   string    `json:"type"`
	Prompt string    `json:"prompt,omitempty"`
	File   *taskFile `json:"file,omitempty"`
}

// TaskOutput 是任务产物的模型链接集合，厂商可能只填其中一部分。
type TaskOutput struct {
	PBRModel  string `json:"pbr_model,omitempty"`
	BaseModel string `json:"base_model,omitempty"`
	Model     string `json:"model,omitempty"`
	GLB       string `json:"glb,omitempty"`
}

// BestModelURL 按 pbr_model > base_model > model > glb 的优先级挑选
// 模型链接；全空返回空串。
func (o TaskOutput) BestModelURL() string {
	for _, url := range []string{o.PBRModel, o.BaseModel, o.Model, o.GLB} {
		if url != "" {
			return url
		}
	}
	return ""
}

// TaskResult 是一次状态查询的解码结果。Status 已归一化；RawStatus 保留
// 厂商原文供诊断。
type TaskResult struct {
	TaskID    string     `json:"task_id"`
	Status    Status     `json:"status"`
	RawStatus string     `json:"raw_status,omitempty"`
	Progress  float64    `json:"progress,omitempty"`
	Output    TaskOutput `json:"output,omitempty"`
}

// taskData 是 GET /task/{id} 的 data 载荷。
type taskData struct {
	TaskID   string     `json:"task_id,omitempty"`
	Status   string     `json:"status"`
	Progress float64    `json:"progress,omitempty"`
	Output   TaskOutput `json:"output,omitempty"`
}

// TaskUpdate 是轮询器推给回调的增量：终态时 Err/ModelURL 至多一个非空。
type TaskUpdate struct {
	TaskID   string
	Status   Status
	Progress float64
	ModelURL string
	ErrorMsg string
}
