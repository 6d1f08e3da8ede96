package task

import "context"

// context key类型，用于类型安全的context.Value访问
type contextKey string

const (
	// InstanceIDKey 实例ID在context中的key
	InstanceIDKey contextKey = "task.instance.id"
	// TaskNameKey 任务名称在context中的key
	TaskNameKey contextKey = "task.name"
	// ModelIDKey 工作流模型ID在context中的key
	ModelIDKey contextKey = "workflow.model.id"
)

// WithInstanceID 将实例ID添加到context中（对外导出）
func WithInstanceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, InstanceIDKey, id)
}

// GetInstanceID 从context中获取实例ID（对外导出）
func GetInstanceID(ctx context.Context) string {
	if id, ok := ctx.Value(InstanceIDKey).(string); ok {
		return id
	}
	return ""
}

// WithTaskName 将任务名称添加到context中（对外导出）
func WithTaskName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, TaskNameKey, name)
}

// GetTaskName 从context中获取任务名称（对外导出）
func GetTaskName(ctx context.Context) string {
	if name, ok := ctx.Value(TaskNameKey).(string); ok {
		return name
	}
	return ""
}

// WithModelID 将模型ID添加到context中（对外导出）
func WithModelID(ctx context.Context, modelID string) context.Context {
	return context.WithValue(ctx, ModelIDKey, modelID)
}

// GetModelID 从context中获取模型ID（对外导出）
func GetModelID(ctx context.Context) string {
	if id, ok := ctx.Value(ModelIDKey).(string); ok {
		return id
	}
	return ""
}
