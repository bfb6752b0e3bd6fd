package tracing

const (
	TaskID   = "task.id"
	TaskType = "task.type"

	ActionKind  = "action.kind"
	ActionOrder = "action.order"

	Phase = "phase"
)
