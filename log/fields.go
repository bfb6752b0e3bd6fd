package log

const (
	NamespaceKey = "adjutant"

	TaskIDKey   = NamespaceKey + ".task.id"
	TaskTypeKey = NamespaceKey + ".task.type"
	ProjectKey  = NamespaceKey + ".project.id"

	ActionKindKey  = NamespaceKey + ".action.kind"
	ActionOrderKey = NamespaceKey + ".action.order"
	ActionValidKey = NamespaceKey + ".action.valid"

	PhaseKey = NamespaceKey + ".phase"

	ApproverKey = NamespaceKey + ".approver"

	TokenKey       = NamespaceKey + ".token"
	NeedTokenKey   = NamespaceKey + ".need_token"
	NotificationID = NamespaceKey + ".notification.id"

	RegionKey   = NamespaceKey + ".region"
	ServiceKey  = NamespaceKey + ".service"
	ResourceKey = NamespaceKey + ".resource"

	TemplateKey = NamespaceKey + ".template"

	AttemptKey  = NamespaceKey + ".attempt"
	DurationKey = NamespaceKey + ".duration_ms"
)
