package metrickeys

const (
	Prefix = "adjutant."

	// Tasks
	TaskCreated   = Prefix + "task.created"
	TaskApproved  = Prefix + "task.approved"
	TaskCompleted = Prefix + "task.completed"
	TaskCancelled = Prefix + "task.cancelled"

	PhaseDuration = Prefix + "task.phase.duration"
	PhaseFailed   = Prefix + "task.phase.failed"

	// Actions
	ActionInvalid = Prefix + "action.invalid"

	// Tokens
	TokenIssued  = Prefix + "token.issued"
	TokenExpired = Prefix + "token.expired"

	// Quota
	QuotaApplied  = Prefix + "quota.applied"
	QuotaRejected = Prefix + "quota.rejected"

	// Identity lookups
	IdentityCacheSize     = Prefix + "identity.cache.size"
	IdentityCacheEviction = Prefix + "identity.cache.eviction"

	NotificationCreated = Prefix + "notification.created"
	MessageSent         = Prefix + "message.sent"
)

// Tag names
const (
	// Store being used
	Store = "store"

	// Reason for evicting an entry from the identity cache
	EvictionReason = "reason"

	TaskType   = "task_type"
	ActionKind = "action"
	Phase      = "phase"
	Service    = "service"
	Template   = "template"
)
