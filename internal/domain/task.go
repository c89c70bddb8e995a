package domain

import "time"

// TaskCategory classifies a task.
type TaskCategory string

const (
	TaskRFQReadyForEvaluation TaskCategory = "RFQ_READY_FOR_EVALUATION"
	TaskGoodsReceiptInspect   TaskCategory = "GOODS_RECEIPT_INSPECTION"
	TaskProposalApproval      TaskCategory = "PROPOSAL_APPROVAL"
	TaskProposalDecision      TaskCategory = "PROPOSAL_DECISION"
	TaskMatchApproval         TaskCategory = "MATCH_APPROVAL"
)

// TaskStatus is the lifecycle of a task.
type TaskStatus string

const (
	TaskOpen       TaskStatus = "OPEN"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskCompleted  TaskStatus = "COMPLETED"
)

// OpenTaskStatuses are the statuses of tasks that still need attention.
var OpenTaskStatuses = []TaskStatus{TaskOpen, TaskInProgress}

// TaskPriority orders tasks in a user's inbox.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "LOW"
	PriorityMedium TaskPriority = "MEDIUM"
	PriorityHigh   TaskPriority = "HIGH"
)

// TaskSpec describes a task to create.
type TaskSpec struct {
	UserID   string       `json:"userId"`
	Category TaskCategory `json:"category"`
	Entity   EntityRef    `json:"entity"`
	Title    string       `json:"title"`
	Priority TaskPriority `json:"priority"`
}

// Task is a unit of work addressed to one user.
type Task struct {
	ID          string       `json:"id"`
	UserID      string       `json:"userId"`
	Category    TaskCategory `json:"category"`
	EntityType  EntityType   `json:"entityType"`
	EntityID    string       `json:"entityId"`
	Title       string       `json:"title"`
	Priority    TaskPriority `json:"priority"`
	Status      TaskStatus   `json:"status"`
	Completed   bool         `json:"completed"`
	CompletedBy string       `json:"completedBy,omitempty"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
	Success     bool         `json:"success"`
	CreatedAt   time.Time    `json:"createdAt"`
}
