package model

import "time"

// ExecutionState values describe the lifecycle of one (signal, agent) attempt.
const (
	ExecutionStatePending = "PENDING"
	ExecutionStateSuccess = "SUCCESS"
	ExecutionStateFailed  = "FAILED"
)

// ExecutionRecord tracks one attempt to act on a signal for one agent.
// The partial unique index allows a single non-failed row per pair.
type ExecutionRecord struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	SignalID      uint       `gorm:"not null;uniqueIndex:ux_execution_active,priority:1,where:state <> 'FAILED'" json:"signal_id"`
	AgentID       uint       `gorm:"not null;index;uniqueIndex:ux_execution_active,priority:2,where:state <> 'FAILED'" json:"agent_id"`
	State         string     `gorm:"size:16;not null;index" json:"state"`
	TransactionID *string    `gorm:"size:128" json:"transaction_id,omitempty"`
	ErrorCode     *string    `gorm:"size:64" json:"error_code,omitempty"`
	ErrorMessage  *string    `gorm:"type:text" json:"error_message,omitempty"`
	StartedAt     time.Time  `gorm:"not null" json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (ExecutionRecord) TableName() string {
	return "execution_records"
}
