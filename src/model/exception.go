package model

import "time"

// Exception is an internal failure persisted for auditing and debugging.
type Exception struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// Where the error happened
	Service string `gorm:"size:100;index" json:"service"` // e.g. "signal_coordinator"
	Module  string `gorm:"size:100;index" json:"module"`  // e.g. "execution"
	Method  string `gorm:"size:100" json:"method"`        // e.g. "Begin"

	Kind    string `gorm:"size:40;index" json:"kind"`
	Code    string `gorm:"size:64;index" json:"code"`
	Message string `gorm:"type:text" json:"message"`
	Stack   string `gorm:"type:text" json:"stack"`

	// debug | info | warn | error | fatal
	Level string `gorm:"size:20;index" json:"level"`

	Context string `gorm:"type:jsonb" json:"context,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
