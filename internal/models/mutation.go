package models

import (
	"encoding/json"
	"time"
)

// MutationType identifies the kind of change a mutation carries.
type MutationType string

const (
	MutationCreate MutationType = "create"
	MutationUpdate MutationType = "update"
	MutationDelete MutationType = "delete"
)

// IsValid reports whether t is a known mutation type.
func (t MutationType) IsValid() bool {
	switch t {
	case MutationCreate, MutationUpdate, MutationDelete:
		return true
	}
	return false
}

// Resource identifies the domain record a mutation targets.
type Resource string

const (
	ResourceEquipment  Resource = "equipment"
	ResourceInspector  Resource = "inspector"
	ResourceJob        Resource = "job"
	ResourceVehicle    Resource = "vehicle"
	ResourceInspection Resource = "inspection"
)

// Resources lists every resource the sync core knows about.
var Resources = []Resource{
	ResourceEquipment,
	ResourceInspector,
	ResourceJob,
	ResourceVehicle,
	ResourceInspection,
}

// IsValid reports whether r is a known resource.
func (r Resource) IsValid() bool {
	for _, known := range Resources {
		if r == known {
			return true
		}
	}
	return false
}

// Mutation represents a pending local change awaiting server application.
// CreatedAt is stored at nanosecond precision and is the FIFO ordering key.
type Mutation struct {
	ID         UUID            `db:"id" json:"id"`
	Type       MutationType    `db:"type" json:"type"`
	Resource   Resource        `db:"resource" json:"resource"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	RetryCount int             `db:"retry_count" json:"retry_count"`
	LastError  string          `db:"last_error" json:"last_error,omitempty"`
	CreatedAt  int64           `db:"created_at" json:"created_at"`
}

// TableName returns the table name for Mutation.
func (Mutation) TableName() string {
	return "mutation_queue"
}

// CreatedAtTime returns CreatedAt as time.Time.
func (m *Mutation) CreatedAtTime() time.Time {
	return unixNanoTime(m.CreatedAt)
}

// Key returns the dispatcher lookup key for this mutation.
func (m *Mutation) Key() string {
	return string(m.Resource) + ":" + string(m.Type)
}

// FailedMutation is a mutation that exhausted its retry budget. It mirrors
// Mutation and stays in the dead-letter store until externally purged or
// replayed.
type FailedMutation struct {
	ID         UUID            `db:"id" json:"id"`
	Type       MutationType    `db:"type" json:"type"`
	Resource   Resource        `db:"resource" json:"resource"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	RetryCount int             `db:"retry_count" json:"retry_count"`
	LastError  string          `db:"last_error" json:"last_error,omitempty"`
	CreatedAt  int64           `db:"created_at" json:"created_at"`
	FailedAt   int64           `db:"failed_at" json:"failed_at"`
}

// TableName returns the table name for FailedMutation.
func (FailedMutation) TableName() string {
	return "failed_mutations"
}

// FailedAtTime returns FailedAt as time.Time.
func (f *FailedMutation) FailedAtTime() time.Time {
	return unixNanoTime(f.FailedAt)
}

// AsMutation converts a dead-letter record back into a live mutation with a
// reset retry budget, used when replaying from the dead-letter store.
func (f *FailedMutation) AsMutation() *Mutation {
	return &Mutation{
		ID:        f.ID,
		Type:      f.Type,
		Resource:  f.Resource,
		Payload:   f.Payload,
		CreatedAt: f.CreatedAt,
	}
}
