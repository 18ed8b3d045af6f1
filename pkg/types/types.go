/*
SPDX-FileCopyrightText: 2026 no8s contributors
SPDX-License-Identifier: Apache-2.0
*/

package types

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// Phase is the coarse state of a resource.
// Can be one of 'pending', 'reconciling', 'ready', 'failed', 'deleting'.
type Phase string

const (
	// Resource phase 'pending'.
	PhasePending Phase = "pending"
	// Resource phase 'reconciling'.
	PhaseReconciling Phase = "reconciling"
	// Resource phase 'ready'.
	PhaseReady Phase = "ready"
	// Resource phase 'failed'.
	PhaseFailed Phase = "failed"
	// Resource phase 'deleting'.
	PhaseDeleting Phase = "deleting"
)

// Condition status. Can be one of 'True', 'False', 'Unknown'.
type ConditionStatus string

const (
	// Condition status 'True'.
	ConditionTrue ConditionStatus = "True"
	// Condition status 'False'.
	ConditionFalse ConditionStatus = "False"
	// Condition status 'Unknown'.
	ConditionUnknown ConditionStatus = "Unknown"
)

// Condition type. Reconcilers may set additional domain-specific types.
type ConditionType string

const (
	// Condition type representing the 'Ready' condition.
	ConditionTypeReady ConditionType = "Ready"
	// Condition type representing the 'Reconciling' condition.
	ConditionTypeReconciling ConditionType = "Reconciling"
	// Condition type representing the 'Degraded' condition.
	ConditionTypeDegraded ConditionType = "Degraded"
)

// Resource status Condition.
type Condition struct {
	Type               ConditionType   `json:"type"`
	Status             ConditionStatus `json:"status"`
	Reason             string          `json:"reason,omitempty"`
	Message            string          `json:"message,omitempty"`
	LastTransitionTime time.Time       `json:"lastTransitionTime"`
	ObservedGeneration int64           `json:"observedGeneration"`
}

// Conditions is an ordered condition sequence, unique by type.
// Stored as a jsonb column.
type Conditions []Condition

func (c Conditions) Value() (driver.Value, error) {
	if c == nil {
		c = Conditions{}
	}
	return json.Marshal(c)
}

func (c *Conditions) Scan(src any) error {
	return scanJSON(src, c)
}

// Document is a free-form JSON object (spec, outputs, schema, metadata).
// Stored as a jsonb column.
type Document map[string]any

func (d Document) Value() (driver.Value, error) {
	if d == nil {
		d = Document{}
	}
	return json.Marshal(d)
}

func (d *Document) Scan(src any) error {
	return scanJSON(src, d)
}

// DeepCopy returns a structural copy of the document.
func (d Document) DeepCopy() Document {
	if d == nil {
		return nil
	}
	raw, err := json.Marshal(d)
	if err != nil {
		// documents originate from JSON; this cannot happen
		panic(err)
	}
	var out Document
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	return out
}

// StringList is a JSON string array column (finalizers, webhook operations).
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	return json.Marshal(l)
}

func (l *StringList) Scan(src any) error {
	return scanJSON(src, l)
}

func scanJSON(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return errors.Errorf("cannot scan %T into JSON value", src)
	}
}

// ResourceType is an immutable (name, version) schema declaration against
// which resource specs are validated.
type ResourceType struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Version     string    `json:"version" db:"version"`
	Schema      Document  `json:"schema" db:"schema"`
	Description string    `json:"description,omitempty" db:"description"`
	Status      string    `json:"status" db:"status"`
	Metadata    Document  `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

const (
	// ResourceType status 'active'.
	ResourceTypeActive = "active"
	// ResourceType status 'deprecated'.
	ResourceTypeDeprecated = "deprecated"
)

// Resource is an instance of a ResourceType with a user-declared desired
// state (spec) and the state observed by its reconciler.
type Resource struct {
	ID                 int64      `json:"id" db:"id"`
	Name               string     `json:"name" db:"name"`
	TypeName           string     `json:"resource_type_name" db:"resource_type_name"`
	TypeVersion        string     `json:"resource_type_version" db:"resource_type_version"`
	Spec               Document   `json:"spec" db:"spec"`
	Outputs            Document   `json:"outputs,omitempty" db:"outputs"`
	Finalizers         StringList `json:"finalizers" db:"finalizers"`
	Status             Phase      `json:"status" db:"status"`
	StatusMessage      string     `json:"status_message,omitempty" db:"status_message"`
	Generation         int64      `json:"generation" db:"generation"`
	ObservedGeneration int64      `json:"observed_generation" db:"observed_generation"`
	SpecHash           string     `json:"spec_hash" db:"spec_hash"`
	RetryCount         int        `json:"retry_count" db:"retry_count"`
	LastReconcileTime  *time.Time `json:"last_reconcile_time,omitempty" db:"last_reconcile_time"`
	NextReconcileTime  *time.Time `json:"next_reconcile_time,omitempty" db:"next_reconcile_time"`
	Conditions         Conditions `json:"conditions" db:"conditions"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt          *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// InDeletion reports whether the resource has been soft-deleted.
func (r *Resource) InDeletion() bool {
	return r.DeletedAt != nil
}

// GetCondition returns the condition of the given type, or nil.
func (r *Resource) GetCondition(t ConditionType) *Condition {
	for i := range r.Conditions {
		if r.Conditions[i].Type == t {
			return &r.Conditions[i]
		}
	}
	return nil
}

// HasFinalizer reports whether the given finalizer is present.
func (r *Resource) HasFinalizer(name string) bool {
	for _, f := range r.Finalizers {
		if f == name {
			return true
		}
	}
	return false
}

// TriggerReason records why a reconciliation attempt was started.
type TriggerReason string

const (
	TriggerSpecChange TriggerReason = "spec_change"
	TriggerDrift      TriggerReason = "drift"
	TriggerManual     TriggerReason = "manual"
	TriggerRetry      TriggerReason = "retry"
	TriggerDelete     TriggerReason = "delete"
)

// HistoryEntry is an append-only record of one reconciliation attempt.
type HistoryEntry struct {
	ID               int64         `json:"id" db:"id"`
	ResourceID       int64         `json:"resource_id" db:"resource_id"`
	Generation       int64         `json:"generation" db:"generation"`
	Success          bool          `json:"success" db:"success"`
	Phase            string        `json:"phase" db:"phase"`
	PlanOutput       string        `json:"plan_output,omitempty" db:"plan_output"`
	ApplyOutput      string        `json:"apply_output,omitempty" db:"apply_output"`
	ErrorMessage     string        `json:"error_message,omitempty" db:"error_message"`
	ResourcesCreated int           `json:"resources_created" db:"resources_created"`
	ResourcesUpdated int           `json:"resources_updated" db:"resources_updated"`
	ResourcesDeleted int           `json:"resources_deleted" db:"resources_deleted"`
	DurationSeconds  float64       `json:"duration_seconds" db:"duration_seconds"`
	TriggerReason    TriggerReason `json:"trigger_reason" db:"trigger_reason"`
	DriftDetected    bool          `json:"drift_detected" db:"drift_detected"`
	ReconcileTime    time.Time     `json:"reconcile_time" db:"reconcile_time"`
}

// Operation is a write operation subject to admission.
type Operation string

const (
	OperationCreate Operation = "CREATE"
	OperationUpdate Operation = "UPDATE"
	OperationDelete Operation = "DELETE"
)

// Webhook type. Can be one of 'mutating', 'validating'.
type WebhookType string

const (
	WebhookMutating   WebhookType = "mutating"
	WebhookValidating WebhookType = "validating"
)

// FailurePolicy controls how webhook transport failures are handled.
type FailurePolicy string

const (
	FailurePolicyFail   FailurePolicy = "Fail"
	FailurePolicyIgnore FailurePolicy = "Ignore"
)

// AdmissionWebhook is an external HTTP callback that inspects or mutates a
// resource before persistence.
type AdmissionWebhook struct {
	ID             int64         `json:"id" db:"id"`
	Name           string        `json:"name" db:"name"`
	TypeName       *string       `json:"resource_type_name,omitempty" db:"resource_type_name"`
	TypeVersion    *string       `json:"resource_type_version,omitempty" db:"resource_type_version"`
	URL            string        `json:"webhook_url" db:"webhook_url"`
	WebhookType    WebhookType   `json:"webhook_type" db:"webhook_type"`
	Operations     StringList    `json:"operations" db:"operations"`
	TimeoutSeconds int           `json:"timeout_seconds" db:"timeout_seconds"`
	FailurePolicy  FailurePolicy `json:"failure_policy" db:"failure_policy"`
	Ordering       int           `json:"ordering" db:"ordering"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
}

// EventType classifies resource change events.
type EventType string

const (
	EventCreated    EventType = "CREATED"
	EventModified   EventType = "MODIFIED"
	EventDeleted    EventType = "DELETED"
	EventReconciled EventType = "RECONCILED"
)

// Event is emitted on the event bus when a resource changes.
type Event struct {
	Type        EventType `json:"event_type"`
	ResourceID  int64     `json:"resource_id"`
	Name        string    `json:"resource_name"`
	TypeName    string    `json:"resource_type_name"`
	TypeVersion string    `json:"resource_type_version"`
	Resource    *Resource `json:"resource_data"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewEvent builds an event carrying the given resource document.
func NewEvent(t EventType, r *Resource) Event {
	return Event{
		Type:        t,
		ResourceID:  r.ID,
		Name:        r.Name,
		TypeName:    r.TypeName,
		TypeVersion: r.TypeVersion,
		Resource:    r,
		Timestamp:   time.Now().UTC(),
	}
}
