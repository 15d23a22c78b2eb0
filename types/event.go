package types

// OperationKind identifies the write that produced a ResourceChangedEvent.
type OperationKind int

const (
	// OperationUnknown is the zero value and is never routed.
	OperationUnknown OperationKind = iota
	// OperationCreate indicates a record was created.
	OperationCreate
	// OperationUpdate indicates a record was updated.
	OperationUpdate
	// OperationDelete indicates a record was deleted.
	OperationDelete
)

// String returns the lowercase name of the operation.
func (o OperationKind) String() string {
	switch o {
	case OperationCreate:
		return "create"
	case OperationUpdate:
		return "update"
	case OperationDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ResourceChangedEvent describes one write to a resource record.
//
// Events are produced by the persistence write path and consumed exactly once by the
// router. They are immutable after construction.
type ResourceChangedEvent struct {
	id           string
	resourceType string
	operation    OperationKind
	payload      Record
	hasPayload   bool
}

// NewCreateEvent builds a create event carrying the new record.
func NewCreateEvent(rec Record) ResourceChangedEvent {
	return ResourceChangedEvent{id: rec.ID, resourceType: rec.ResourceType, operation: OperationCreate, payload: copyRecord(rec), hasPayload: true}
}

// NewUpdateEvent builds an update event carrying the new record.
func NewUpdateEvent(rec Record) ResourceChangedEvent {
	return ResourceChangedEvent{id: rec.ID, resourceType: rec.ResourceType, operation: OperationUpdate, payload: copyRecord(rec), hasPayload: true}
}

// NewDeleteEvent builds a delete event for the given identity.
func NewDeleteEvent(resourceType, id string) ResourceChangedEvent {
	return ResourceChangedEvent{id: id, resourceType: resourceType, operation: OperationDelete}
}

// ID returns the identity of the affected record.
func (e ResourceChangedEvent) ID() string { return e.id }

// ResourceType returns the resource-type tag of the affected record.
func (e ResourceChangedEvent) ResourceType() string { return e.resourceType }

// Operation returns the operation kind.
func (e ResourceChangedEvent) Operation() OperationKind { return e.operation }

// Payload returns a copy of the new record for create/update events.
func (e ResourceChangedEvent) Payload() (Record, bool) {
	if !e.hasPayload {
		return Record{}, false
	}

	return copyRecord(e.payload), true
}

func copyRecord(rec Record) Record {
	if rec.Payload != nil {
		rec.Payload = append([]byte(nil), rec.Payload...)
	}

	return rec
}
