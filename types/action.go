package types

// Action is the outcome of one activation decision.
type Action int

const (
	// ActionIgnore means no registry mutation and no error (unsupported channel).
	ActionIgnore Action = iota
	// ActionActivateThenRegister means validate, persist Active, then register.
	ActionActivateThenRegister
	// ActionRegister means idempotently register an already Active subscription.
	ActionRegister
	// ActionUnregister means remove the subscription from the registry if present.
	ActionUnregister
	// ActionReject means activation failed and the subscription was moved to Error.
	ActionReject
)

// String returns the name of the action.
func (a Action) String() string {
	switch a {
	case ActionIgnore:
		return "ignore"
	case ActionActivateThenRegister:
		return "activate_then_register"
	case ActionRegister:
		return "register"
	case ActionUnregister:
		return "unregister"
	case ActionReject:
		return "reject"
	default:
		return "unknown"
	}
}
