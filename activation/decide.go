// Package activation implements the subscription status state machine.
//
// Decide maps a canonical subscription to the registry action it calls for. An
// Activator executes that action: a Requested subscription is validated, persisted as
// Active and then re-routed as an update so the regular Active path registers it.
package activation

import "github.com/arloliu/subwatch/types"

// Decide returns the action a subscription calls for.
//
// Subscriptions whose channel type is not supported are ignored regardless of status:
// they are never written to, and applying Ignore drops any registry entry they had.
// Requested subscriptions are activated, Active ones are registered and every other
// status (including unknown codes) unregisters.
func Decide(sub types.CanonicalSubscription, supported types.ChannelSet) types.Action {
	if !supported.Contains(sub.ChannelType) {
		return types.ActionIgnore
	}

	switch sub.Status {
	case types.StatusRequested:
		return types.ActionActivateThenRegister
	case types.StatusActive:
		return types.ActionRegister
	case types.StatusError, types.StatusOff, types.StatusUnknown:
		return types.ActionUnregister
	default:
		return types.ActionUnregister
	}
}
