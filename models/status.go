package models

import "fmt"

// agentStatusByCode maps the on-chain uint8 lifecycle codes to labels.
// Unknown codes are an error, not a default label: a silent fallback would
// mask contract schema drift until rows were already mislabeled.
var agentStatusByCode = map[uint8]AgentStatus{
	0: AgentStatusUnfunded,
	1: AgentStatusActive,
	2: AgentStatusLowFunds,
	3: AgentStatusPaused,
	4: AgentStatusDead,
}

// AgentStatusFromCode translates an on-chain status code to its label.
func AgentStatusFromCode(code uint8) (AgentStatus, error) {
	status, ok := agentStatusByCode[code]
	if !ok {
		return "", fmt.Errorf("unrecognized agent status code: %d", code)
	}
	return status, nil
}

// ValidStatusTransition reports whether the lifecycle transition is one the
// registry contract can emit.
func ValidStatusTransition(from, to AgentStatus) bool {
	switch from {
	case AgentStatusUnfunded:
		return to == AgentStatusActive || to == AgentStatusDead
	case AgentStatusActive:
		return to == AgentStatusLowFunds || to == AgentStatusPaused || to == AgentStatusDead
	case AgentStatusLowFunds:
		return to == AgentStatusActive || to == AgentStatusPaused || to == AgentStatusDead
	case AgentStatusPaused:
		return to == AgentStatusActive || to == AgentStatusDead
	case AgentStatusDead:
		return false
	}
	return false
}
