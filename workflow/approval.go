//
// Copyright (C) 2025 DataQuest AI. All rights reserved.
//
// analysis-engine is licensed under the Apache License Version 2.0.
//

package workflow

import "strings"

// ApprovalPolicy decides whether an action needs human confirmation
// before the run may proceed. Policies see the full state, so decisions
// can depend on the pending tool, the candidate answer, or prior turns.
type ApprovalPolicy interface {
	RequiresApproval(kind ApprovalKind, state *State) bool
}

// ApprovalPolicyFunc adapts a function to the ApprovalPolicy interface.
type ApprovalPolicyFunc func(kind ApprovalKind, state *State) bool

// RequiresApproval implements the ApprovalPolicy interface.
func (f ApprovalPolicyFunc) RequiresApproval(kind ApprovalKind, state *State) bool {
	return f(kind, state)
}

// ApproveNone never intercepts; runs proceed without human confirmation.
func ApproveNone() ApprovalPolicy {
	return ApprovalPolicyFunc(func(ApprovalKind, *State) bool { return false })
}

// ApproveAllTools gates every tool execution behind confirmation.
func ApproveAllTools() ApprovalPolicy {
	return ApprovalPolicyFunc(func(kind ApprovalKind, _ *State) bool {
		return kind == ApprovalToolExecution
	})
}

// ApproveHighImpact gates final answers whose text matches any of the
// given keywords (case-insensitive), flagging high-business-impact
// recommendations for review. With no keywords it gates every answer.
func ApproveHighImpact(keywords ...string) ApprovalPolicy {
	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}
	return ApprovalPolicyFunc(func(kind ApprovalKind, state *State) bool {
		if kind != ApprovalRecommendation {
			return false
		}
		if len(lowered) == 0 {
			return true
		}
		answer := strings.ToLower(state.FinalAnswer)
		for _, kw := range lowered {
			if strings.Contains(answer, kw) {
				return true
			}
		}
		return false
	})
}

// Decision is a caller-supplied resolution of a pending approval.
type Decision struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback,omitempty"`
}
