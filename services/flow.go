package services

import (
	"fmt"

	"github.com/pilab-dev/exam-sso/internal/federation"
)

// FlowState is a node of the session state machine.
type FlowState string

const (
	FlowIdle FlowState = "Idle"

	// Local login.
	FlowCredentialsSubmitted FlowState = "CredentialsSubmitted"
	FlowVerified             FlowState = "Verified"
	FlowLoginFailed          FlowState = "LoginFailed"

	// SSO.
	FlowStateIssued      FlowState = "StateIssued"
	FlowCallbackReceived FlowState = "CallbackReceived"
	FlowStateValidated   FlowState = "StateValidated"
	FlowCodeExchanged    FlowState = "CodeExchanged"
	FlowUserResolved     FlowState = "UserResolved"
	FlowSSOFailed        FlowState = "SSOFailed"

	FlowTokensIssued FlowState = "TokensIssued"

	// Refresh.
	FlowRotationRequested FlowState = "RotationRequested"
	FlowRotationSucceeded FlowState = "RotationSucceeded"
	FlowReplayDetected    FlowState = "ReplayDetected"
	FlowRotationFailed    FlowState = "RotationFailed"

	// Logout.
	FlowLogoutRequested FlowState = "LogoutRequested"
	FlowLoggedOut       FlowState = "LoggedOut"
	FlowLogoutFailed    FlowState = "LogoutFailed"
)

var transitions = map[FlowState][]FlowState{
	FlowIdle:                 {FlowCredentialsSubmitted, FlowStateIssued, FlowSSOFailed},
	FlowCredentialsSubmitted: {FlowVerified, FlowLoginFailed},
	FlowVerified:             {FlowTokensIssued, FlowLoginFailed},
	FlowStateIssued:          {FlowCallbackReceived, FlowSSOFailed},
	FlowCallbackReceived:     {FlowStateValidated, FlowSSOFailed},
	FlowStateValidated:       {FlowCodeExchanged, FlowSSOFailed},
	FlowCodeExchanged:        {FlowUserResolved, FlowSSOFailed},
	FlowUserResolved:         {FlowTokensIssued, FlowSSOFailed},
	FlowTokensIssued:         {FlowRotationRequested, FlowLogoutRequested},
	FlowRotationRequested:    {FlowRotationSucceeded, FlowReplayDetected, FlowRotationFailed},
	FlowLogoutRequested:      {FlowLoggedOut, FlowLogoutFailed},
}

// Terminal reports whether no transition leaves s.
func (s FlowState) Terminal() bool {
	return len(transitions[s]) == 0 || s == FlowTokensIssued
}

// Failed reports whether s is a terminal failure.
func (s FlowState) Failed() bool {
	switch s {
	case FlowLoginFailed, FlowSSOFailed, FlowRotationFailed, FlowReplayDetected, FlowLogoutFailed:
		return true
	}

	return false
}

// flow tracks one request through the state machine. Each request starts a
// new flow; nothing is kept between requests.
type flow struct {
	state FlowState
	path  []FlowState
}

func newFlow(start FlowState) *flow {
	return &flow{state: start, path: []FlowState{start}}
}

func (f *flow) advance(to FlowState) error {
	for _, next := range transitions[f.state] {
		if next == to {
			f.state = to
			f.path = append(f.path, to)

			return nil
		}
	}

	return fmt.Errorf("illegal session transition %s -> %s", f.state, to)
}

func (f *flow) must(to FlowState) {
	if err := f.advance(to); err != nil {
		panic(err)
	}
}

func (f *flow) trail() []string {
	out := make([]string, len(f.path))
	for i, s := range f.path {
		out[i] = string(s)
	}

	return out
}

// ssoStages is the order in which the callback handler passes its stages.
var ssoStages = []struct {
	stage federation.Stage
	state FlowState
}{
	{federation.StageCallbackReceived, FlowCallbackReceived},
	{federation.StageStateValidated, FlowStateValidated},
	{federation.StageCodeExchanged, FlowCodeExchanged},
	{federation.StageUserResolved, FlowUserResolved},
}

// replayUntil advances f through every SSO stage completed before failed.
func (f *flow) replayUntil(failed federation.Stage) {
	for _, s := range ssoStages {
		if s.stage == failed {
			return
		}
		f.must(s.state)
	}
}
