package chat

// SessionState captures the turn-taking state of one conversation.
type SessionState struct {
	Conversation    []ChatTurn `json:"conversation"`
	IsResponding    bool       `json:"is_responding"`
	PromptToProcess *string    `json:"prompt_to_process"`
}

// Status is the responding flag and pending prompt exposed to the presentation.
type Status struct {
	IsResponding    bool    `json:"is_responding"`
	PromptToProcess *string `json:"prompt_to_process"`
}

// Status snapshots the responding flag and pending prompt.
func (s SessionState) Status() Status {
	status := Status{IsResponding: s.IsResponding}
	if s.PromptToProcess != nil {
		prompt := *s.PromptToProcess
		status.PromptToProcess = &prompt
	}
	return status
}
