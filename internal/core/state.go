package core

import "sync"

// StatusSnapshot is a copy of the analysis status fields. Nil means unset.
type StatusSnapshot struct {
	Status      *string `json:"status"`
	Description *string `json:"description"`
}

// State is the agent's single mutable record. The controller pin is a
// one-shot latch: once recorded it never changes for the process lifetime.
type State struct {
	mu          sync.Mutex
	status      *string
	description *string
	pinned      string
}

func NewState() *State { return &State{} }

// Status returns the current status and description.
func (s *State) Status() StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatusSnapshot{Status: clone(s.status), Description: clone(s.description)}
}

// SetStatus replaces both fields. A nil status is rejected and nothing changes.
func (s *State) SetStatus(status, description *string) error {
	if status == nil {
		return Errorf(KindClient, "set status", "no status has been provided")
	}
	s.mu.Lock()
	s.status = clone(status)
	s.description = clone(description)
	s.mu.Unlock()
	return nil
}

// Pin records addr as the controller. Every call after the first fails with
// a conflict naming the address already recorded, including repeats of it.
func (s *State) Pin(addr string) (string, error) {
	if addr == "" {
		return "", Errorf(KindClient, "pin", "no controller address")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pinned != "" {
		return "", Errorf(KindConflict, "pin", "agent is already pinned to %s", s.pinned)
	}
	s.pinned = addr
	return addr, nil
}

// Pinned returns the recorded controller address, if any.
func (s *State) Pinned() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pinned, s.pinned != ""
}

func clone(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
