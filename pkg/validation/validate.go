package validation

import (
	"fmt"
	"sync"
)

// Rules holds the configurable request validation limits.
type Rules struct {
	MaxTextLen      int
	MaxParticipants int
}

var (
	rulesMu sync.RWMutex
	rules   = Rules{MaxTextLen: 8192, MaxParticipants: 64}
)

// SetRules installs the validation rules (zero fields keep defaults).
func SetRules(r Rules) {
	rulesMu.Lock()
	defer rulesMu.Unlock()
	if r.MaxTextLen > 0 {
		rules.MaxTextLen = r.MaxTextLen
	}
	if r.MaxParticipants > 0 {
		rules.MaxParticipants = r.MaxParticipants
	}
}

func current() Rules {
	rulesMu.RLock()
	defer rulesMu.RUnlock()
	return rules
}

// ValidateSend checks a send-message request. A client token is required
// on every send so retries can be collapsed to a single effect.
func ValidateSend(senderID, text, clientToken string) error {
	if senderID == "" {
		return fmt.Errorf("missing sender_id")
	}
	if clientToken == "" {
		return fmt.Errorf("missing client_token")
	}
	if text == "" {
		return fmt.Errorf("missing text")
	}
	if max := current().MaxTextLen; len(text) > max {
		return fmt.Errorf("text exceeds %d bytes", max)
	}
	return nil
}

// ValidateParticipants checks a conversation creation request.
func ValidateParticipants(ids []string) error {
	if len(ids) < 2 {
		return fmt.Errorf("conversation needs at least 2 participants")
	}
	if max := current().MaxParticipants; len(ids) > max {
		return fmt.Errorf("participant count exceeds %d", max)
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			return fmt.Errorf("empty participant id")
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("duplicate participant id %s", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
