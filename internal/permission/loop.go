package permission

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
)

// LoopThreshold is how many identical invocations in a row trigger
// escalation to a human.
const LoopThreshold = 3

// loopHistoryLimit bounds per-session history.
const loopHistoryLimit = 10

// LoopDetector notices when a session keeps proposing the same tool
// invocation over and over. A stuck model re-running an allowed command
// is not dangerous by rule, but it burns the run; the service escalates
// such invocations to Ask.
type LoopDetector struct {
	mu      sync.Mutex
	history map[string][]string // sessionID -> recent invocation hashes
}

// NewLoopDetector creates an empty detector.
func NewLoopDetector() *LoopDetector {
	return &LoopDetector{history: make(map[string][]string)}
}

// Observe records an invocation and reports whether it completes a run of
// LoopThreshold identical calls.
func (d *LoopDetector) Observe(sessionID, toolName string, input map[string]any) bool {
	hash := hashInvocation(toolName, input)

	d.mu.Lock()
	defer d.mu.Unlock()

	history := d.history[sessionID]

	looping := false
	if len(history) >= LoopThreshold-1 {
		looping = true
		for _, h := range history[len(history)-(LoopThreshold-1):] {
			if h != hash {
				looping = false
				break
			}
		}
	}

	history = append(history, hash)
	if len(history) > loopHistoryLimit {
		history = history[len(history)-loopHistoryLimit:]
	}
	d.history[sessionID] = history

	return looping
}

// Clear drops the history for a session.
func (d *LoopDetector) Clear(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.history, sessionID)
}

func hashInvocation(toolName string, input map[string]any) string {
	data, _ := json.Marshal(map[string]any{
		"tool":  toolName,
		"input": input,
	})
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
