package event

// PermissionRequestedData is the data for permission.requested events.
// The confirmation UI renders it and answers via Service.Respond.
type PermissionRequestedData struct {
	ID          string   `json:"id"`
	SessionID   string   `json:"sessionID"`
	ToolName    string   `json:"toolName"`
	Action      string   `json:"action"`
	Reason      string   `json:"reason,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"` // proposed trust patterns, editable
}

// PermissionRepliedData is the data for permission.replied events.
type PermissionRepliedData struct {
	ID       string `json:"id"`
	Response string `json:"response"` // "once" | "always" | "reject" | "cancel"
}

// RulesReloadedData is the data for rules.reloaded events.
type RulesReloadedData struct {
	AllowCount int `json:"allowCount"`
	DenyCount  int `json:"denyCount"`
}

// ModeChangedData is the data for mode.changed events.
type ModeChangedData struct {
	Mode string `json:"mode"`
}
