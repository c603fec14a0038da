package appclient

// StartTaskStatus is the lifecycle status of an asynchronous conversation
// start task. The backend may report additional in-progress states; only
// READY and ERROR are terminal.
type StartTaskStatus string

const (
	StartTaskWorking StartTaskStatus = "WORKING"
	StartTaskReady   StartTaskStatus = "READY"
	StartTaskError   StartTaskStatus = "ERROR"
)

// Terminal reports whether no further status transition can occur.
func (s StartTaskStatus) Terminal() bool {
	return s == StartTaskReady || s == StartTaskError
}

// StartTask is the backend-tracked asynchronous job representing "bring up a
// new conversation". AppConversationID is populated only once the task is
// READY; Detail typically carries a failure explanation on ERROR.
type StartTask struct {
	ID                string          `json:"id"`
	Status            StartTaskStatus `json:"status"`
	AppConversationID string          `json:"app_conversation_id,omitempty"`
	Detail            string          `json:"detail,omitempty"`
}

// StartConversationRequest is the JSON body for POST /api/v1/app-conversations.
// For a clear/fork only ParentConversationID is set; fresh launches set the
// repository fields instead.
type StartConversationRequest struct {
	ParentConversationID string `json:"parent_conversation_id,omitempty"`
	Repository           string `json:"repository,omitempty"`
	Branch               string `json:"branch,omitempty"`
	GitProvider          string `json:"git_provider,omitempty"`
}

// AppConversation is a chat/agent session with an optional linked repository.
type AppConversation struct {
	ID                 string `json:"id"`
	Title              string `json:"title,omitempty"`
	SandboxID          string `json:"sandbox_id"`
	SandboxStatus      string `json:"sandbox_status,omitempty"`
	SelectedRepository string `json:"selected_repository,omitempty"`
	SelectedBranch     string `json:"selected_branch,omitempty"`
	ParentID           string `json:"parent_conversation_id,omitempty"`
	CreatedAt          string `json:"created_at,omitempty"`
}

// ClearConversationResult is the response of the single-call clear endpoint.
type ClearConversationResult struct {
	Message              string `json:"message"`
	NewConversationID    string `json:"new_conversation_id"`
	ParentConversationID string `json:"parent_conversation_id"`
	Status               string `json:"status"`
}

// Repository is a source repository reachable through the app server's git
// integration.
type Repository struct {
	ID          string `json:"id"`
	FullName    string `json:"full_name"`
	GitProvider string `json:"git_provider,omitempty"`
}

// Branch is a branch of a Repository.
type Branch struct {
	Name string `json:"name"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
