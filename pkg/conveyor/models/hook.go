package models

// HookPayload is the JSON body of a repository event delivered to /api/hooks.
// The event type itself travels in the X-Conveyor-Event header.
type HookPayload struct {
	DeliveryID string `json:"deliveryId"`
	Repo       string `json:"repo"` // clone URL
	Branch     string `json:"branch"`
	BaseBranch string `json:"baseBranch,omitempty"` // pull_request only: the target branch
	SHA        string `json:"sha"`
	Sender     string `json:"sender,omitempty"`
}

// HookResponse lists the builds created for a delivery. A delivery that
// matches no pipeline returns an empty list, not an error.
type HookResponse struct {
	BuildIDs  []int64  `json:"buildIds"`
	Pipelines []string `json:"pipelines"`
}
