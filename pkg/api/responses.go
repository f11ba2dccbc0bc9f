package api

// CreateWorkOrderResponse is returned by POST /api/v1/workorders.
type CreateWorkOrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// RunningResponse is returned by GET /api/v1/workorders/:id/running.
type RunningResponse struct {
	Running bool `json:"running"`
}

// AcceptedResponse is returned by fire-and-forget actions (pause/resume/
// cancel/decision/answer), mirroring the teacher's CancelResponse shape.
type AcceptedResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}
