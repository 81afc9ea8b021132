package controlapi

// listResponse is the body of a successful GET /faults.
type listResponse struct {
	FaultIDs []string `json:"faults_ids"`
}

// getResponse is the body of a successful GET /faults/{id}.
type getResponse struct {
	FaultID string         `json:"fault_id"`
	Fault   map[string]any `json:"fault"`
}

// insertResponse is the body of a successful POST /faults.
type insertResponse struct {
	FaultID string `json:"fault_id"`
}

// deleteResponse is the body of a successful DELETE /faults/{id}.
type deleteResponse struct {
	FaultID string `json:"fault_id"`
}

// errorResponse carries a diagnostic message for 4xx/404 replies.
type errorResponse struct {
	Error string `json:"error"`
}
