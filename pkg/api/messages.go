package api

type (
	// DefineWorkflowRequest contains parameters for defining (or
	// overwriting) a workflow
	DefineWorkflowRequest struct {
		Name  string    `json:"name"`
		Steps []StepRef `json:"steps"`
	}

	// WorkflowDefinedResponse is returned when a definition succeeds
	WorkflowDefinedResponse struct {
		WorkflowID WorkflowID `json:"workflow_id"`
	}

	// StartWorkflowRequest contains parameters for starting an execution
	StartWorkflowRequest struct {
		Data any    `json:"data"`
		Name string `json:"name"`
	}

	// WorkflowStartedResponse is returned when an execution has been
	// scheduled. The run itself proceeds asynchronously
	WorkflowStartedResponse struct {
		ExecutionID ExecutionID `json:"execution_id"`
	}

	// WorkflowsListResponse contains the currently defined workflows
	WorkflowsListResponse struct {
		Workflows []*Workflow `json:"workflows"`
		Count     int         `json:"count"`
	}

	// QueryResponse is returned for status queries carrying a path
	// expression against the execution's current data
	QueryResponse struct {
		Value       any             `json:"value"`
		ExecutionID ExecutionID     `json:"execution_id"`
		Path        string          `json:"path"`
		Status      ExecutionStatus `json:"status"`
	}

	// ErrorResponse contains error details for failed requests
	ErrorResponse struct {
		Error  string `json:"error"`
		Status int    `json:"status,omitempty"`
	}
)
