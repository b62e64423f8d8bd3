package apiclient

// PipelineStatus is the pipeline snapshot returned by GET /api/v1/status.
type PipelineStatus struct {
	Pool *struct {
		Pending   int    `json:"pending"`
		Completed int    `json:"completed"`
		Failed    int    `json:"failed"`
		LastError string `json:"last_error,omitempty"`
	} `json:"pool,omitempty"`
	Poller *struct {
		Active int `json:"active"`
	} `json:"poller,omitempty"`
}

// Status returns a snapshot of the pipeline's moving parts.
func (c *Client) Status() (*PipelineStatus, error) {
	var out PipelineStatus
	if err := c.get("/api/v1/status", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health reports whether the server answers its liveness probe.
func (c *Client) Health() error {
	return c.get("/health", nil)
}
