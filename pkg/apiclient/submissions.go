package apiclient

import (
	"net/url"

	"github.com/marmos91/depositd/pkg/model"
)

// SubmissionDetail is a submission with its pipeline records attached.
type SubmissionDetail struct {
	Submission *model.Submission       `json:"submission"`
	Deposits   []*model.Deposit        `json:"deposits"`
	Copies     []*model.RepositoryCopy `json:"copies"`
}

// ListSubmissions returns submitted submissions, optionally narrowed to an
// aggregated status.
func (c *Client) ListSubmissions(status string) ([]*model.Submission, error) {
	path := "/api/v1/submissions"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}

	var out []*model.Submission
	if err := c.get(path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSubmission returns one submission with its deposits and copies.
func (c *Client) GetSubmission(id string) (*SubmissionDetail, error) {
	var out SubmissionDetail
	if err := c.get("/api/v1/submissions/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}
