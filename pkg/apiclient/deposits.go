package apiclient

import (
	"net/url"

	"github.com/marmos91/depositd/pkg/model"
)

// ListDepositsBySubmission returns all deposits belonging to a submission.
func (c *Client) ListDepositsBySubmission(submissionID string) ([]*model.Deposit, error) {
	var out []*model.Deposit
	err := c.get("/api/v1/deposits?submission="+url.QueryEscape(submissionID), &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListDepositsByStatus returns all deposits in the given state.
func (c *Client) ListDepositsByStatus(status string) ([]*model.Deposit, error) {
	var out []*model.Deposit
	err := c.get("/api/v1/deposits?status="+url.QueryEscape(status), &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetDeposit returns one deposit record.
func (c *Client) GetDeposit(id string) (*model.Deposit, error) {
	var out model.Deposit
	if err := c.get("/api/v1/deposits/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RetryDeposit re-arms a failed deposit and schedules it.
func (c *Client) RetryDeposit(id string) error {
	return c.post("/api/v1/deposits/"+url.PathEscape(id)+"/retry", nil, nil)
}
