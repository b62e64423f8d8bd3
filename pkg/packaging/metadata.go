package packaging

import (
	"encoding/json"
	"fmt"

	"github.com/marmos91/depositd/pkg/model"
)

// SubmissionMetadata is the bibliographic view the dialects render. The
// submission's metadata blob is opaque to the pipeline; this decode is
// deliberately lenient and unknown fields are ignored.
type SubmissionMetadata struct {
	Title           string   `json:"title"`
	Abstract        string   `json:"abstract,omitempty"`
	DOI             string   `json:"doi,omitempty"`
	JournalTitle    string   `json:"journal-title,omitempty"`
	ISSNs           []string `json:"issns,omitempty"`
	Publisher       string   `json:"publisher,omitempty"`
	PublicationDate string   `json:"publicationDate,omitempty"`
	Volume          string   `json:"volume,omitempty"`
	Issue           string   `json:"issue,omitempty"`
	Authors         []Author `json:"authors,omitempty"`
	EmbargoUntil    string   `json:"Embargo-end-date,omitempty"`
}

// Author is one contributor in the submission metadata.
type Author struct {
	Name  string `json:"author"`
	Email string `json:"email,omitempty"`
	ORCID string `json:"orcid_id,omitempty"`
}

// ParseMetadata decodes the submission's metadata blob. An absent blob
// yields an empty document, not an error; a malformed one fails.
func ParseMetadata(sub *model.Submission) (*SubmissionMetadata, error) {
	meta := &SubmissionMetadata{}
	if len(sub.Metadata) == 0 {
		return meta, nil
	}
	if err := json.Unmarshal(sub.Metadata, meta); err != nil {
		return nil, fmt.Errorf("parse submission metadata: %w", err)
	}
	return meta, nil
}
