package evaluation

import (
	"encoding/json"
	"os"

	"github.com/XiaoConstantine/evoretrieve/pkg/errors"
)

// Document is one retrievable unit of the workload corpus.
type Document struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Query is one labeled query: Relevant maps document id to a graded
// relevance label (>0 means relevant).
type Query struct {
	ID       string             `json:"id"`
	Text     string             `json:"text"`
	Relevant map[string]float64 `json:"relevant"`
}

// Dataset is the labeled query/document workload a strategy is evaluated
// against.
type Dataset struct {
	Queries   []Query    `json:"queries"`
	Documents []Document `json:"documents"`
}

// LoadDataset reads and validates a JSON dataset file.
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.ResourceNotFound, "failed to read dataset file"),
			errors.Fields{"path": path},
		)
	}
	var d Dataset
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.InvalidInput, "failed to parse dataset file"),
			errors.Fields{"path": path},
		)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Validate checks the dataset is usable for evaluation.
func (d *Dataset) Validate() error {
	if len(d.Queries) == 0 {
		return errors.New(errors.ValidationFailed, "dataset has no queries")
	}
	if len(d.Documents) == 0 {
		return errors.New(errors.ValidationFailed, "dataset has no documents")
	}
	docIDs := make(map[string]bool, len(d.Documents))
	for _, doc := range d.Documents {
		if doc.ID == "" {
			return errors.New(errors.ValidationFailed, "document with empty id")
		}
		if docIDs[doc.ID] {
			return errors.WithFields(
				errors.New(errors.ValidationFailed, "duplicate document id"),
				errors.Fields{"doc_id": doc.ID},
			)
		}
		docIDs[doc.ID] = true
	}
	for _, q := range d.Queries {
		if q.ID == "" {
			return errors.New(errors.ValidationFailed, "query with empty id")
		}
		for docID := range q.Relevant {
			if !docIDs[docID] {
				return errors.WithFields(
					errors.New(errors.ValidationFailed, "relevance label references unknown document"),
					errors.Fields{"query_id": q.ID, "doc_id": docID},
				)
			}
		}
	}
	return nil
}
