package retrieval

import (
	"encoding/json"
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// LoadDocumentsFile reads a JSON array of documents from disk. Documents
// without an ID get one assigned.
func LoadDocumentsFile(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read knowledge file %s", path)
	}

	var docs []Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, errors.Wrapf(err, "failed to parse knowledge file %s", path)
	}

	for i := range docs {
		if docs[i].ID == "" {
			docs[i].ID = uuid.New().String()
		}
	}
	return docs, nil
}
