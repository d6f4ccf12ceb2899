package retrieval

import (
	"context"

	"github.com/charmbracelet/log"
	chromem "github.com/philippgille/chromem-go"
	"github.com/pkg/errors"
)

// ChromemClient backs knowledge retrieval with chromem-go, an embedded
// pure-Go vector database. One collection holds all reference documents;
// provenance lives in document metadata.
type ChromemClient struct {
	collection *chromem.Collection
	logger     *log.Logger
}

const knowledgeCollection = "knowledge"

// NewChromemClient creates the embedded store. embed converts text to a
// vector; in production this wraps the embeddings API.
func NewChromemClient(logger *log.Logger, embed chromem.EmbeddingFunc) (*ChromemClient, error) {
	db := chromem.NewDB()

	collection, err := db.CreateCollection(knowledgeCollection, nil, embed)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create knowledge collection")
	}

	return &ChromemClient{
		collection: collection,
		logger:     logger,
	}, nil
}

// Document is one reference passage to ingest.
type Document struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Topic string `json:"topic"`
}

// Ingest loads reference documents into the knowledge base.
func (c *ChromemClient) Ingest(ctx context.Context, docs []Document) error {
	for _, doc := range docs {
		err := c.collection.AddDocument(ctx, chromem.Document{
			ID:       doc.ID,
			Content:  doc.Text,
			Metadata: map[string]string{"topic": doc.Topic},
		})
		if err != nil {
			return errors.Wrapf(err, "failed to ingest document %s", doc.ID)
		}
	}
	c.logger.Info("Ingested knowledge documents", "count", len(docs))
	return nil
}

// Search returns up to topK chunks ordered by similarity, best first.
func (c *ChromemClient) Search(ctx context.Context, query string, topK int) ([]Chunk, error) {
	if topK <= 0 {
		return nil, nil
	}
	if count := c.collection.Count(); count < topK {
		topK = count
	}
	if topK == 0 {
		return nil, nil
	}

	results, err := c.collection.Query(ctx, query, topK, nil, nil)
	if err != nil {
		return nil, &Error{Err: err}
	}

	chunks := make([]Chunk, 0, len(results))
	for _, result := range results {
		chunks = append(chunks, Chunk{
			Text:  result.Content,
			Topic: result.Metadata["topic"],
			Score: float64(result.Similarity),
		})
	}
	return chunks, nil
}
