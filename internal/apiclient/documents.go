package apiclient

import (
	"context"
	"net/http"
)

// Document is one entry of the backend's document list. Tokens holds one
// pre-issued JWT per layer and may be empty.
type Document struct {
	Title  string
	ID     string
	Tokens []string
}

// FetchDocumentList returns the documents listed by GET /api/documents.
// Entries lacking a string title, a string id, or an all-string tokens array are skipped.
func (c *Client) FetchDocumentList(ctx context.Context) ([]Document, error) {
	obj, err := c.getJSONObject(ctx, http.StatusOK, "documents")
	if err != nil {
		return nil, err
	}
	raw, ok := obj["documents"].([]any)
	if !ok {
		return nil, &MissingFieldError{Field: "documents", Raw: obj}
	}
	docs := make([]Document, 0, len(raw))
	for i, entry := range raw {
		doc, ok := parseDocument(entry)
		if !ok {
			c.log.Debugf("skipping malformed document entry %d: %v", i, entry)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func parseDocument(entry any) (Document, bool) {
	m, ok := entry.(map[string]any)
	if !ok {
		return Document{}, false
	}
	title, ok := m["title"].(string)
	if !ok {
		return Document{}, false
	}
	id, ok := m["id"].(string)
	if !ok {
		return Document{}, false
	}
	rawTokens, ok := m["tokens"].([]any)
	if !ok {
		return Document{}, false
	}
	tokens := make([]string, 0, len(rawTokens))
	for _, t := range rawTokens {
		s, ok := t.(string)
		if !ok {
			return Document{}, false
		}
		tokens = append(tokens, s)
	}
	return Document{Title: title, ID: id, Tokens: tokens}, true
}
