package apiclient

import (
	"context"
	"fmt"
	"net/http"
)

// Layer identifies one named layer of a document. The zero Name is the default layer.
type Layer struct {
	DocumentID string
	Name       string
}

func (l Layer) String() string {
	if l.Name == "" {
		return l.DocumentID
	}
	return fmt.Sprintf("%s/%s", l.DocumentID, l.Name)
}

// FetchAuthToken asks the backend for a fresh token via GET /api/document/{id}[/{name}].
func (c *Client) FetchAuthToken(ctx context.Context, layer Layer) (string, error) {
	segments := []string{"document", layer.DocumentID}
	if layer.Name != "" {
		segments = append(segments, layer.Name)
	}
	obj, err := c.getJSONObject(ctx, http.StatusOK, segments...)
	if err != nil {
		return "", err
	}
	tok, ok := obj["token"].(string)
	if !ok {
		return "", &MissingFieldError{Field: "token", Raw: obj}
	}
	return tok, nil
}
