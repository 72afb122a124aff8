package engine

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Claims are the fields of a layer token the engine relies on.
type Claims struct {
	DocumentID string `json:"document_id"`
	Layer      string `json:"layer"`
	// Serial distinguishes tokens issued for the same layer.
	Serial int64 `json:"jti_serial,omitempty"`
}

// ParseToken decodes the payload segment of a JWT without verifying the signature;
// verification is the server's job.
func ParseToken(token string) (Claims, error) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 {
		return Claims{}, fmt.Errorf("%w: expected 3 segments, got %d", ErrInvalidToken, len(parts))
	}
	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return Claims{}, fmt.Errorf("%w: payload: %v", ErrInvalidToken, err)
	}
	var c Claims
	if err := json.Unmarshal(payload, &c); err != nil {
		return Claims{}, fmt.Errorf("%w: claims: %v", ErrInvalidToken, err)
	}
	if c.DocumentID == "" {
		return Claims{}, fmt.Errorf("%w: missing document_id", ErrInvalidToken)
	}
	return c, nil
}

// EncodeToken builds an unsigned JWT-shaped token carrying c.
func EncodeToken(c Claims) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	body, _ := json.Marshal(c)
	return header + "." + base64.RawURLEncoding.EncodeToString(body) + ".unsigned"
}
