package engine

import (
	"errors"
	"testing"
)

func TestTokenRoundTrip(t *testing.T) {
	tok := EncodeToken(Claims{DocumentID: "d1", Layer: "review", Serial: 3})
	c, err := ParseToken(tok)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if c.DocumentID != "d1" || c.Layer != "review" || c.Serial != 3 {
		t.Fatalf("unexpected claims %+v", c)
	}
}

func TestParseTokenRejects(t *testing.T) {
	cases := map[string]string{
		"segments":     "abc",
		"payload":      "a.!!!.c",
		"json":         "a.bm90LWpzb24.c",
		"missing doc":  EncodeToken(Claims{Layer: "x"}),
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseToken(tok); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}
