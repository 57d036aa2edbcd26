// Package tracking generates open-tracking tokens and records open events
// from the 1x1 pixel endpoint.
package tracking

import (
	"crypto/rand"
	"encoding/base64"
)

// tokenBytes gives 256 bits of entropy; tokens must be unguessable since
// knowing one lets anyone inflate a contact's open count.
const tokenBytes = 32

// NewToken returns an opaque URL-safe tracking token.
func NewToken() string {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
