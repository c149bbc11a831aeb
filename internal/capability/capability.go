// Package capability mints and verifies the HMAC-signed proxy URLs that are
// the sole thing this proxy trusts: "./?url=<absolute>&hash=<hex>[#frag]".
package capability

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// Codec mints and verifies capability URLs under a single process-wide key.
type Codec struct {
	key []byte
}

// New returns a Codec keyed by secret. The key is held for the process
// lifetime and never mutated.
func New(secret []byte) *Codec {
	return &Codec{key: secret}
}

func (c *Codec) sign(absolute string) []byte {
	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(absolute))
	return mac.Sum(nil)
}

// Mint resolves raw against base, handles the data:/# passthrough rules and
// otherwise emits a capability URL of the form
// "./?url=<percent-encoded-absolute>&hash=<hex>[#fragment]".
func (c *Codec) Mint(base *url.URL, raw string) string {
	trimmed := strings.TrimSpace(raw)

	if strings.HasPrefix(trimmed, "data:") {
		if strings.HasPrefix(trimmed, "data:image/") {
			return raw
		}
		return ""
	}

	if strings.HasPrefix(trimmed, "#") {
		return raw
	}

	absolute, err := resolve(base, raw)
	if err != nil {
		return ""
	}

	fragment := absolute.Fragment
	absolute.Fragment = ""
	stripped := absolute.String()

	out := "./?url=" + url.QueryEscape(stripped) + "&hash=" + hex.EncodeToString(c.sign(stripped))

	if fragment != "" {
		out += "#" + fragment
	}

	return out
}

func resolve(base *url.URL, raw string) (*url.URL, error) {
	ref, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if base == nil {
		return ref, nil
	}
	return base.ResolveReference(ref), nil
}

// Verify hex-decodes hashHex and checks it is the HMAC-SHA256 of target
// (target's raw bytes, not re-normalized). Returns false both on malformed
// hex and on a mismatched MAC; callers distinguish the two via VerifyHex
// when they need to report hex-decode failures separately.
func (c *Codec) Verify(target string, hashHex string) bool {
	ok, _ := c.VerifyHex(target, hashHex)
	return ok
}

// VerifyHex is Verify but reports hex-decode failure distinctly from a
// mismatched MAC, so callers can map errors per §7/§8 (Hex vs InvalidHash).
func (c *Codec) VerifyHex(target string, hashHex string) (ok bool, hexErr error) {
	given, err := hex.DecodeString(hashHex)
	if err != nil {
		return false, err
	}
	return hmac.Equal(given, c.sign(target)), nil
}
