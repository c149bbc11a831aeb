// Package csp assembles the per-response Content-Security-Policy header
// from collected inline-style hashes and the build-time bundled-asset
// hashes.
package csp

import (
	"fmt"
	"strings"
)

// Build-time constants: the SHA-256 hash (as 'sha256-<base64>') of the
// bundled header and main stylesheets. Populated from internal/assets.
var (
	HeaderStylesheetHash string
	MainStylesheetHash   string
)

const baseline = "default-src 'none'; block-all-mixed-content; img-src data: 'self'; " +
	"style-src 'self' %s; prefetch-src 'self'; media-src 'self'; " +
	"frame-src 'self'; font-src 'self'; frame-ancestors 'self'"

// ForHTML builds the CSP for a rewritten HTML response, whose style-src
// allows the bundled header stylesheet plus every inline <style> hash
// collected for this page.
func ForHTML(styleHashes []string) string {
	hashes := make([]string, 0, len(styleHashes)+1)
	hashes = append(hashes, HeaderStylesheetHash)
	hashes = append(hashes, styleHashes...)
	return build(hashes)
}

// ForStatic builds the CSP for non-HTML responses and proxy-served static
// assets, whose style-src allows only the bundled main stylesheet.
func ForStatic() string {
	return build([]string{MainStylesheetHash})
}

func build(hashes []string) string {
	return fmt.Sprintf(baseline, strings.Join(hashes, " "))
}
