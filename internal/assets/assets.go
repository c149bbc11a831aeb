// Package assets embeds the proxy's bundled static files (favicons,
// robots.txt, stylesheets) and precomputes the stylesheet hashes the
// Content-Security-Policy header needs. Every bundled asset and its
// SHA-256 digest (what a build-time minifier would otherwise precompute)
// is resolved once in an init().
package assets

import (
	"crypto/sha256"
	"embed"
	"encoding/base64"

	"github.com/friedemannsommer/searproxy-go/internal/csp"
)

//go:embed static/favicon.ico static/favicon-16x16.png static/favicon-32x32.png static/robots.txt static/main.css static/header.css
var static embed.FS

var (
	FaviconICO       []byte
	Favicon16        []byte
	Favicon32        []byte
	RobotsTxt        []byte
	MainStylesheet   []byte
	HeaderStylesheet []byte
)

func mustRead(name string) []byte {
	b, err := static.ReadFile(name)
	if err != nil {
		panic(err)
	}
	return b
}

func styleHash(content []byte) string {
	sum := sha256.Sum256(content)
	return "'sha256-" + base64.StdEncoding.EncodeToString(sum[:]) + "'"
}

func init() {
	FaviconICO = mustRead("static/favicon.ico")
	Favicon16 = mustRead("static/favicon-16x16.png")
	Favicon32 = mustRead("static/favicon-32x32.png")
	RobotsTxt = mustRead("static/robots.txt")
	MainStylesheet = mustRead("static/main.css")
	HeaderStylesheet = mustRead("static/header.css")

	csp.MainStylesheetHash = styleHash(MainStylesheet)
	csp.HeaderStylesheetHash = styleHash(HeaderStylesheet)
}
