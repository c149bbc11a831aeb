// Package transform dispatches a fetched origin response to the right
// rewriter by Content-Type: HTML through internal/htmlrewrite, CSS through
// internal/cssrewrite, every other listed type passed through unchanged (with
// a forced Content-Disposition: attachment for content types that are safe to
// serve but unsafe to render inline). Content types on neither list are
// rejected. Bodies are handled as complete byte slices, not streamed.
package transform

import (
	"mime"
	"net/url"
	"path/filepath"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"

	"github.com/friedemannsommer/searproxy-go/internal/apperror"
	"github.com/friedemannsommer/searproxy-go/internal/capability"
	"github.com/friedemannsommer/searproxy-go/internal/contenttype"
	"github.com/friedemannsommer/searproxy-go/internal/cssrewrite"
	"github.com/friedemannsommer/searproxy-go/internal/htmlrewrite"
)

// AllowedContentTypeFilter matches every content type this proxy renders or
// passes through inline.
var AllowedContentTypeFilter = contenttype.NewFilterOr([]contenttype.Filter{
	// html
	contenttype.NewFilterEquals("text", "html", ""),
	contenttype.NewFilterEquals("application", "xhtml", "xml"),
	// css
	contenttype.NewFilterEquals("text", "css", ""),
	// images
	contenttype.NewFilterEquals("image", "gif", ""),
	contenttype.NewFilterEquals("image", "png", ""),
	contenttype.NewFilterEquals("image", "jpeg", ""),
	contenttype.NewFilterEquals("image", "pjpeg", ""),
	contenttype.NewFilterEquals("image", "webp", ""),
	contenttype.NewFilterEquals("image", "tiff", ""),
	contenttype.NewFilterEquals("image", "vnd.microsoft.icon", ""),
	contenttype.NewFilterEquals("image", "bmp", ""),
	contenttype.NewFilterEquals("image", "x-ms-bmp", ""),
	contenttype.NewFilterEquals("image", "x-icon", ""),
	// fonts
	contenttype.NewFilterEquals("application", "font-otf", ""),
	contenttype.NewFilterEquals("application", "font-ttf", ""),
	contenttype.NewFilterEquals("application", "font-woff", ""),
	contenttype.NewFilterEquals("application", "vnd.ms-fontobject", ""),
})

// AllowedContentTypeAttachmentFilter matches content types this proxy will
// serve, but only as a forced download, never rendered inline.
var AllowedContentTypeAttachmentFilter = contenttype.NewFilterOr([]contenttype.Filter{
	// texts
	contenttype.NewFilterEquals("text", "csv", ""),
	contenttype.NewFilterEquals("text", "tab-separated-values", ""),
	contenttype.NewFilterEquals("text", "plain", ""),
	// API
	contenttype.NewFilterEquals("application", "json", ""),
	// documents
	contenttype.NewFilterEquals("application", "x-latex", ""),
	contenttype.NewFilterEquals("application", "pdf", ""),
	contenttype.NewFilterEquals("application", "vnd.oasis.opendocument.text", ""),
	contenttype.NewFilterEquals("application", "vnd.oasis.opendocument.spreadsheet", ""),
	contenttype.NewFilterEquals("application", "vnd.oasis.opendocument.presentation", ""),
	contenttype.NewFilterEquals("application", "vnd.oasis.opendocument.graphics", ""),
	// compressed archives
	contenttype.NewFilterEquals("application", "zip", ""),
	contenttype.NewFilterEquals("application", "gzip", ""),
	contenttype.NewFilterEquals("application", "x-compressed", ""),
	contenttype.NewFilterEquals("application", "x-gtar", ""),
	contenttype.NewFilterEquals("application", "x-compress", ""),
	// generic binary
	contenttype.NewFilterEquals("application", "octet-stream", ""),
})

// AllowedContentTypeParameters lists the MIME parameters preserved on the
// outgoing Content-Type header; every other parameter is stripped.
var AllowedContentTypeParameters = map[string]bool{"charset": true}

// Result is the outcome of rewriting a single origin response.
type Result struct {
	Body               []byte
	ContentType        string
	ContentDisposition []byte
	StyleHashes        []string
	IsHTML             bool
}

// Options carries everything a rewrite needs besides the response bytes.
type Options struct {
	Base                *url.URL
	Codec               *capability.Codec
	LazyImages          bool
	HeaderBanner        func(originURL string) string
	HeaderStyle         string
	ContentDisposition  []byte
}

// Apply parses rawContentType, enforces the content-type allowlist, and
// dispatches body to the matching rewriter.
func Apply(opts Options, rawContentType string, body []byte) (Result, error) {
	ct, err := contenttype.ParseContentType(rawContentType)
	if err != nil {
		return Result{}, apperror.New(apperror.KindMimeParse, err)
	}

	disposition := opts.ContentDisposition

	if !AllowedContentTypeFilter(ct) {
		if !AllowedContentTypeAttachmentFilter(ct) {
			return Result{}, apperror.New(apperror.KindForbiddenContentType, nil)
		}
		disposition = forceAttachment(disposition, opts.Base)
	}

	// application/xhtml+xml is rewritten exactly like text/html.
	if ct.SubType == "xhtml" {
		ct.TopLevelType = "text"
		ct.SubType = "html"
		ct.Suffix = ""
	}

	if ct.TopLevelType == "text" {
		body, err = normalizeCharset(body, rawContentType)
		if err != nil {
			return Result{}, apperror.New(apperror.KindUTF8Decode, err)
		}
		ct.Parameters["charset"] = "UTF-8"
	}

	ct.FilterParameters(AllowedContentTypeParameters)

	switch {
	case ct.SubType == "css" && ct.Suffix == "":
		rewritten, err := rewriteCSS(opts, body)
		if err != nil {
			return Result{}, apperror.New(apperror.KindRewriteFailure, err)
		}
		return Result{Body: rewritten, ContentType: ct.String(), ContentDisposition: disposition}, nil

	case ct.SubType == "html" && ct.Suffix == "":
		res, err := htmlrewrite.New(opts.Base, opts.Codec, opts.LazyImages, opts.HeaderBanner, opts.HeaderStyle).Rewrite(body)
		if err != nil {
			return Result{}, apperror.New(apperror.KindRewriteFailure, err)
		}
		return Result{
			Body:               res.HTML,
			ContentType:        ct.String(),
			ContentDisposition: disposition,
			StyleHashes:        res.StyleHashes,
			IsHTML:             true,
		}, nil

	default:
		return Result{Body: body, ContentType: ct.String(), ContentDisposition: disposition}, nil
	}
}

func rewriteCSS(opts Options, body []byte) ([]byte, error) {
	rewriter := cssrewrite.New(opts.Base, opts.Codec)
	if err := rewriter.Write(body); err != nil {
		return nil, err
	}
	return rewriter.End()
}

func normalizeCharset(body []byte, rawContentType string) ([]byte, error) {
	enc, name, _ := charset.DetermineEncoding(body, rawContentType)
	if enc == encoding.Nop || strings.EqualFold(name, "utf-8") {
		return body, nil
	}
	return enc.NewDecoder().Bytes(body)
}

// forceAttachment rewrites a Content-Disposition header (or synthesizes one)
// so the browser downloads rather than renders the response, naming the
// file after the origin URL's path when no filename was already set.
func forceAttachment(contentDisposition []byte, origin *url.URL) []byte {
	params := make(map[string]string)

	if contentDisposition != nil {
		if _, parsed, err := mime.ParseMediaType(string(contentDisposition)); err == nil {
			params = parsed
		}
	}

	if _, ok := params["filename"]; !ok && origin != nil {
		params["filename"] = filepath.Base(origin.Path)
	}

	return []byte(mime.FormatMediaType("attachment", params))
}
