// Package htmlrewrite implements the streaming tag-level HTML rewriter:
// attribute allowlisting, element removal, URL-attribute rewriting via a
// capability codec, inline-<style>/<noscript> handling and header
// injection.
package htmlrewrite

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	stdhtml "html"
	"io"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/friedemannsommer/searproxy-go/internal/capability"
	"github.com/friedemannsommer/searproxy-go/internal/cssrewrite"
)

// Result is the rewritten document plus every inline-style hash collected
// while rewriting it, in document order.
type Result struct {
	HTML        []byte
	StyleHashes []string
}

var removedElements = map[string]bool{
	"applet": true,
	"base":   true,
	"canvas": true,
	"embed":  true,
	"math":   true,
	"script": true,
	"svg":    true,
}

var allowedAttributes = map[string]bool{
	"abbr": true, "accesskey": true, "action": true, "align": true, "alt": true,
	"as": true, "autocomplete": true, "charset": true, "checked": true, "class": true,
	"content": true, "contenteditable": true, "csp": true, "dir": true, "disabled": true,
	"for": true, "frameborder": true, "height": true, "hidden": true, "href": true,
	"hreflang": true, "id": true, "lang": true, "loading": true, "media": true,
	"method": true, "name": true, "nowrap": true, "placeholder": true, "prefetch": true,
	"property": true, "rel": true, "sandbox": true, "scrolling": true, "sizes": true,
	"spellcheck": true, "src": true, "srcset": true, "tabindex": true, "target": true,
	"title": true, "translate": true, "type": true, "value": true, "width": true,
}

var allowedMetaAttributes = map[string]bool{"charset": true, "content": true, "http-equiv": true}
var allowedMetaEquiv = map[string]bool{"content-type": true, "refresh": true, "x-ua-compatible": true}
var allowedLinkRel = map[string]bool{
	"alternate stylesheet": true, "alternate": true, "help": true, "icon": true,
	"license": true, "shortcut icon": true, "stylesheet": true,
}

var srcsetRegexp = regexp.MustCompile(`(?P<url>[\w#!;:.,?~+=*&%@!(')$/\-\[\]]+)(?:\s+\d+(?:\.\d+)?[xw]\s*\d*h?\s*,?|$)`)
var srcsetURLIndex = srcsetRegexp.SubexpIndex("url")
var metaRefreshRegexp = regexp.MustCompile(`(?i)\d+\s*;\s*url\s*=\s*(?P<url>[^$]+)`)
var metaRefreshURLIndex = metaRefreshRegexp.SubexpIndex("url")

// Rewriter rewrites a single response body. Create one per response; it is
// not safe for concurrent use and owns no state beyond a single Rewrite
// call's lifetime.
type Rewriter struct {
	base           *url.URL
	codec          *capability.Codec
	lazyImages     bool
	headerStyle    string
	headerBanner   func(originURL string) string
}

// New returns a Rewriter bound to base and codec. headerBanner renders the
// proxy header banner injected after <body>; headerStyle is the inline
// <style> body appended to <head>.
func New(base *url.URL, codec *capability.Codec, lazyImages bool, headerBanner func(originURL string) string, headerStyle string) *Rewriter {
	return &Rewriter{base: base, codec: codec, lazyImages: lazyImages, headerBanner: headerBanner, headerStyle: headerStyle}
}

// Rewrite sanitizes and rewrites doc, returning the transformed HTML and
// the style hashes of every inline <style> element taken from doc
// (including those inside <noscript>). The injected header stylesheet is
// not hashed here.
func (rw *Rewriter) Rewrite(doc []byte) (Result, error) {
	var out bytes.Buffer
	var hashes []string

	if err := rw.rewriteInto(&out, &hashes, doc, true); err != nil {
		return Result{}, err
	}

	return Result{HTML: out.Bytes(), StyleHashes: hashes}, nil
}

type attr struct {
	name  string
	value []byte
}

func (rw *Rewriter) rewriteInto(out *bytes.Buffer, hashes *[]string, doc []byte, injectHeader bool) error {
	tokenizer := html.NewTokenizer(bytes.NewReader(doc))
	tokenizer.AllowCDATA(true)

	var removedStack []string
	var styleRewriter *cssrewrite.Rewriter

	for {
		tok := tokenizer.Next()
		if tok == html.ErrorToken {
			if err := tokenizer.Err(); err != nil && err != io.EOF {
				return err
			}
			break
		}

		if len(removedStack) > 0 {
			switch tok {
			case html.StartTagToken, html.SelfClosingTagToken:
				tag, _ := tokenizer.TagName()
				if removedElements[string(tag)] && tok != html.SelfClosingTagToken {
					removedStack = append(removedStack, string(tag))
				}
			case html.EndTagToken:
				tag, _ := tokenizer.TagName()
				if removedStack[len(removedStack)-1] == string(tag) {
					removedStack = removedStack[:len(removedStack)-1]
				}
			}
			continue
		}

		switch tok {
		case html.StartTagToken, html.SelfClosingTagToken:
			rawTag, hasAttrs := tokenizer.TagName()
			tag := string(rawTag)

			if removedElements[tag] {
				if tok != html.SelfClosingTagToken {
					removedStack = append(removedStack, tag)
				}
				continue
			}

			var attrs []attr
			if hasAttrs {
				for {
					name, value, more := tokenizer.TagAttr()
					v := make([]byte, len(value))
					copy(v, value)
					attrs = append(attrs, attr{name: string(name), value: v})
					if !more {
						break
					}
				}
			}

			if tag == "noscript" {
				// RAWTEXT element: its content normally arrives as one
				// TextToken, but an empty element (<noscript></noscript>)
				// has no text and the tokenizer hands back the end tag
				// directly — do not consume a further token in that case,
				// or the next sibling gets swallowed with it.
				switch next := tokenizer.Next(); next {
				case html.EndTagToken:
					// already consumed </noscript>; nothing to rewrite.
				case html.ErrorToken:
					if err := tokenizer.Err(); err != nil && err != io.EOF {
						return err
					}
				default:
					nested, nestedErr := rw.rewriteNoscript(tokenizer.Raw())
					if nestedErr != nil {
						return nestedErr
					}
					out.Write(nested.HTML)
					*hashes = append(*hashes, nested.StyleHashes...)
					tokenizer.Next() // consume the </noscript> end tag
				}
				continue
			}

			if tag == "meta" {
				rendered, keep := rw.renderMeta(attrs)
				if keep {
					out.WriteString(rendered)
				}
				continue
			}

			if tag == "link" {
				rendered, keep := rw.renderLink(attrs)
				if keep {
					out.WriteString(rendered)
				}
				continue
			}

			kept := filterAttrs(attrs)

			if tag == "img" {
				kept = rw.normalizeImg(kept)
			}
			if tag == "img" || tag == "source" {
				kept = rw.rewriteSrcset(kept)
			}
			originalMethod, hadMethod := "", false
			if tag == "form" {
				originalMethod, hadMethod = findAttr(kept, "method")
				kept = hardenFormAttrs(kept)
			}

			out.WriteByte('<')
			out.WriteString(tag)
			rw.writeAttrs(out, tag, kept)

			if tok == html.SelfClosingTagToken {
				out.WriteString(" />")
			} else {
				out.WriteByte('>')
				if tag == "style" {
					styleRewriter = cssrewrite.New(rw.base, rw.codec)
				}
				if tag == "body" && injectHeader && rw.headerBanner != nil {
					out.WriteString(rw.headerBanner(rw.base.String()))
				}
			}

			if tag == "form" && hadMethod {
				writeOriginMethodInput(out, originalMethod)
			}

		case html.EndTagToken:
			tag, _ := tokenizer.TagName()

			switch string(tag) {
			case "style":
				if styleRewriter != nil {
					flushed, err := styleRewriter.End()
					if err != nil {
						return err
					}
					sum := sha256.Sum256(flushed)
					*hashes = append(*hashes, "'sha256-"+base64.StdEncoding.EncodeToString(sum[:])+"'")
					out.Write(flushed)
					styleRewriter = nil
				}
				out.WriteString("</style>")
			case "head":
				if injectHeader && rw.headerStyle != "" {
					out.WriteString("<style>")
					out.WriteString(rw.headerStyle)
					out.WriteString("</style>")
				}
				out.WriteString("</head>")
			default:
				out.WriteByte('<')
				out.WriteByte('/')
				out.Write(tag)
				out.WriteByte('>')
			}

		case html.TextToken:
			if styleRewriter != nil {
				if err := styleRewriter.Write(tokenizer.Raw()); err != nil {
					return err
				}
			} else {
				out.Write(tokenizer.Raw())
			}

		case html.CommentToken:
			// comments are dropped.
		case html.DoctypeToken:
			out.Write(tokenizer.Raw())
		}
	}

	return nil
}

func (rw *Rewriter) rewriteNoscript(raw []byte) (Result, error) {
	var out bytes.Buffer
	var hashes []string
	if err := rw.rewriteInto(&out, &hashes, raw, false); err != nil {
		return Result{}, err
	}
	return Result{HTML: out.Bytes(), StyleHashes: hashes}, nil
}

func filterAttrs(attrs []attr) []attr {
	kept := attrs[:0:0]
	for _, a := range attrs {
		if allowedAttributes[a.name] {
			kept = append(kept, a)
		}
	}
	return kept
}

func findAttr(attrs []attr, name string) (string, bool) {
	for _, a := range attrs {
		if a.name == name {
			return string(a.value), true
		}
	}
	return "", false
}

func (rw *Rewriter) writeAttrs(out *bytes.Buffer, tag string, attrs []attr) {
	for _, a := range attrs {
		switch a.name {
		case "href", "src", "action":
			decoded := stdhtml.UnescapeString(string(a.value))
			minted := rw.codec.Mint(rw.base, decoded)
			writeRawAttr(out, a.name, minted)
		case "srcset":
			// already minted by rewriteSrcsetValue; writing it through
			// EscapeString would turn its "&hash=" into "&amp;hash=".
			writeRawAttr(out, a.name, string(a.value))
		default:
			writeEscapedAttr(out, a.name, string(a.value))
		}
	}
}

// writeRawAttr writes a minted (or passed-through) URL attribute without
// HTML-entity-escaping it, so a capability URL keeps its literal "&hash=".
// Only double quotes are escaped: pass-through "#..."/data: values and URL
// fragments may contain them.
func writeRawAttr(out *bytes.Buffer, name, value string) {
	out.WriteByte(' ')
	out.WriteString(name)
	out.WriteString(`="`)
	out.WriteString(strings.ReplaceAll(value, `"`, "&quot;"))
	out.WriteByte('"')
}

func writeEscapedAttr(out *bytes.Buffer, name, value string) {
	out.WriteByte(' ')
	out.WriteString(name)
	out.WriteString(`="`)
	out.WriteString(stdhtml.EscapeString(value))
	out.WriteByte('"')
}

func (rw *Rewriter) normalizeImg(attrs []attr) []attr {
	out := attrs[:0:0]
	hasDecoding := false
	for _, a := range attrs {
		switch a.name {
		case "decoding":
			hasDecoding = true
			out = append(out, attr{name: "decoding", value: []byte("async")})
		case "loading":
			if rw.lazyImages {
				out = append(out, attr{name: "loading", value: []byte("lazy")})
			}
		default:
			out = append(out, a)
		}
	}
	if !hasDecoding {
		out = append(out, attr{name: "decoding", value: []byte("async")})
	}
	if rw.lazyImages {
		hasLoading := false
		for _, a := range out {
			if a.name == "loading" {
				hasLoading = true
			}
		}
		if !hasLoading {
			out = append(out, attr{name: "loading", value: []byte("lazy")})
		}
	}
	return out
}

func (rw *Rewriter) rewriteSrcset(attrs []attr) []attr {
	for i, a := range attrs {
		if a.name != "srcset" {
			continue
		}
		attrs[i].value = []byte(rw.rewriteSrcsetValue(string(a.value)))
	}
	return attrs
}

func (rw *Rewriter) rewriteSrcsetValue(value string) string {
	matches := srcsetRegexp.FindAllStringSubmatchIndex(value, -1)
	if matches == nil {
		return value
	}

	var sb strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[2*srcsetURLIndex], m[2*srcsetURLIndex+1]
		if start < 0 {
			continue
		}
		sb.WriteString(value[last:start])
		decoded := stdhtml.UnescapeString(value[start:end])
		sb.WriteString(rw.codec.Mint(rw.base, decoded))
		last = end
	}
	sb.WriteString(value[last:])
	return sb.String()
}

// hardenFormAttrs forces method=POST and target=_self on every <form>,
// regardless of what the page originally requested; the original method is
// preserved separately as a hidden input so the client can still signal
// "this was a GET" back to the fetch orchestrator.
func hardenFormAttrs(attrs []attr) []attr {
	out := attrs[:0:0]
	for _, a := range attrs {
		if a.name == "method" || a.name == "target" {
			continue
		}
		out = append(out, a)
	}
	out = append(out, attr{name: "method", value: []byte("POST")})
	out = append(out, attr{name: "target", value: []byte("_self")})
	return out
}

func writeOriginMethodInput(out *bytes.Buffer, method string) {
	out.WriteString(`<input type="hidden" name="_searproxy_origin_method" value="`)
	out.WriteString(stdhtml.EscapeString(method))
	out.WriteString(`">`)
}

func (rw *Rewriter) renderLink(attrs []attr) (string, bool) {
	kept := filterAttrs(attrs)
	rel, ok := findAttr(kept, "rel")
	if !ok || !allowedLinkRel[strings.ToLower(rel)] {
		return "", false
	}

	var out bytes.Buffer
	out.WriteString("<link")
	rw.writeAttrs(&out, "link", kept)
	out.WriteString(" />")
	return out.String(), true
}

func (rw *Rewriter) renderMeta(attrs []attr) (string, bool) {
	for _, a := range attrs {
		if !allowedMetaAttributes[a.name] {
			return "", false
		}
	}

	keep := true
	contentPrefix, contentRewritten, hasOverride := "", "", false

	if equiv, ok := findAttr(attrs, "http-equiv"); ok {
		lc := strings.ToLower(strings.TrimSpace(equiv))
		if !allowedMetaEquiv[lc] {
			keep = false
		}
		if lc == "refresh" {
			if content, ok2 := findAttr(attrs, "content"); ok2 {
				m := metaRefreshRegexp.FindStringSubmatchIndex(content)
				if m != nil {
					start, end := m[2*metaRefreshURLIndex], m[2*metaRefreshURLIndex+1]
					decoded := stdhtml.UnescapeString(strings.TrimSpace(content[start:end]))
					contentPrefix = content[:start]
					contentRewritten = rw.codec.Mint(rw.base, decoded)
					hasOverride = true
					keep = true
				} else {
					keep = false
				}
			} else {
				keep = false
			}
		}
	} else if _, ok := findAttr(attrs, "charset"); !ok {
		keep = false
	}

	if !keep {
		return "", false
	}

	var out bytes.Buffer
	out.WriteString("<meta")
	for _, a := range attrs {
		if hasOverride && a.name == "content" {
			out.WriteString(` content="`)
			out.WriteString(stdhtml.EscapeString(contentPrefix))
			out.WriteString(contentRewritten)
			out.WriteByte('"')
			continue
		}
		writeEscapedAttr(&out, a.name, string(a.value))
	}
	out.WriteString(" />")
	return out.String(), true
}
