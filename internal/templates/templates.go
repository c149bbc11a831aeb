// Package templates renders the proxy's own HTML pages (landing page, error
// page, redirect-confirmation page, and the in-page header banner injected
// into rewritten pages) using html/template.
package templates

import (
	"bytes"
	"html/template"

	"github.com/friedemannsommer/searproxy-go/internal/apperror"
	"github.com/friedemannsommer/searproxy-go/internal/assets"
)

const baseSource = `<!doctype html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="color-scheme" content="dark light">
<meta name="viewport" content="width=device-width, initial-scale=1, maximum-scale=1.0, user-scalable=1">
<title>SearProxy</title>
<link rel="icon" type="image/png" sizes="32x32" href="./favicon-32x32.png">
<link rel="icon" type="image/png" sizes="16x16" href="./favicon-16x16.png">
<link rel="icon" type="image/ico" sizes="16x16" href="./favicon.ico">
<style>{{.Stylesheet}}</style>
</head>
<body>
<div class="container">
<h1>SearProxy</h1>
{{.Header}}
<main>{{.Content}}</main>
</div>
<div class="footer">
<p>SearProxy rewrites pages to exclude potentially malicious HTML tags and CSS/HTML attributes. It also rewrites links to external resources to prevent third-party information leaks.<br>
<a href="https://github.com/friedemannsommer/searproxy-go" target="_blank" rel="noopener noreferrer">view on github</a></p>
</div>
</body>
</html>`

type basePage struct {
	Stylesheet template.CSS
	Header     template.HTML
	Content    template.HTML
}

var base = template.Must(template.New("base").Parse(baseSource))

func render(header, content template.HTML) ([]byte, error) {
	var buf bytes.Buffer
	err := base.Execute(&buf, basePage{
		Stylesheet: template.CSS(assets.MainStylesheet),
		Header:     header,
		Content:    content,
	})
	return buf.Bytes(), err
}

const indexSource = `<h2>This is a search-results-friendly web proxy which excludes potentially malicious HTML tags.<br>
It also rewrites links to external resources to prevent leaks.</h2>
<form method="get" action="./">
<input type="url" placeholder="https://example.com" name="url" required autofocus />
<input type="submit" value="Go" />
</form>
<h3>Direct URL opening is not supported without a signed capability.</h3>`

var indexTpl = template.Must(template.New("index").Parse(indexSource))

// RenderIndex renders the proxy's landing page.
func RenderIndex() ([]byte, error) {
	var buf bytes.Buffer
	if err := indexTpl.Execute(&buf, nil); err != nil {
		return nil, err
	}
	return render("", template.HTML(buf.String()))
}

const errorSource = `<h2>Request failed</h2>
{{if .HasDetail}}
<h3>Reason: {{.Name}}</h3>
<p>{{.Description}}</p>
{{else}}
<h3>While trying to process the request, an unexpected error occurred.</h3>
<p>Consider <a href="https://github.com/friedemannsommer/searproxy-go/issues" target="_blank" rel="noopener noreferrer">opening an issue</a>.</p>
{{end}}`

var errorTpl = template.Must(template.New("error").Parse(errorSource))

type errorPage struct {
	HasDetail   bool
	Name        string
	Description string
}

// RenderError renders the error page for kind. When known is true the page
// shows kind's name and description; otherwise it shows a generic message.
func RenderError(kind apperror.Kind, known bool) ([]byte, error) {
	var buf bytes.Buffer
	err := errorTpl.Execute(&buf, errorPage{
		HasDetail:   known,
		Name:        kind.Name(),
		Description: kind.Description(),
	})
	if err != nil {
		return nil, err
	}
	return render("", template.HTML(buf.String()))
}

const redirectSource = `<h2>Server returned redirect</h2>
<p>Status code: {{.StatusCode}}</p>
<h3>If you want to follow the returned URL, click the link below:</h3>
<a href="{{.InternalURL}}" target="_blank" rel="noopener noreferrer">{{.ExternalURL}}</a>`

var redirectTpl = template.Must(template.New("redirect").Parse(redirectSource))

type redirectPage struct {
	StatusCode  int
	InternalURL string
	ExternalURL string
}

// RenderRedirect renders the confirmation page shown instead of
// auto-following a non-GET (or disabled follow-redirects) upstream redirect.
func RenderRedirect(statusCode int, internalURL, externalURL string) ([]byte, error) {
	var buf bytes.Buffer
	err := redirectTpl.Execute(&buf, redirectPage{
		StatusCode:  statusCode,
		InternalURL: internalURL,
		ExternalURL: externalURL,
	})
	if err != nil {
		return nil, err
	}
	return render("", template.HTML(buf.String()))
}

const headerSource = `<input type="checkbox" id="searproxy-toggle" autocomplete="off" />
<div id="searproxy-header">
<label for="searproxy-toggle">hide</label>
<span><a href="./">SearProxy</a></span>
This is a <a href="https://github.com/friedemannsommer/searproxy-go" target="_blank" rel="noopener noreferrer">proxified and sanitized</a> view of the page, visit <a href="{{.OriginURL}}" rel="noreferrer">original site</a>.
</div>`

var headerTpl = template.Must(template.New("header").Parse(headerSource))

type headerPage struct {
	OriginURL string
}

// RenderHeaderBanner renders the in-page banner injected right after
// <body>, linking back to the unproxied origin.
func RenderHeaderBanner(originURL string) string {
	var buf bytes.Buffer
	if err := headerTpl.Execute(&buf, headerPage{OriginURL: originURL}); err != nil {
		return ""
	}
	return buf.String()
}

// HeaderStylesheet is the inline <style> body appended to <head> so the
// banner renders correctly without a separate stylesheet request.
func HeaderStylesheet() string {
	return string(assets.HeaderStylesheet)
}
