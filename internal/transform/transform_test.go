package transform

import (
	"net/url"
	"strings"
	"testing"

	"github.com/friedemannsommer/searproxy-go/internal/apperror"
	"github.com/friedemannsommer/searproxy-go/internal/capability"
)

func baseOpts(t *testing.T) Options {
	t.Helper()
	base, err := url.Parse("https://www.example.com/")
	if err != nil {
		t.Fatalf("parse base: %v", err)
	}
	return Options{
		Base:  base,
		Codec: capability.New([]byte("example")),
	}
}

func TestApplyHTMLRewritesBody(t *testing.T) {
	res, err := Apply(baseOpts(t), "text/html; charset=utf-8", []byte(`<a href="/">x</a>`))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !res.IsHTML {
		t.Error("IsHTML = false, want true")
	}
	if !strings.Contains(string(res.Body), "./?url=") {
		t.Errorf("Body = %q, want rewritten href", res.Body)
	}
	if res.ContentType != "text/html; charset=UTF-8" {
		t.Errorf("ContentType = %q", res.ContentType)
	}
}

func TestApplyXHTMLTreatedAsHTML(t *testing.T) {
	res, err := Apply(baseOpts(t), "application/xhtml+xml", []byte(`<a href="/">x</a>`))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !res.IsHTML {
		t.Error("IsHTML = false, want true for application/xhtml+xml")
	}
}

func TestApplyCSSRewritesBody(t *testing.T) {
	res, err := Apply(baseOpts(t), "text/css", []byte(`body{background:url(/bg.png)}`))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !strings.Contains(string(res.Body), "./?url=") {
		t.Errorf("Body = %q, want rewritten url()", res.Body)
	}
	if res.IsHTML {
		t.Error("IsHTML = true, want false for text/css")
	}
}

func TestApplyImagePassesThroughUnchanged(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G', 0, 1, 2, 3}
	res, err := Apply(baseOpts(t), "image/png", payload)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if string(res.Body) != string(payload) {
		t.Error("image body was modified")
	}
}

func TestApplyForbiddenContentTypeRejected(t *testing.T) {
	_, err := Apply(baseOpts(t), "application/x-msdownload", []byte("MZ"))
	if err == nil {
		t.Fatal("Apply did not reject a forbidden content type")
	}
	appErr, ok := err.(*apperror.Error)
	if !ok {
		t.Fatalf("err = %T, want *apperror.Error", err)
	}
	if appErr.Kind != apperror.KindForbiddenContentType {
		t.Errorf("Kind = %v, want KindForbiddenContentType", appErr.Kind)
	}
}

func TestApplyAttachmentContentTypeForcesDisposition(t *testing.T) {
	opts := baseOpts(t)
	res, err := Apply(opts, "application/pdf", []byte("%PDF-1.4"))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.ContentDisposition == nil {
		t.Fatal("ContentDisposition = nil, want forced attachment")
	}
	if !strings.Contains(string(res.ContentDisposition), "attachment") {
		t.Errorf("ContentDisposition = %q, want attachment", res.ContentDisposition)
	}
}

func TestApplyMalformedContentTypeIsMimeParseError(t *testing.T) {
	_, err := Apply(baseOpts(t), "", []byte("hi"))
	if err == nil {
		t.Fatal("Apply accepted an empty Content-Type")
	}
	appErr, ok := err.(*apperror.Error)
	if !ok {
		t.Fatalf("err = %T, want *apperror.Error", err)
	}
	if appErr.Kind != apperror.KindMimeParse {
		t.Errorf("Kind = %v, want KindMimeParse", appErr.Kind)
	}
}
