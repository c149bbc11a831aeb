package cssrewrite

import (
	"net/url"
	"strings"
	"testing"

	"github.com/friedemannsommer/searproxy-go/internal/capability"
)

const mainCSSRewritten = "./?url=https%3A%2F%2Fwww.example.com%2Fmain.css&hash=7d40cd69599262cfe009ac148491a37e9ec47dcf2386c2807bc2255fff6d5fa3"

func newTestRewriter(t *testing.T) *Rewriter {
	t.Helper()
	base, err := url.Parse("https://www.example.com")
	if err != nil {
		t.Fatal(err)
	}
	return New(base, capability.New([]byte("example")))
}

func rewriteAll(t *testing.T, chunks ...[]byte) string {
	t.Helper()
	r := newTestRewriter(t)
	for _, c := range chunks {
		if err := r.Write(c); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	out, err := r.End()
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	return string(out)
}

func TestNoQuotesSingle(t *testing.T) {
	got := rewriteAll(t, []byte("url(main.css)"))
	want := "url(" + mainCSSRewritten + ")"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSingleQuotes(t *testing.T) {
	got := rewriteAll(t, []byte("url('main.css')"))
	want := "url('" + mainCSSRewritten + "')"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDoubleQuotes(t *testing.T) {
	got := rewriteAll(t, []byte(`url("main.css")`))
	want := `url("` + mainCSSRewritten + `")`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRepeatedFiveTimes(t *testing.T) {
	got := rewriteAll(t, []byte(strings.Repeat("url(main.css)", 5)))
	want := strings.Repeat("url("+mainCSSRewritten+")", 5)
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestAbsoluteURLInsideQuotes(t *testing.T) {
	got := rewriteAll(t, []byte("url('https://www.example.com/main.css')"))
	want := "url('" + mainCSSRewritten + "')"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestChunkBoundaryIndependenceSingleQuote(t *testing.T) {
	pad := []byte(strings.Repeat(" ", 2048))
	got := rewriteAll(
		t,
		pad,
		[]byte("ur"),
		[]byte("l ( "),
		pad,
		[]byte("'"),
		[]byte("https://www."),
		[]byte("example.com"),
		[]byte("/main.css'"),
		[]byte("  ) "),
		pad,
	)
	want := "url('" + mainCSSRewritten + "')"
	if !strings.Contains(got, want) {
		t.Errorf("got %q, want it to contain %q", got, want)
	}
}

func TestChunkBoundaryIndependenceNoQuotes(t *testing.T) {
	got := rewriteAll(
		t,
		[]byte(strings.Repeat(" ", 2048)),
		[]byte("ur"),
		[]byte("l ("),
		[]byte("https://www."),
		[]byte("example.com"),
		[]byte("/main.css"),
		[]byte(") "),
		[]byte(strings.Repeat(" ", 2048)),
	)
	want := "url(" + mainCSSRewritten + ")"
	if !strings.Contains(got, want) {
		t.Errorf("got %q, want it to contain %q", got, want)
	}
}

func TestChunkPartitioningProducesIdenticalOutput(t *testing.T) {
	input := []byte(`html { background: url(./a.jpg); } body { background: url("http://aa.bb/cc"); }`)

	whole := rewriteAll(t, input)

	r := newTestRewriter(t)
	for _, b := range input {
		if err := r.Write([]byte{b}); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	out, err := r.End()
	if err != nil {
		t.Fatalf("End: %v", err)
	}

	if string(out) != whole {
		t.Errorf("byte-at-a-time output %q differs from single-chunk output %q", out, whole)
	}
}

func TestUppercaseURLIsNotRecognized(t *testing.T) {
	got := rewriteAll(t, []byte("URL(main.css)"))
	if got != "URL(main.css)" {
		t.Errorf("got %q, want input passed through unchanged", got)
	}
}

func TestNonURLTextPassesThrough(t *testing.T) {
	got := rewriteAll(t, []byte("body { color: red; }"))
	if got != "body { color: red; }" {
		t.Errorf("got %q, want unchanged passthrough", got)
	}
}

func TestIncompleteTokenAtEndIsEmittedLiterally(t *testing.T) {
	r := newTestRewriter(t)
	if err := r.Write([]byte("body { background: ur")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out, err := r.End()
	if err != nil {
		t.Fatalf("End returned error for incomplete trailing token: %v", err)
	}
	if string(out) != "body { background: ur" {
		t.Errorf("got %q, want literal passthrough of incomplete token", out)
	}
}
