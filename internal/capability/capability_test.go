package capability

import (
	"net/url"
	"testing"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func TestMintEndToEnd(t *testing.T) {
	codec := New([]byte("example"))
	base := mustParse(t, "https://www.example.com/")

	cases := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "root relative path",
			raw:  "/",
			want: "./?url=https%3A%2F%2Fwww.example.com%2F&hash=85870232cac1676c4477f7cae4da7173ccee4002f32e89c16038547aa20175c0",
		},
		{
			name: "logo path",
			raw:  "/logo.png",
			want: "./?url=https%3A%2F%2Fwww.example.com%2Flogo.png&hash=2aa2717d139a63b3f3fc43fa862c8a73fc7814f1140b5279fc2758bc9d8cc1f9",
		},
		{
			name: "index.html path",
			raw:  "/index.html",
			want: "./?url=https%3A%2F%2Fwww.example.com%2Findex.html&hash=7554946c4d3998da8be40b803c938c943f3dbbbb78958addd008b55bcacfb8c0",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := codec.Mint(base, tc.raw)
			if got != tc.want {
				t.Errorf("Mint(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestMintAbsoluteOverridesBase(t *testing.T) {
	codec := New([]byte("example"))
	base := mustParse(t, "https://example.com/")

	got := codec.Mint(base, "https://www.example.com/")
	want := "./?url=https%3A%2F%2Fwww.example.com%2F&hash=85870232cac1676c4477f7cae4da7173ccee4002f32e89c16038547aa20175c0"

	if got != want {
		t.Errorf("Mint() = %q, want %q", got, want)
	}
}

func TestMintDataURIPassthrough(t *testing.T) {
	codec := New([]byte("example"))
	base := mustParse(t, "https://www.example.com/")

	imageCases := []string{
		"data:image/png;base64,aGVsbG8=",
		"data:image/jpg;base64,aGVsbG8=",
	}
	for _, raw := range imageCases {
		if got := codec.Mint(base, raw); got != raw {
			t.Errorf("Mint(%q) = %q, want unchanged passthrough", raw, got)
		}
	}

	nonImageCases := []string{
		"data:application/javascript,alert(1)",
		"data:text/plain,hello",
	}
	for _, raw := range nonImageCases {
		if got := codec.Mint(base, raw); got != "" {
			t.Errorf("Mint(%q) = %q, want empty string", raw, got)
		}
	}
}

func TestMintFragmentPassthrough(t *testing.T) {
	codec := New([]byte("example"))
	base := mustParse(t, "https://www.example.com/")

	if got := codec.Mint(base, "#about"); got != "#about" {
		t.Errorf("Mint(#about) = %q, want unchanged", got)
	}
}

func TestMintFragmentReattached(t *testing.T) {
	codec := New([]byte("example"))
	base := mustParse(t, "https://www.example.com/")

	got := codec.Mint(base, "/home/#about")
	if got == "" {
		t.Fatal("Mint returned empty string")
	}

	wantPrefix := "./?url=https%3A%2F%2Fwww.example.com%2Fhome%2F&hash="
	if len(got) < len(wantPrefix) || got[:len(wantPrefix)] != wantPrefix {
		t.Errorf("Mint(/home/#about) = %q, want prefix %q", got, wantPrefix)
	}
	if got[len(got)-6:] != "#about" {
		t.Errorf("Mint(/home/#about) = %q, want fragment #about reattached", got)
	}
}

func TestMintVerifyRoundTrip(t *testing.T) {
	codec := New([]byte("example"))
	base := mustParse(t, "https://www.example.com/")

	for _, raw := range []string{"/", "/a/b/c?x=1", "https://another.example.com/path"} {
		minted := codec.Mint(base, raw)

		parsed, err := url.Parse(minted)
		if err != nil {
			t.Fatalf("Mint(%q) produced unparseable URL %q: %v", raw, minted, err)
		}
		q := parsed.Query()

		if !codec.Verify(q.Get("url"), q.Get("hash")) {
			t.Errorf("Verify failed round-trip for raw=%q minted=%q", raw, minted)
		}
	}
}

func TestVerifyRejectsTamperedHash(t *testing.T) {
	codec := New([]byte("example"))

	if codec.Verify("https://www.example.com/", "00") {
		t.Error("Verify accepted a tampered hash")
	}
}

func TestVerifyHexRejectsMalformedHex(t *testing.T) {
	codec := New([]byte("example"))

	_, err := codec.VerifyHex("https://www.example.com/", "not-hex")
	if err == nil {
		t.Error("VerifyHex accepted malformed hex input")
	}
}
