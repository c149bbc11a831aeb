// Package fetch verifies a capability, enforces the host guard, issues the
// outbound request via fasthttp and hands the response to internal/transform.
package fetch

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpproxy"

	"github.com/friedemannsommer/searproxy-go/internal/apperror"
	"github.com/friedemannsommer/searproxy-go/internal/capability"
	"github.com/friedemannsommer/searproxy-go/internal/hostguard"
	"github.com/friedemannsommer/searproxy-go/internal/transform"
)

// MaxRedirectCount bounds how many upstream redirects a single GET will
// follow before giving up.
const MaxRedirectCount = 5

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:96.0) Gecko/20100101 Firefox/96.0"

// Client issues outbound requests on behalf of verified capabilities.
type Client struct {
	http            *fasthttp.Client
	codec           *capability.Codec
	guard           *hostguard.Guard
	followRedirects bool
	requestTimeout  time.Duration
	lazyImages      bool
	headerBanner    func(originURL string) string
	headerStyle     string
}

// Options configures a new Client.
type Options struct {
	Codec           *capability.Codec
	Guard           *hostguard.Guard
	ProxyAddress    string
	UseSystemProxy  bool
	SOCKS5Address   string
	FollowRedirects bool
	RequestTimeout  time.Duration
	LazyImages      bool
	HeaderBanner    func(originURL string) string
	HeaderStyle     string
	// Dial overrides the dialer selected from ProxyAddress/UseSystemProxy/
	// SOCKS5Address below. Exposed so tests can point the client at an
	// in-memory listener instead of a real proxy or direct dial.
	Dial fasthttp.DialFunc
}

// NewClient builds the process-wide outbound HTTP client.
func NewClient(opts Options) *Client {
	httpClient := &fasthttp.Client{
		MaxResponseBodySize: 10 * 1024 * 1024,
		ReadBufferSize:      16 * 1024,
	}

	switch {
	case opts.Dial != nil:
		httpClient.Dial = opts.Dial
	case opts.UseSystemProxy:
		httpClient.Dial = fasthttpproxy.FasthttpProxyHTTPDialer()
	case opts.SOCKS5Address != "":
		httpClient.Dial = fasthttpproxy.FasthttpSocksDialer(opts.SOCKS5Address)
	case opts.ProxyAddress != "":
		httpClient.Dial = fasthttpproxy.FasthttpHTTPDialer(opts.ProxyAddress)
	default:
		httpClient.Dial = fasthttp.Dial
	}

	return &Client{
		http:            httpClient,
		codec:           opts.Codec,
		guard:           opts.Guard,
		followRedirects: opts.FollowRedirects,
		requestTimeout:  opts.RequestTimeout,
		lazyImages:      opts.LazyImages,
		headerBanner:    opts.HeaderBanner,
		headerStyle:     opts.HeaderStyle,
	}
}

// FormRequest carries a submitted <form>'s method and field values.
type FormRequest struct {
	Method string
	Body   url.Values
}

// Result is either a rendered response or an instruction to redirect.
type Result struct {
	Redirect       bool
	RedirectStatus int
	Location       string
	ExternalURL    string
	Response       transform.Result
}

// Fetch verifies rawURL against hashHex, enforces the host guard, issues the
// outbound request and dispatches the response through internal/transform.
// acceptLanguage, when non-empty, is forwarded to the origin unchanged.
func (c *Client) Fetch(method, rawURL, hashHex string, form *FormRequest, acceptLanguage string) (Result, error) {
	ok, err := c.codec.VerifyHex(rawURL, hashHex)
	if err != nil {
		return Result{}, apperror.New(apperror.KindHex, err)
	}
	if !ok {
		return Result{}, apperror.New(apperror.KindInvalidHash, nil)
	}

	target, err := url.Parse(rawURL)
	if err != nil {
		return Result{}, apperror.New(apperror.KindURLParse, err)
	}

	return c.fetch(method, target, form, acceptLanguage, 0)
}

func (c *Client) fetch(method string, target *url.URL, form *FormRequest, acceptLanguage string, redirectCount int) (Result, error) {
	if err := c.guard.Check(context.Background(), target.Hostname()); err != nil {
		if errors.Is(err, hostguard.ErrResolve) {
			return Result{}, apperror.New(apperror.KindResolveHostname, err)
		}
		return Result{}, apperror.New(apperror.KindIPRangeDenied, err)
	}

	if form != nil && form.Method != fasthttp.MethodPost {
		appendFormParams(target, form.Body)
		form = nil
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetConnectionClose()
	req.Header.SetMethod(method)
	req.Header.SetUserAgentBytes([]byte(userAgent))
	req.Header.Set("Accept", "*/*")
	if acceptLanguage != "" {
		req.Header.Set("Accept-Language", acceptLanguage)
	}
	req.SetRequestURI(target.String())

	if form != nil {
		req.Header.SetContentType("application/x-www-form-urlencoded")
		req.SetBodyString(form.Body.Encode())
	}

	if err := c.http.DoTimeout(req, resp, c.requestTimeout); err != nil {
		return Result{}, apperror.New(apperror.KindUpstreamRequest, err)
	}

	status := resp.StatusCode()

	if status >= 300 && status < 400 {
		location := resp.Header.Peek("Location")
		if location == nil {
			return Result{}, apperror.New(apperror.KindUnexpectedStatus, errors.New("redirect without Location header"))
		}

		parsedLocation, err := url.Parse(string(location))
		if err != nil {
			return Result{}, apperror.New(apperror.KindURLParse, err)
		}
		locationURL := target.ResolveReference(parsedLocation)

		if c.followRedirects && method == fasthttp.MethodGet {
			if redirectCount >= MaxRedirectCount {
				return Result{}, apperror.New(apperror.KindUnexpectedStatus, errors.New("too many redirects"))
			}
			return c.fetch(method, locationURL, nil, acceptLanguage, redirectCount+1)
		}

		return Result{
			Redirect:       true,
			RedirectStatus: status,
			Location:       c.codec.Mint(target, locationURL.String()),
			ExternalURL:    locationURL.String(),
		}, nil
	}

	if status != fasthttp.StatusOK {
		return Result{}, apperror.New(apperror.KindUnexpectedStatus, errors.New("invalid response: "+strconv.Itoa(status)))
	}

	contentType := resp.Header.Peek("Content-Type")
	if contentType == nil {
		return Result{}, apperror.New(apperror.KindMimeParse, errors.New("missing Content-Type"))
	}

	var disposition []byte
	if cd := resp.Header.Peek("Content-Disposition"); cd != nil {
		disposition = append([]byte(nil), cd...)
	}

	body := append([]byte(nil), resp.Body()...)

	res, err := transform.Apply(transform.Options{
		Base:               target,
		Codec:              c.codec,
		LazyImages:         c.lazyImages,
		HeaderBanner:       c.headerBanner,
		HeaderStyle:        c.headerStyle,
		ContentDisposition: disposition,
	}, string(contentType), body)
	if err != nil {
		return Result{}, err
	}

	return Result{Response: res}, nil
}

func appendFormParams(target *url.URL, body url.Values) {
	query := target.Query()
	for key, values := range body {
		for _, v := range values {
			query.Add(key, v)
		}
	}
	target.RawQuery = query.Encode()
}
