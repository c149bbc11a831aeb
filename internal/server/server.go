// Package server wires internal/fetch into a fasthttp request handler: the
// landing page, the url/hash capability route, the bundled static assets
// and the default security headers every response carries.
package server

import (
	"errors"
	"net/url"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/friedemannsommer/searproxy-go/internal/apperror"
	"github.com/friedemannsommer/searproxy-go/internal/assets"
	"github.com/friedemannsommer/searproxy-go/internal/capability"
	"github.com/friedemannsommer/searproxy-go/internal/csp"
	"github.com/friedemannsommer/searproxy-go/internal/fetch"
	"github.com/friedemannsommer/searproxy-go/internal/templates"
)

// originMethodField is the hidden input name the form-hardening rewrite
// writes, carrying the form's original method (GET/POST) past the forced
// POST.
const originMethodField = "_searproxy_origin_method"

// Server dispatches requests to the fetch client and renders the proxy's
// own pages.
type Server struct {
	client *fetch.Client
	codec  *capability.Codec
	logger *zap.Logger
}

// New builds a Server around an already-configured fetch.Client.
func New(client *fetch.Client, codec *capability.Codec, logger *zap.Logger) *Server {
	return &Server{client: client, codec: codec, logger: logger}
}

// Handler returns the process-wide fasthttp handler, wrapped in brotli
// response compression.
func (s *Server) Handler() fasthttp.RequestHandler {
	return fasthttp.CompressHandlerBrotliLevel(s.serve, fasthttp.CompressBrotliDefaultCompression)
}

func (s *Server) serve(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Referrer-Policy", "no-referrer")
	ctx.Response.Header.Set("X-Frame-Options", "SAMEORIGIN")
	ctx.Response.Header.Set("X-Content-Type-Options", "nosniff")
	ctx.Response.Header.Set("Content-Security-Policy", csp.ForStatic())

	switch string(ctx.Path()) {
	case "/favicon.ico":
		serveAsset(ctx, assets.FaviconICO, "image/x-icon")
	case "/favicon-16x16.png":
		serveAsset(ctx, assets.Favicon16, "image/png")
	case "/favicon-32x32.png":
		serveAsset(ctx, assets.Favicon32, "image/png")
	case "/robots.txt":
		serveAsset(ctx, assets.RobotsTxt, "text/plain; charset=utf-8")
	case "/main.css":
		serveAsset(ctx, assets.MainStylesheet, "text/css; charset=utf-8")
	case "/header.css":
		serveAsset(ctx, assets.HeaderStylesheet, "text/css; charset=utf-8")
	case "/":
		s.handleIndex(ctx)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		ctx.SetContentType("text/plain; charset=utf-8")
		ctx.SetBodyString("not found")
	}
}

func serveAsset(ctx *fasthttp.RequestCtx, body []byte, contentType string) {
	ctx.SetContentType(contentType)
	ctx.SetBody(body)
}

// handleIndex serves the landing page when no url is given, otherwise
// verifies and fetches the capability through a single entry point.
func (s *Server) handleIndex(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Cache-Control", "no-cache")

	rawURL := string(ctx.QueryArgs().Peek("url"))
	hashHex := string(ctx.QueryArgs().Peek("hash"))

	var form *fetch.FormRequest
	method := fasthttp.MethodGet

	if ctx.IsPost() {
		if rawURL == "" {
			rawURL = string(ctx.PostArgs().Peek("url"))
		}
		if hashHex == "" {
			hashHex = string(ctx.PostArgs().Peek("hash"))
		}

		originMethod := strings.ToUpper(string(ctx.PostArgs().Peek(originMethodField)))
		if originMethod == "" {
			originMethod = fasthttp.MethodGet
		}

		values := url.Values{}
		ctx.PostArgs().VisitAll(func(key, value []byte) {
			switch string(key) {
			case "url", "hash", originMethodField:
				return
			}
			values.Add(string(key), string(value))
		})

		form = &fetch.FormRequest{Method: originMethod, Body: values}
		method = originMethod
	}

	if rawURL == "" {
		s.writeIndex(ctx)
		return
	}
	if hashHex == "" {
		s.writeError(ctx, apperror.New(apperror.KindBadRequest, errors.New("missing hash parameter")))
		return
	}

	acceptLanguage := string(ctx.Request.Header.Peek("Accept-Language"))
	res, err := s.client.Fetch(method, rawURL, hashHex, form, acceptLanguage)
	if err != nil {
		s.writeError(ctx, err)
		return
	}

	if res.Redirect {
		s.writeRedirect(ctx, res)
		return
	}

	s.writeFetched(ctx, res)
}

func (s *Server) writeIndex(ctx *fasthttp.RequestCtx) {
	body, err := templates.RenderIndex()
	if err != nil {
		s.writeRenderFailure(ctx, err)
		return
	}
	ctx.SetContentType("text/html; charset=utf-8")
	ctx.SetBody(body)
}

func (s *Server) writeError(ctx *fasthttp.RequestCtx, cause error) {
	kind := apperror.KindUpstreamRequest
	known := false
	if appErr, ok := cause.(*apperror.Error); ok {
		kind = appErr.Kind
		known = true
	}

	if s.logger != nil {
		if kind.LogLevel() == "error" {
			s.logger.Error("request failed", zap.Error(cause))
		} else {
			s.logger.Info("request rejected", zap.Error(cause))
		}
	}

	body, renderErr := templates.RenderError(kind, known)
	if renderErr != nil {
		s.writeRenderFailure(ctx, renderErr)
		return
	}

	ctx.Response.Header.Set("Cache-Control", "no-cache")
	ctx.SetStatusCode(kind.StatusCode())
	ctx.SetContentType("text/html; charset=utf-8")
	ctx.SetBody(body)
}

func (s *Server) writeRedirect(ctx *fasthttp.RequestCtx, res fetch.Result) {
	body, err := templates.RenderRedirect(res.RedirectStatus, res.Location, res.ExternalURL)
	if err != nil {
		s.writeRenderFailure(ctx, err)
		return
	}
	ctx.SetContentType("text/html; charset=utf-8")
	ctx.SetBody(body)
}

func (s *Server) writeFetched(ctx *fasthttp.RequestCtx, res fetch.Result) {
	out := res.Response

	if out.IsHTML {
		ctx.Response.Header.Set("Content-Security-Policy", csp.ForHTML(out.StyleHashes))
	}
	if len(out.ContentDisposition) > 0 {
		ctx.Response.Header.SetBytesV("Content-Disposition", out.ContentDisposition)
	}

	ctx.SetContentType(out.ContentType)
	ctx.SetBody(out.Body)
}

func (s *Server) writeRenderFailure(ctx *fasthttp.RequestCtx, err error) {
	if s.logger != nil {
		s.logger.Error("template render failed", zap.Error(err))
	}
	ctx.SetStatusCode(fasthttp.StatusInternalServerError)
	ctx.SetContentType("text/plain; charset=utf-8")
	ctx.SetBodyString("internal server error")
}
