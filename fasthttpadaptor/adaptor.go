// Package fasthttpadaptor adapts a fasthttp.RequestHandler onto the
// engine's Listener/StreamHandle interfaces, translating HPACK-decoded
// pseudo-headers into a fasthttp.Request and a fasthttp.Response back
// into outgoing HEADERS/DATA.
package fasthttpadaptor

import (
	"bytes"
	"strconv"
	"sync"

	http2 "github.com/arborian/h2core"
	"github.com/valyala/fasthttp"
)

// Handler adapts h onto http2.Listener: every admitted stream is run to
// completion on its own goroutine, decoupled from the arbiter.
type Handler struct {
	Handler fasthttp.RequestHandler

	ctxPool sync.Pool
}

// New wraps h as an http2.Listener.
func New(h fasthttp.RequestHandler) *Handler {
	return &Handler{Handler: h}
}

// Accept implements http2.Listener.
func (a *Handler) Accept(h *http2.StreamHandle) bool {
	go a.serve(h)
	return true
}

func (a *Handler) acquireCtx() *fasthttp.RequestCtx {
	if v := a.ctxPool.Get(); v != nil {
		return v.(*fasthttp.RequestCtx)
	}
	return &fasthttp.RequestCtx{}
}

func (a *Handler) releaseCtx(ctx *fasthttp.RequestCtx) {
	ctx.Request.Reset()
	ctx.Response.Reset()
	a.ctxPool.Put(ctx)
}

func (a *Handler) serve(h *http2.StreamHandle) {
	block, err := h.ReadHeaders()
	if err != nil {
		return
	}

	ctx := a.acquireCtx()
	defer a.releaseCtx(ctx)

	for i := range block.Headers {
		translateRequestHeader(&ctx.Request, &block.Headers[i])
	}

	if !block.EndOfStream {
		for {
			chunk, rerr := h.Read()
			if rerr != nil || chunk == nil {
				break
			}
			ctx.Request.AppendBody(chunk)
		}
	}

	a.Handler(ctx)

	fields := translateResponseHeaders(nil, &ctx.Response)
	body := ctx.Response.Body()

	if err := h.WriteHeaders(fields, len(body) == 0); err != nil {
		return
	}
	if len(body) > 0 {
		_ = h.Write(body, true)
	}
}

// translateRequestHeader applies one decoded header field to req,
// resolving HTTP/2 pseudo-headers (:method, :path, :scheme, :authority)
// into their fasthttp equivalents.
//
// Grounded on the teacher's fasthttpRequestHeaders (adaptor.go).
func translateRequestHeader(req *fasthttp.Request, hf *http2.HeaderField) {
	k, v := hf.KeyBytes(), hf.ValueBytes()

	if !hf.IsPseudo() {
		if bytes.EqualFold(k, http2.StringUserAgent) {
			req.Header.SetUserAgentBytes(v)
			return
		}
		if bytes.EqualFold(k, http2.StringContentType) {
			req.Header.SetContentTypeBytes(v)
			return
		}
		req.Header.AddBytesKV(k, v)
		return
	}

	switch {
	case bytes.Equal(k, http2.StringMethod):
		req.Header.SetMethodBytes(v)
	case bytes.Equal(k, http2.StringPath):
		req.SetRequestURIBytes(v)
	case bytes.Equal(k, http2.StringScheme):
		req.URI().SetSchemeBytes(v)
	case bytes.Equal(k, http2.StringAuthority):
		req.URI().SetHostBytes(v)
		req.Header.SetHostBytes(v)
	}
}

// translateResponseHeaders builds the outgoing HEADERS field list from
// a fasthttp.Response: :status first, content-length, server: h2core,
// then every regular header lowercased (HTTP/2 forbids mixed-case
// field names).
//
// Grounded on the teacher's fasthttpResponseHeaders (adaptor.go).
func translateResponseHeaders(dst []http2.HeaderField, res *fasthttp.Response) []http2.HeaderField {
	var hf http2.HeaderField

	hf.SetKeyBytes(http2.StringStatus)
	hf.SetValue(strconv.Itoa(res.Header.StatusCode()))
	dst = append(dst, hf)

	hf = http2.HeaderField{}
	hf.SetKeyBytes(http2.StringContentLength)
	hf.SetValue(strconv.Itoa(len(res.Body())))
	dst = append(dst, hf)

	hf = http2.HeaderField{}
	hf.SetKeyBytes(http2.StringServer)
	hf.SetValue("h2core")
	dst = append(dst, hf)

	res.Header.VisitAll(func(k, v []byte) {
		var field http2.HeaderField
		field.SetBytes(http2.ToLower(append([]byte(nil), k...)), v)
		dst = append(dst, field)
	})

	return dst
}
