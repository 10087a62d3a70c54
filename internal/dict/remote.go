package dict

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"techcharades/internal/domain"
	"techcharades/internal/obslog"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// Remote is a Classifier backed by an external HTTP service. A failed or
// slow call degrades to VerifyUnset so a round is never blocked on the
// classifier: the term simply stays pending for review.
type Remote struct {
	baseURL string
	http    *fasthttp.Client

	timeout  time.Duration
	retryMax int
}

type RemoteOption func(*Remote)

func WithTimeout(d time.Duration) RemoteOption {
	return func(r *Remote) { r.timeout = d }
}

func WithRetry(max int) RemoteOption {
	return func(r *Remote) { r.retryMax = max }
}

func NewRemote(baseURL string, opts ...RemoteOption) *Remote {
	r := &Remote{
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:     &fasthttp.Client{ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second, MaxConnsPerHost: 16},
		timeout:  3 * time.Second,
		retryMax: 2,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type classifyRequest struct {
	Term string `json:"term"`
}

type classifyResponse struct {
	Accepted bool `json:"accepted"`
}

func (r *Remote) Classify(ctx context.Context, term string) domain.Verification {
	k := Normalize(term)
	if k == "" {
		return domain.VerifyUnset
	}
	var resp classifyResponse
	if err := r.doJSON(ctx, "/classify", classifyRequest{Term: k}, &resp); err != nil {
		obslog.L().Warn("classifier_unavailable", zap.String("term", k), zap.Error(err))
		return domain.VerifyUnset
	}
	if resp.Accepted {
		return domain.VerifyAccepted
	}
	return domain.VerifyUnset
}

func (r *Remote) doJSON(ctx context.Context, path string, in any, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	attempts := r.retryMax
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()

		req.Header.SetMethod(fasthttp.MethodPost)
		req.SetRequestURI(r.baseURL + path)
		req.Header.SetContentType("application/json")
		req.SetBody(payload)

		err := r.http.DoTimeout(req, resp, r.timeout)
		if err == nil && resp.StatusCode() == fasthttp.StatusOK {
			body := append([]byte(nil), resp.Body()...)
			fasthttp.ReleaseRequest(req)
			fasthttp.ReleaseResponse(resp)
			if out == nil {
				return nil
			}
			return json.Unmarshal(body, out)
		}
		if err == nil {
			err = fmt.Errorf("classifier status %d", resp.StatusCode())
		}
		lastErr = err
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}
	return lastErr
}
