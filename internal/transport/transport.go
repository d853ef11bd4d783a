// Package transport implements the HTTP exchange capability consumed by the
// cipherise protocol core. It parses JSON bodies and classifies server
// rejections into the error kinds the core dispatches on.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/forticode/cipherise-sdk-go/internal/observability"
)

const (
	// sessionTokenHeader carries the Service session token on authenticated calls.
	sessionTokenHeader = "sessionToken"

	// traceIdHeader propagates the exchange trace id for server side correlation.
	traceIdHeader = "X-Trace-Id"
)

// Transport abstracts JSON exchanges with a Cipherise server.
//
// The URL variants target absolute URLs handed out by the server inside
// previous responses. The URI variants resolve uri against the server base URL.
// sessionToken may be empty, meaning the call is not session authenticated.
//
// Errors returned by a Transport are classified: ErrSessionExpired when the
// server rejected the session token, ErrTimeout on proxy/gateway timeouts and
// empty bodies, a generic transport error otherwise.
type Transport interface {
	GetURL(ctx context.Context, url string, sessionToken string, dst any) error
	PostURL(ctx context.Context, url string, sessionToken string, body any, dst any) error
	GetURI(ctx context.Context, uri string, sessionToken string, dst any) error
	PostURI(ctx context.Context, uri string, sessionToken string, body any, dst any) error
}

// T aliases Transport
type T = Transport

// HTTPTransport is the production Transport.
type HTTPTransport struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPTransport returns an HTTPTransport targeting baseURL.
// It errors if baseURL is not an absolute http(s) URL.
func NewHTTPTransport(baseURL string, client *http.Client) (*HTTPTransport, error) {
	u, err := url.Parse(baseURL)
	if nil != err {
		return nil, wrapError(err, "invalid base URL")
	}
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, newError("base URL %q is not absolute http(s)", baseURL)
	}
	if nil == client {
		client = &http.Client{}
	}

	return &HTTPTransport{BaseURL: strings.TrimSuffix(baseURL, "/"), Client: client}, nil
}

// GetURL performs a GET against an absolute url.
func (self *HTTPTransport) GetURL(ctx context.Context, url string, sessionToken string, dst any) error {
	return self.do(ctx, http.MethodGet, url, sessionToken, nil, dst)
}

// PostURL performs a POST of body against an absolute url.
func (self *HTTPTransport) PostURL(ctx context.Context, url string, sessionToken string, body any, dst any) error {
	return self.do(ctx, http.MethodPost, url, sessionToken, body, dst)
}

// GetURI performs a GET against uri resolved under the server base URL.
func (self *HTTPTransport) GetURI(ctx context.Context, uri string, sessionToken string, dst any) error {
	return self.do(ctx, http.MethodGet, self.resolve(uri), sessionToken, nil, dst)
}

// PostURI performs a POST of body against uri resolved under the server base URL.
func (self *HTTPTransport) PostURI(ctx context.Context, uri string, sessionToken string, body any, dst any) error {
	return self.do(ctx, http.MethodPost, self.resolve(uri), sessionToken, body, dst)
}

func (self *HTTPTransport) resolve(uri string) string {
	return self.BaseURL + "/" + strings.TrimPrefix(uri, "/")
}

// errorBody is the error shape of Cipherise server rejections.
type errorBody struct {
	ErrorMsg string `json:"error"`
}

func (self *HTTPTransport) do(ctx context.Context, method, url, sessionToken string, body, dst any) error {
	t0 := time.Now()
	tId := uuid.New().String()
	log := observability.GetObservability(ctx).Log().With("tId", tId)

	var rbody io.Reader
	if nil != body {
		srzbody, err := json.Marshal(body)
		if nil != err {
			return wrapError(err, "failed marshalling request body")
		}
		rbody = bytes.NewReader(srzbody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, rbody)
	if nil != err {
		return wrapError(err, "failed building %s request", method)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(traceIdHeader, tId)
	if nil != body {
		req.Header.Set("Content-Type", "application/json")
	}
	if "" != sessionToken {
		req.Header.Set(sessionTokenHeader, sessionToken)
	}

	resp, err := self.Client.Do(req)
	if nil != err {
		return wrapError(err, "failed %s %s", method, url)
	}
	defer resp.Body.Close()

	srzresp, err := io.ReadAll(resp.Body)
	if nil != err {
		return wrapError(err, "failed reading response body")
	}

	log.Debug(
		"cipherise exchange",
		"method", method,
		"url", url,
		"status", resp.StatusCode,
		"duration", time.Since(t0),
	)

	err = classify(resp.StatusCode, srzresp)
	if nil != err {
		return err
	}

	if nil != dst {
		err = json.Unmarshal(srzresp, dst)
		if nil != err {
			return wrapError(err, "failed unmarshalling response body")
		}
	}

	return nil
}

// classify maps a server response to the package error taxonomy.
// A nil return means the response carries a usable JSON body.
func classify(status int, body []byte) error {
	if status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout {
		return flagError(ErrTimeout, "gateway reported timeout, status %d", status)
	}
	if len(body) == 0 {
		return flagError(ErrTimeout, "unexpectedly empty response body, status %d", status)
	}

	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	if "" != eb.ErrorMsg {
		lmsg := strings.ToLower(eb.ErrorMsg)
		switch {
		case strings.Contains(lmsg, "invalid session") || strings.Contains(lmsg, "expired session"):
			return flagError(ErrSessionExpired, "%s", eb.ErrorMsg)
		case strings.Contains(lmsg, "request timeout"):
			return flagError(ErrTimeout, "%s", eb.ErrorMsg)
		default:
			return newError("server error: %s", eb.ErrorMsg)
		}
	}

	if status < 200 || status > 299 {
		return newError("unexpected status %d", status)
	}

	return nil
}

var _ Transport = &HTTPTransport{}
