package fus

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/fuslink/fuslink/internal/logging"
)

const (
	defaultBaseURL     = "https://neofussvr.sslcs.cdngc.net"
	defaultDownloadURL = "http://cloud-neofussvr.samsungmobile.com"
	userAgent          = "Kies2.0_FUS"

	noncePath      = "/NF_DownloadGenerateNonce.do"
	binaryInform   = "/NF_DownloadBinaryInform.do"
	binaryInitPath = "/NF_DownloadBinaryInitForMass.do"
	downloadPath   = "/NF_DownloadBinaryForMass.do"

	// defaultRequestTimeout bounds each non-streaming exchange. The ranged
	// download GET is only bounded by its context: the body may stream for
	// hours.
	defaultRequestTimeout = 30 * time.Second
)

// Session holds the state derived from one server-issued nonce. A Session
// is valid only for the nonce that produced it and must never be shared
// across concurrent operations: every top-level operation acquires its own.
type Session struct {
	RawNonce  string // opaque nonce exactly as issued by the server
	Nonce     string // decoded nonce
	Signature string // signature derived from the decoded nonce
	SessionID string // JSESSIONID cookie value
}

// refresh re-derives signature material from a newly issued nonce. Stale
// signatures are rejected by the server with protocol status 401, so this
// must run before the session authenticates another request.
func (s *Session) refresh(rawNonce string, crypto SessionCrypto) error {
	nonce, err := crypto.DecodeNonce(rawNonce)
	if err != nil {
		return err
	}
	sig, err := crypto.DeriveSignature(nonce)
	if err != nil {
		return err
	}
	s.RawNonce = rawNonce
	s.Nonce = nonce
	s.Signature = sig
	return nil
}

// Client speaks the FUS protocol against the vendor endpoints. It is safe
// for concurrent use; all per-operation state lives in Session values.
type Client struct {
	http        *nethttp.Client
	nonceHTTP   *nethttp.Client // retrying client for the idempotent nonce challenge
	crypto      SessionCrypto
	log         *logging.Logger
	baseURL     string
	downloadURL string
	timeout     time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the authenticated endpoint base. Used by tests to
// point the client at a local fixture server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithDownloadURL overrides the binary download endpoint base.
func WithDownloadURL(u string) Option {
	return func(c *Client) { c.downloadURL = strings.TrimSuffix(u, "/") }
}

// WithTimeout overrides the per-request timeout for non-streaming calls.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// NewClient creates a FUS protocol client on top of the given HTTP client.
func NewClient(httpClient *nethttp.Client, crypto SessionCrypto, log *logging.Logger, opts ...Option) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = httpClient
	retryClient.RetryMax = 2
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil

	c := &Client{
		http:        httpClient,
		nonceHTTP:   retryClient.StandardClient(),
		crypto:      crypto,
		log:         log,
		baseURL:     defaultBaseURL,
		downloadURL: defaultDownloadURL,
		timeout:     defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Crypto exposes the session-crypto capability the client was built with.
func (c *Client) Crypto() SessionCrypto { return c.crypto }

// AcquireSession performs the unauthenticated nonce challenge and derives
// a fresh Session from the response.
func (c *Client) AcquireSession(ctx context.Context) (*Session, error) {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodPost, c.baseURL+noncePath, nil)
	if err != nil {
		return nil, err
	}
	c.setAuthHeaders(req, nil)

	resp, err := c.nonceHTTP.Do(req)
	if err != nil {
		return nil, c.transportErr("nonce", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != nethttp.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d on nonce challenge", ErrServerRejected, resp.StatusCode)
	}

	sess := &Session{}
	if err := c.absorbResponse(sess, resp); err != nil {
		return nil, err
	}
	if sess.RawNonce == "" {
		return nil, fmt.Errorf("%w: no nonce issued", ErrServerRejected)
	}
	c.log.Debug().Str("session_id", sess.SessionID).Msg("FUS session established")
	return sess, nil
}

// LogicCheck computes the request-body authentication value for input
// under the session's current nonce.
func (c *Client) LogicCheck(sess *Session, input string) (string, error) {
	return c.crypto.LogicCheck(input, sess.Nonce)
}

// BinaryInform sends the authenticated binary-info request and returns the
// parsed response. The caller inspects the protocol status itself: the
// retry loop treats 408 as a transient identity rejection.
func (c *Client) BinaryInform(ctx context.Context, sess *Session, firmware, model, region, imei string) (*Message, error) {
	check, err := c.LogicCheck(sess, firmware)
	if err != nil {
		return nil, fmt.Errorf("binary-info: %w", err)
	}
	body := binaryInformBody(firmware, model, region, imei, check)
	return c.postMessage(ctx, sess, "binary-info", c.baseURL+binaryInform, body)
}

// InitDownload registers a remote file for download. Required before the
// ranged GET is accepted. The remotePath is the full server path including
// the filename.
func (c *Client) InitDownload(ctx context.Context, sess *Session, remotePath string) error {
	filename := remotePath[strings.LastIndexByte(remotePath, '/')+1:]
	check, err := c.LogicCheck(sess, LogicCheckInput(filename))
	if err != nil {
		return fmt.Errorf("binary-init: %w", err)
	}
	body := binaryInitBody(filename, check)

	m, err := c.postMessage(ctx, sess, "binary-init", c.baseURL+binaryInitPath, body)
	if err != nil {
		return err
	}
	status, err := m.Status()
	if err != nil {
		return err
	}
	if status != 200 {
		return &StatusError{Op: "binary-init", Code: status}
	}
	return nil
}

// StartDownload issues the ranged GET for a registered file and returns
// the live response. The caller owns resp.Body and must close it; closing
// it early releases the upstream connection when the consumer goes away.
// rangeHeader is passed through verbatim when non-empty.
func (c *Client) StartDownload(ctx context.Context, sess *Session, remotePath, rangeHeader string) (*nethttp.Response, error) {
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, c.downloadURL+downloadPath+"?file="+remotePath, nil)
	if err != nil {
		return nil, err
	}
	c.setAuthHeaders(req, sess)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportErr("download", err)
	}
	if resp.StatusCode != nethttp.StatusOK && resp.StatusCode != nethttp.StatusPartialContent {
		resp.Body.Close()
		return nil, &UpstreamError{Op: "download", Code: resp.StatusCode}
	}
	return resp, nil
}

// postMessage performs an authenticated POST, refreshes the session from
// the response, and parses the body.
func (c *Client) postMessage(ctx context.Context, sess *Session, op, url, body string) (*Message, error) {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodPost, url, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setAuthHeaders(req, sess)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportErr(op, err)
	}
	defer resp.Body.Close()

	if err := c.absorbResponse(sess, resp); err != nil {
		return nil, err
	}
	if resp.StatusCode != nethttp.StatusOK {
		return nil, &UpstreamError{Op: op, Code: resp.StatusCode}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportErr(op, err)
	}
	return ParseMessage(raw)
}

// absorbResponse refreshes session state from a response: a NONCE header
// invalidates the previous signature material, and a JSESSIONID cookie
// replaces the session identifier.
func (c *Client) absorbResponse(sess *Session, resp *nethttp.Response) error {
	if nonce := resp.Header.Get("NONCE"); nonce != "" && nonce != sess.RawNonce {
		if err := sess.refresh(nonce, c.crypto); err != nil {
			return fmt.Errorf("session refresh: %w", err)
		}
	}
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "JSESSIONID" {
			sess.SessionID = cookie.Value
		}
	}
	return nil
}

func (c *Client) setAuthHeaders(req *nethttp.Request, sess *Session) {
	nonce, sig, sid := "", "", ""
	if sess != nil {
		nonce, sig, sid = sess.RawNonce, sess.Signature, sess.SessionID
	}
	req.Header.Set("Authorization",
		fmt.Sprintf(`FUS nonce="%s", signature="%s", nc="", type="", realm="", newauth="1"`, nonce, sig))
	req.Header.Set("User-Agent", userAgent)
	if sid != "" {
		req.AddCookie(&nethttp.Cookie{Name: "JSESSIONID", Value: sid})
	}
}

func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) transportErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrUpstreamTimeout, op)
	}
	return fmt.Errorf("%w: %s: %s", ErrUnreachable, op, err)
}
