// Package httpx builds the HTTP clients used against the vendor
// endpoints: a tuned transport sized for long-running streamed downloads,
// with optional proxy support including NTLM negotiation.
package httpx

import (
	"crypto/tls"
	"fmt"
	"net"
	nethttp "net/http"
	"net/url"
	"os"
	"strings"
	"time"

	ntlmssp "github.com/Azure/go-ntlmssp"
	"golang.org/x/net/http2"

	"github.com/fuslink/fuslink/internal/config"
)

const (
	dialTimeout           = 30 * time.Second
	dialKeepAlive         = 30 * time.Second
	idleConnTimeout       = 90 * time.Second
	tlsHandshakeTimeout   = 30 * time.Second
	expectContinueTimeout = 5 * time.Second
)

// NewClient creates the HTTP client for all vendor traffic. No overall
// client timeout is set: a firmware stream can run for hours, so each
// non-streaming exchange bounds itself with a context instead.
//
// HTTP/2 is attempted by default and can be disabled with
// DISABLE_HTTP2=true; it is also disabled automatically when a proxy is
// active, since proxies routinely break long-lived multiplexed streams.
func NewClient(cfg *config.Config) (*nethttp.Client, error) {
	transport := &nethttp.Transport{
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: dialKeepAlive,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		MaxConnsPerHost:       32,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   tlsHandshakeTimeout,
		ExpectContinueTimeout: expectContinueTimeout,
		DisableCompression:    true, // firmware binaries are already compressed
		ForceAttemptHTTP2:     true,
	}
	_ = http2.ConfigureTransport(transport)

	proxyActive, err := configureProxy(transport, cfg)
	if err != nil {
		return nil, err
	}

	if os.Getenv("DISABLE_HTTP2") == "true" || proxyActive {
		transport.ForceAttemptHTTP2 = false
		transport.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}

	client := &nethttp.Client{Transport: transport}

	if strings.EqualFold(cfg.ProxyMode, "ntlm") {
		client.Transport = ntlmssp.Negotiator{RoundTripper: transport}
	}
	return client, nil
}

// configureProxy applies the configured proxy mode to the transport and
// reports whether a proxy is in play.
func configureProxy(transport *nethttp.Transport, cfg *config.Config) (bool, error) {
	switch strings.ToLower(cfg.ProxyMode) {
	case "", "none", "no-proxy":
		transport.Proxy = nil
		return false, nil

	case "system":
		transport.Proxy = nethttp.ProxyFromEnvironment
		return os.Getenv("HTTP_PROXY") != "" || os.Getenv("HTTPS_PROXY") != "" ||
			os.Getenv("http_proxy") != "" || os.Getenv("https_proxy") != "", nil

	case "basic", "ntlm":
		proxyURL, err := buildProxyURL(cfg)
		if err != nil {
			return false, err
		}
		transport.Proxy = proxyFuncWithBypass(proxyURL, cfg.NoProxy)
		return true, nil

	default:
		return false, fmt.Errorf("unknown proxy mode %q", cfg.ProxyMode)
	}
}

func buildProxyURL(cfg *config.Config) (*url.URL, error) {
	host := cfg.ProxyHost
	if cfg.ProxyPort != "" {
		host = net.JoinHostPort(cfg.ProxyHost, cfg.ProxyPort)
	}
	raw := "http://" + host
	if cfg.ProxyUser != "" {
		u := url.UserPassword(cfg.ProxyUser, cfg.ProxyPassword)
		raw = "http://" + u.String() + "@" + host
	}
	proxyURL, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("proxy URL: %w", err)
	}
	return proxyURL, nil
}

// proxyFuncWithBypass routes requests through proxyURL except for hosts
// matched by the comma-separated noProxy list.
func proxyFuncWithBypass(proxyURL *url.URL, noProxy string) func(*nethttp.Request) (*url.URL, error) {
	var bypass []string
	for _, entry := range strings.Split(noProxy, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			bypass = append(bypass, entry)
		}
	}
	return func(req *nethttp.Request) (*url.URL, error) {
		host := req.URL.Hostname()
		for _, pattern := range bypass {
			if host == pattern || strings.HasSuffix(host, "."+strings.TrimPrefix(pattern, ".")) {
				return nil, nil
			}
		}
		return proxyURL, nil
	}
}
