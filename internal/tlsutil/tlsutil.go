// Package tlsutil centralizes TLS settings for every outbound HTTP
// connection in sceneflow (task backend, vendor proxy, model downloads).
// 安全加固：TLS 1.2+，仅 AEAD 密码套件。
package tlsutil

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// 出站连接的统一拨号与连接池参数。
const (
	dialTimeout      = 30 * time.Second
	dialKeepAlive    = 30 * time.Second
	handshakeTimeout = 10 * time.Second
	idleConnTimeout  = 90 * time.Second
	expectContinue   = 1 * time.Second
	maxIdleConns     = 100
)

// aeadSuites 是允许的密码套件全集，只收 GCM 和 ChaCha20-Poly1305，
// CBC 系列一律不进名单。
var aeadSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
}

// DefaultTLSConfig returns a hardened TLS configuration.
// 每次调用返回独立副本，调用方改动不会影响其他客户端。
func DefaultTLSConfig() *tls.Config {
	suites := make([]uint16, len(aeadSuites))
	copy(suites, aeadSuites)
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		CipherSuites: suites,
	}
}

// SecureTransport returns an http.Transport wired with the hardened TLS
// config and the shared dial/pool parameters above.
func SecureTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   dialTimeout,
		KeepAlive: dialKeepAlive,
	}
	return &http.Transport{
		TLSClientConfig:       DefaultTLSConfig(),
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          maxIdleConns,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   handshakeTimeout,
		ExpectContinueTimeout: expectContinue,
	}
}

// SecureHTTPClient returns an http.Client with TLS hardening.
// Drop-in replacement for &http.Client{Timeout: timeout}.
func SecureHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: SecureTransport(),
	}
}

// StreamingHTTPClient 返回无全局超时的加固客户端，给模型文件这类
// 长传输用（GLB/FBX 动辄几百 MB），超时交给调用方的 ctx 控制。
// 同时关掉透明 gzip：文件代理要原样透传 Content-Length，
// transport 偷偷解压会让长度和实际字节数对不上。
func StreamingHTTPClient() *http.Client {
	tr := SecureTransport()
	tr.DisableCompression = true
	return &http.Client{Transport: tr}
}
