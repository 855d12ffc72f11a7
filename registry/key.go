package registry

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrNotAbsolute is returned by Key for URLs without a scheme or host.
var ErrNotAbsolute = errors.New("registry: url is not absolute")

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// Key returns the endpoint identity of rawURL: scheme://host/path with the
// query string and fragment removed, the host lower-cased, a default port
// dropped and a single trailing slash stripped from a non-root path.
func Key(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("registry: parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", ErrNotAbsolute
	}

	host := strings.ToLower(u.Host)
	if h, port, err := net.SplitHostPort(host); err == nil && defaultPorts[u.Scheme] == port {
		host = h
		if strings.Contains(h, ":") {
			host = "[" + h + "]"
		}
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = path[:len(path)-1]
	}

	return u.Scheme + "://" + host + path, nil
}
