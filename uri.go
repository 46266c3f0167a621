package memcache

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// URIScheme is the scheme accepted by ParseURI.
const URIScheme = "memcached"

// ParseURI extracts the server address from a memcached://host[:port] URI.
// The port defaults to 11211.
func ParseURI(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("memcache: invalid URI %q: %w", uri, err)
	}

	if u.Scheme != URIScheme {
		return "", fmt.Errorf("memcache: invalid URI %q: scheme must be %s://", uri, URIScheme)
	}
	if u.User != nil || (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != "" {
		return "", fmt.Errorf("memcache: invalid URI %q: only host and port are supported", uri)
	}

	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("memcache: invalid URI %q: missing host", uri)
	}

	port := u.Port()
	if port == "" {
		port = DefaultPort
	} else if n, err := strconv.Atoi(port); err != nil || n <= 0 || n > 65535 {
		return "", fmt.Errorf("memcache: invalid URI %q: invalid port", uri)
	}

	return net.JoinHostPort(host, port), nil
}

// NewClientFromURI creates a client for the server of a memcached://host[:port] URI.
func NewClientFromURI(uri string, config Config) (*Client, error) {
	addr, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	return NewClient(addr, config)
}
