package model

import "strings"

// Task is one (search query, product, vendor) unit of work.
type Task struct {
	SearchQuery  string `json:"search_query"`
	ProductID    string `json:"product_id"`
	VendorDomain string `json:"vendor_domain"`
}

// Cookie is a single name/value pair sent with every request of a session.
type Cookie struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// Identity is the browsing fingerprint a session is opened with.
// Identities are built once and never mutated; use the accessors to obtain
// copies of the header map and cookie list.
type Identity struct {
	UserAgent string
	headers   map[string]string
	cookies   []Cookie
}

// NewIdentity creates an Identity, copying headers and cookies.
func NewIdentity(userAgent string, headers map[string]string, cookies []Cookie) Identity {
	h := make(map[string]string, len(headers))
	for k, v := range headers {
		h[k] = v
	}
	c := make([]Cookie, len(cookies))
	copy(c, cookies)
	return Identity{UserAgent: userAgent, headers: h, cookies: c}
}

// Headers returns a copy of the default request headers.
func (i Identity) Headers() map[string]string {
	h := make(map[string]string, len(i.headers))
	for k, v := range i.headers {
		h[k] = v
	}
	return h
}

// Cookies returns a copy of the baseline cookies.
func (i Identity) Cookies() []Cookie {
	c := make([]Cookie, len(i.cookies))
	copy(c, i.cookies)
	return c
}

// CookieHeader renders the cookies as a Cookie request header value.
func (i Identity) CookieHeader() string {
	parts := make([]string, 0, len(i.cookies))
	for _, c := range i.cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}
