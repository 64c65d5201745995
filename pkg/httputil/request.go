package httputil

import (
	"net/http"
	"strings"
)

// FormValue returns a field from a POST form body only, never the query string
func FormValue(r *http.Request, key string) string {
	if err := r.ParseForm(); err != nil {
		return ""
	}
	return r.PostForm.Get(key)
}

// QueryValue returns a query string parameter
func QueryValue(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// BaseURL reconstructs scheme://host of the incoming request, honouring
// X-Forwarded-Proto and X-Forwarded-Host from a fronting proxy.
func BaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}

	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		host = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return scheme + "://" + host
}
