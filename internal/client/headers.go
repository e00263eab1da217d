package client

import (
	"net/http"

	"gamepricetracker/internal/misc"
)

type RequestKind string

const (
	RequestKindAPI    RequestKind = "api"
	RequestKindScrape RequestKind = "scrape"
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
}

var acceptLanguages = []string{
	"en-US,en;q=0.9",
	"en-CA,en;q=0.9,fr-CA;q=0.8",
	"en-GB,en;q=0.9",
	"en-US,en;q=0.8,fr;q=0.6",
}

type HeaderOptions struct {
	Referer string
	Origin  string
	Extra   map[string]string
}

// BuildHeaders produces a browser-like header set with a random User-Agent and
// Accept-Language. Referer, Origin and Extra override the generated values.
func BuildHeaders(rnd misc.Rand, kind RequestKind, opts HeaderOptions) http.Header {
	h := http.Header{}
	h.Set("User-Agent", userAgents[rnd.Intn(len(userAgents))])
	h.Set("Accept-Language", acceptLanguages[rnd.Intn(len(acceptLanguages))])
	h.Set("Cache-Control", "no-cache")
	h.Set("Pragma", "no-cache")

	if kind == RequestKindScrape {
		h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
		h.Set("Upgrade-Insecure-Requests", "1")
		h.Set("Sec-Fetch-Dest", "document")
		h.Set("Sec-Fetch-Mode", "navigate")
		h.Set("Sec-Fetch-Site", "none")
		h.Set("Sec-Fetch-User", "?1")
	} else {
		h.Set("Accept", "application/json, text/plain, */*")
	}

	if opts.Referer != "" {
		h.Set("Referer", opts.Referer)
	}
	if opts.Origin != "" {
		h.Set("Origin", opts.Origin)
	}
	for k, v := range opts.Extra {
		h.Set(k, v)
	}
	return h
}
