package httputil

import (
	"log"
	"net/http"
	"net/url"
	"time"

	"rc_harvester/config"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type Clients struct {
	Search *http.Client // paginated search POSTs
	Detail *http.Client // per-listing GETs, shorter timeout
}

func NewClients(cfg *config.HTTPConfig) *Clients {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			log.Printf("Warning: ignoring invalid PROXY_URL: %v", err)
		} else {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	return &Clients{
		Search: &http.Client{Timeout: orDefault(cfg.Timeout, 30*time.Second), Transport: transport},
		Detail: &http.Client{Timeout: orDefault(cfg.DetailTimeout, 10*time.Second), Transport: transport},
	}
}

// SetHeaders applies the headers every API request carries.
func SetHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
