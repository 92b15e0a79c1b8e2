// Package healthcheck pings a healthchecks.io style URL.
package healthcheck

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

type Pinger struct {
	url    string
	client *http.Client
}

func NewPinger(url string, timeout time.Duration) *Pinger {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Pinger{url: url, client: &http.Client{Timeout: timeout}}
}

func (p *Pinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("healthcheck returned %s", resp.Status)
	}
	return nil
}
