/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package imgutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// ErrUnsafeURL is returned for URLs that point at private networks or use a
// scheme other than http(s).
var ErrUnsafeURL = errors.New("unsafe url")

// LookupIP resolves host names for IsSafeURL; tests replace it.
var LookupIP = net.LookupIP

// IsSafeURL guards against server-side request forgery: only http(s) URLs
// whose host resolves to public addresses are allowed.
func IsSafeURL(rawURL string) (bool, error) {
	u, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return false, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false, fmt.Errorf("%w: scheme %q", ErrUnsafeURL, u.Scheme)
	}
	host := u.Hostname()
	var ips []net.IP
	if ip := net.ParseIP(host); ip != nil {
		ips = []net.IP{ip}
	} else {
		ips, err = LookupIP(host)
		if err != nil {
			return false, fmt.Errorf("resolve %q: %w", host, err)
		}
	}
	if len(ips) == 0 {
		return false, fmt.Errorf("resolve %q: no addresses", host)
	}
	for _, ip := range ips {
		if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return false, fmt.Errorf("%w: restricted address %s", ErrUnsafeURL, ip)
		}
	}
	return true, nil
}

// Fetcher downloads source images for the providers.
type Fetcher struct {
	Client   *http.Client
	MaxBytes int64
	// AllowPrivate skips the SSRF guard (local development against a LocalCDN).
	AllowPrivate bool
}

// NewFetcher returns a fetcher with a 30s timeout and a 20 MiB cap.
func NewFetcher() *Fetcher {
	return &Fetcher{Client: &http.Client{Timeout: 30 * time.Second}, MaxBytes: 20 << 20}
}

// FetchBytes GETs rawURL and returns the body.
func (f *Fetcher) FetchBytes(ctx context.Context, rawURL string) ([]byte, error) {
	if !f.AllowPrivate {
		if ok, err := IsSafeURL(rawURL); err != nil || !ok {
			return nil, fmt.Errorf("refusing to fetch %s: %w", rawURL, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	hc := f.Client
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: %s", rawURL, resp.Status)
	}
	limit := f.MaxBytes
	if limit <= 0 {
		limit = 20 << 20
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("fetch %s: body exceeds %d bytes", rawURL, limit)
	}
	return b, nil
}
