/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package imgutil

import (
	"strings"
	"sync"
)

// OptimizedSuffix asks the CDN to pick the best format for the client.
const OptimizedSuffix = "-/format/auto/"

// PreviewSuffix asks the CDN for a downscaled preview.
const PreviewSuffix = "-/preview/"

// URLCache memoizes derived CDN URLs.
type URLCache struct {
	mu sync.Mutex
	m  map[string]string
}

func NewURLCache() *URLCache { return &URLCache{m: map[string]string{}} }

// OptimizedURL returns url + "-/format/auto/". Empty input stays empty.
func (c *URLCache) OptimizedURL(url string) string {
	if url == "" {
		return ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.m[url]; ok {
		return v
	}
	v := url
	if !strings.HasSuffix(v, "/") {
		v += "/"
	}
	v += OptimizedSuffix
	c.m[url] = v
	return v
}

// Len reports the number of memoized entries.
func (c *URLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}
