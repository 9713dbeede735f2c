// Copyright 2023-2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package upstreamldap

import (
	"time"

	"k8s.io/apimachinery/pkg/util/cache"
	"k8s.io/utils/clock"

	"go.loginrelay.dev/internal/backendconfig"
)

// entry is an immutable copy of a directory entry.
type entry struct {
	DN         string
	Attributes map[string][]string
}

// searchKey identifies a search. Results are never shared across different filters or scopes.
type searchKey struct {
	filter string
	scope  backendconfig.Scope
}

// searchCache holds search results for a fixed period. A zero period disables it.
type searchCache struct {
	cache  *cache.Expiring
	period time.Duration
}

func newSearchCache(clk clock.Clock, period time.Duration) *searchCache {
	if period <= 0 {
		return &searchCache{}
	}
	return &searchCache{cache: cache.NewExpiringWithClock(clk), period: period}
}

func (c *searchCache) enabled() bool {
	return c.cache != nil
}

func (c *searchCache) get(key searchKey) ([]entry, bool) {
	if !c.enabled() {
		return nil, false
	}
	maybeEntries, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	entries, ok := maybeEntries.([]entry)
	if !ok {
		return nil, false
	}
	return entries, true
}

// set replaces any previous result for key.
func (c *searchCache) set(key searchKey, entries []entry) {
	if !c.enabled() {
		return
	}
	c.cache.Set(key, entries, c.period)
}

func (c *searchCache) len() int {
	if !c.enabled() {
		return 0
	}
	return c.cache.Len()
}
