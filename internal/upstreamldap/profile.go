// Copyright 2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package upstreamldap

import (
	"fmt"
	"strings"

	"go.loginrelay.dev/internal/backendconfig"
)

// distinguishedNameAttributeName is the profile key, and the pseudo attribute, holding the entry's DN.
const distinguishedNameAttributeName = "dn"

// ProfileFunc maps the raw attributes of an authenticated entry to a profile. The raw attributes always
// include "dn". Implementations must not modify attrs.
type ProfileFunc func(attrs map[string][]string) map[string]string

// DefaultProfile uses the first value of every attribute.
func DefaultProfile(attrs map[string][]string) map[string]string {
	profile := make(map[string]string, len(attrs))
	for name, values := range attrs {
		if len(values) > 0 {
			profile[name] = values[0]
		}
	}
	return profile
}

// MappedProfile keeps only the attributes named in mappings, renamed to their profile keys.
// The DN is always kept.
func MappedProfile(mappings map[string]string) ProfileFunc {
	lower := make(map[string]string, len(mappings))
	for attr, key := range mappings {
		lower[strings.ToLower(attr)] = key
	}
	return func(attrs map[string][]string) map[string]string {
		profile := map[string]string{}
		for name, values := range attrs {
			if len(values) == 0 {
				continue
			}
			// Attribute names are case-insensitive.
			if key, ok := lower[strings.ToLower(name)]; ok {
				profile[key] = values[0]
			}
		}
		if dn := attrs[distinguishedNameAttributeName]; len(dn) > 0 {
			if _, mapped := profile[distinguishedNameAttributeName]; !mapped {
				profile[distinguishedNameAttributeName] = dn[0]
			}
		}
		return profile
	}
}

// ParseAttributeMappings parses "ldapAttr=profileKey" pairs separated by commas or whitespace.
// A bare "attr" maps the attribute to itself.
func ParseAttributeMappings(v string) (map[string]string, error) {
	items := backendconfig.SplitList(v)
	if len(items) == 0 {
		return nil, nil
	}
	mappings := make(map[string]string, len(items))
	for _, item := range items {
		attr, key, found := strings.Cut(item, "=")
		if !found {
			key = attr
		}
		if len(attr) == 0 || len(key) == 0 {
			return nil, fmt.Errorf("invalid attribute mapping %q: expected ldapAttr=profileKey", item)
		}
		if _, dup := mappings[attr]; dup {
			return nil, fmt.Errorf("attribute %q is mapped more than once", attr)
		}
		mappings[attr] = key
	}
	return mappings, nil
}
