// Copyright 2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package backendconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"
	"sigs.k8s.io/yaml"
)

// Settings is a flat mapping of dotted keys to string values, e.g. "loginrelay.backend.corp.connection.uri".
type Settings map[string]string

// FromPath loads Settings from a local YAML file.
func FromPath(path string) (Settings, error) {
	data, err := os.ReadFile(path) //nolint:gosec // the path is chosen by the operator
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return FromYAML(data)
}

// FromYAML flattens a YAML document into Settings. Nested mappings become dotted keys, lists become
// comma separated values and null becomes the empty string.
func FromYAML(data []byte) (Settings, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	settings := Settings{}
	if err := settings.flatten("", doc); err != nil {
		return nil, err
	}
	return settings, nil
}

func (s Settings) flatten(prefix string, value any) error {
	switch v := value.(type) {
	case map[string]any:
		// Keys may already be dotted, e.g. "loginrelay.backends: a,b".
		for key, child := range v {
			if err := s.flatten(join(prefix, key), child); err != nil {
				return err
			}
		}
		return nil
	case []any:
		items := make([]string, 0, len(v))
		for i, item := range v {
			str, ok := scalar(item)
			if !ok {
				return fmt.Errorf("decode yaml: %s[%d]: lists may only contain scalar values", prefix, i)
			}
			items = append(items, str)
		}
		s.set(prefix, strings.Join(items, ","))
		return nil
	default:
		str, ok := scalar(v)
		if !ok {
			return fmt.Errorf("decode yaml: %s: unsupported value of type %T", prefix, v)
		}
		s.set(prefix, str)
		return nil
	}
}

func (s Settings) set(key, value string) {
	if len(key) == 0 {
		return
	}
	s[key] = value
}

func scalar(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int64:
		return strconv.FormatInt(t, 10), true
	default:
		return "", false
	}
}

func join(prefix, key string) string {
	if len(prefix) == 0 {
		return key
	}
	return prefix + "." + key
}

// Get returns the trimmed value of key. Empty values count as absent.
func (s Settings) Get(key string) (string, bool) {
	v := strings.TrimSpace(s[key])
	return v, len(v) > 0
}

// Sub returns the keys under prefix with the prefix and its trailing dot removed.
func (s Settings) Sub(prefix string) map[string]string {
	prefix = strings.TrimSuffix(prefix, ".") + "."
	out := map[string]string{}
	for key, value := range s {
		if rest, ok := strings.CutPrefix(key, prefix); ok && len(rest) > 0 {
			out[rest] = value
		}
	}
	return out
}

// Children returns the distinct first path segments under prefix, sorted.
func (s Settings) Children(prefix string) []string {
	names := sets.New[string]()
	for key := range s.Sub(prefix) {
		name, _, _ := strings.Cut(key, ".")
		names.Insert(name)
	}
	return sets.List(names)
}
