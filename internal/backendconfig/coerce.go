// Copyright 2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package backendconfig

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/util/sets"

	"go.loginrelay.dev/internal/configerr"
	"go.loginrelay.dev/internal/constable"
)

const (
	errNotAnInteger  = constable.Error("not an integer")
	errNotABoolean   = constable.Error("not a boolean")
	errNotADuration  = constable.Error("not a duration")
	errOutOfRange    = constable.Error("out of range")
	errUnknownOption = constable.Error("unknown option")
)

//nolint:gochecknoglobals // read-only lookup tables
var (
	trueStrings  = sets.New("true", "yes", "on", "1", "t", "y")
	falseStrings = sets.New("false", "no", "off", "0", "f", "n")
)

// fields wraps a raw mapping and records every problem found while reading it.
type fields struct {
	raw      map[string]string
	consumed sets.Set[string]
	errs     []*configerr.Error
}

func newFields(raw map[string]string) *fields {
	return &fields{raw: raw, consumed: sets.New[string]()}
}

// lookup returns the trimmed value for key. Empty values count as absent.
func (f *fields) lookup(key string) (string, bool) {
	f.consumed.Insert(key)
	v := strings.TrimSpace(f.raw[key])
	return v, len(v) > 0
}

func (f *fields) fail(kind configerr.Kind, key string, err error) {
	f.errs = append(f.errs, configerr.New(kind, key, err))
}

func (f *fields) coercionFailed(key, value string, err error) {
	f.fail(configerr.TypeCoercionFailure, key, fmt.Errorf("%q: %w", value, err))
}

func (f *fields) string(key, def string) string {
	if v, ok := f.lookup(key); ok {
		return v
	}
	return def
}

func (f *fields) integer(key string, def, minimum int) int {
	v, ok := f.lookup(key)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		f.coercionFailed(key, v, errNotAnInteger)
		return def
	}
	if i < minimum {
		f.coercionFailed(key, v, fmt.Errorf("%w: must be at least %d", errOutOfRange, minimum))
		return def
	}
	return i
}

func (f *fields) boolean(key string, def bool) bool {
	v, ok := f.lookup(key)
	if !ok {
		return def
	}
	b, err := ParseBool(v)
	if err != nil {
		f.coercionFailed(key, v, err)
		return def
	}
	return b
}

func (f *fields) duration(key string, def time.Duration) time.Duration {
	v, ok := f.lookup(key)
	if !ok {
		return def
	}
	d, err := parseDuration(v)
	if err != nil {
		f.coercionFailed(key, v, err)
		return def
	}
	return d
}

func (f *fields) list(key string) []string {
	v, ok := f.lookup(key)
	if !ok {
		return nil
	}
	return SplitList(v)
}

// unknown reports every key that was never read and is not accepted by allowed.
func (f *fields) unknown(allowed func(key string) bool) {
	for _, key := range sets.List(sets.KeySet(f.raw)) {
		if f.consumed.Has(key) || (allowed != nil && allowed(key)) {
			continue
		}
		f.fail(configerr.UnknownField, key, nil)
	}
}

func (f *fields) err() error {
	if len(f.errs) == 0 {
		return nil
	}
	return f.errs[0]
}

func (f *fields) allErrs() []error {
	out := make([]error, 0, len(f.errs))
	for _, err := range f.errs {
		out = append(out, err)
	}
	return out
}

// ParseBool accepts true/false, yes/no, on/off, 1/0, t/f and y/n in any case.
func ParseBool(v string) (bool, error) {
	switch lower := strings.ToLower(v); {
	case trueStrings.Has(lower):
		return true, nil
	case falseStrings.Has(lower):
		return false, nil
	default:
		return false, errNotABoolean
	}
}

// maxDurationSeconds is the largest whole number of seconds a time.Duration can hold.
const maxDurationSeconds = float64(math.MaxInt64 / int64(time.Second))

// parseDuration accepts Go duration syntax ("250ms", "1m30s") or a decimal number of seconds ("0.1").
func parseDuration(v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		seconds, ferr := strconv.ParseFloat(v, 64)
		if ferr != nil || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
			return 0, errNotADuration
		}
		// Out of range float to integer conversions are implementation-defined, so check before converting.
		if seconds > maxDurationSeconds {
			return 0, fmt.Errorf("%w: must be at most %s", errOutOfRange, time.Duration(math.MaxInt64))
		}
		d = time.Duration(seconds * float64(time.Second))
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: must not be negative", errOutOfRange)
	}
	return d, nil
}

func formatBool(b bool) string {
	return strconv.FormatBool(b)
}

// SplitList splits a comma or whitespace separated list, dropping empty items.
func SplitList(v string) []string {
	items := strings.FieldsFunc(v, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	if len(items) == 0 {
		return nil
	}
	return items
}
