// Copyright 2020-2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package plog

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"k8s.io/apimachinery/pkg/util/rand"
	"k8s.io/utils/clock"
	clocktesting "k8s.io/utils/clock/testing"
)

// contextKey type is unexported to prevent collisions.
type contextKey int

const testOverridesContextKey contextKey = iota

// testOverrides redirect a logger built by newLogr into a test writer.
type testOverrides struct {
	t *testing.T
	w io.Writer

	// configure replaces the encoding specific configuration when set.
	configure func(*zap.Config)
	opts      []zap.Option
}

// withTestOverrides makes newLogr write to w with every timestamp taken from now.
func withTestOverrides(ctx context.Context, t *testing.T, w io.Writer, configure func(*zap.Config), now time.Time, opts ...zap.Option) context.Context {
	t.Helper()

	opts = append(opts, zap.WithClock(&zapClock{clock: clocktesting.NewFakeClock(now)}))

	return context.WithValue(ctx, testOverridesContextKey, &testOverrides{t: t, w: w, configure: configure, opts: opts})
}

// sinkPath registers the test writer under a random key and returns the zap output path that resolves to
// it. Zap cannot be handed a writer directly. release drops the registration and must only be called after
// the logger was built. Without a test writer, def is returned.
func (o *testOverrides) sinkPath(def string) (path string, release func()) {
	if o.w == nil {
		return def, func() {}
	}

	key := "/" + base64.RawURLEncoding.EncodeToString([]byte(rand.String(32)))
	sink := newSink(o.w)

	actual, loaded := sinkMap.LoadOrStore(key, sink)
	require.False(o.t, loaded)
	require.Equal(o.t, sink, actual)

	return "loginrelay://" + key, func() {
		value, loaded := sinkMap.LoadAndDelete(key)
		require.True(o.t, loaded)
		require.Equal(o.t, sink, value)
	}
}

// TestLogger returns a Logger which writes JSON lines at every level into the returned buffer,
// with a static timestamp and line numbers replaced by "<line>".
func TestLogger(t *testing.T) (Logger, *bytes.Buffer) {
	t.Helper()

	var log bytes.Buffer
	sink := testZapr(t, &log).GetSink()

	return New().withLogrMod(func(l logr.Logger) logr.Logger { return l.WithSink(sink) }), &log
}

// TestAuditLogger returns an AuditLogger which does not redact personal information and writes into the returned buffer.
func TestAuditLogger(t *testing.T) (AuditLogger, *bytes.Buffer) {
	t.Helper()

	underlyingLogger, logBuf := TestLogger(t)
	return &auditLogger{logger: underlyingLogger.withDepth(1), cfg: AuditLogConfig{LogUserIDs: true}}, logBuf
}

func testZapr(t *testing.T, w io.Writer) logr.Logger {
	t.Helper()

	now, err := time.Parse(time.RFC3339Nano, "2099-08-08T13:57:36.123456789Z")
	require.NoError(t, err)

	ctx := withTestOverrides(context.Background(), t, w,
		func(config *zap.Config) {
			config.Level = zap.NewAtomicLevelAt(math.MinInt8) // log everything during tests

			// keep assertions stable across edits of the calling file
			config.EncoderConfig.EncodeCaller = func(caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
				trimmed := caller.TrimmedPath()
				if idx := strings.LastIndexByte(trimmed, ':'); idx != -1 {
					trimmed = trimmed[:idx+1] + "<line>"
				}
				enc.AppendString(trimmed + funcEncoder(caller))
			}
		},
		now,
		zap.AddStacktrace(nopLevelEnabler{}), // do not log stacktraces
	)

	// there is no buffering so we can ignore flush
	zl, _, err := newLogr(ctx, "json")
	require.NoError(t, err)

	return zl
}

var _ zapcore.Clock = &zapClock{}

// zapClock lets a k8s clock drive zap's timestamps.
type zapClock struct {
	clock clock.Clock
}

func (c *zapClock) Now() time.Time {
	return c.clock.Now()
}

func (c *zapClock) NewTicker(duration time.Duration) *time.Ticker {
	return &time.Ticker{C: c.clock.Tick(duration)}
}

var _ zap.Sink = nopCloserSink{}

type nopCloserSink struct{ zapcore.WriteSyncer }

func (nopCloserSink) Close() error { return nil }

// newSink returns a wrapper around the input writer that is safe for concurrent use.
func newSink(w io.Writer) zap.Sink {
	return nopCloserSink{WriteSyncer: zapcore.Lock(zapcore.AddSync(w))}
}

var _ zapcore.LevelEnabler = nopLevelEnabler{}

type nopLevelEnabler struct{}

func (nopLevelEnabler) Enabled(_ zapcore.Level) bool { return false }
