// Package voice turns guidance text into audio pushed to the connected
// drivers. Speech is best effort: the text instruction is authoritative and is
// delivered whether or not synthesis succeeds.
package voice

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/parkpilot/server/internal/infra/ai"
	"github.com/parkpilot/server/internal/platform/logger"
	"github.com/parkpilot/server/internal/platform/metrics"
)

// DefaultTimeout bounds one synthesis call.
const DefaultTimeout = 4 * time.Second

// AudioSink receives the audio of one utterance.
type AudioSink interface {
	BroadcastAudio(text string, audio *ai.Audio)
}

// Announcer synthesises at most one utterance at a time. Requests that arrive
// while a synthesis is in flight are dropped; the next instruction will carry
// fresher text anyway.
type Announcer struct {
	provider ai.SpeechProvider
	sink     AudioSink
	logger   *logger.Logger
	metrics  *metrics.Collector
	timeout  time.Duration

	busy   atomic.Bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewAnnouncer creates an announcer. A zero timeout uses DefaultTimeout.
func NewAnnouncer(provider ai.SpeechProvider, sink AudioSink, timeout time.Duration, log *logger.Logger) *Announcer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Announcer{
		provider: provider,
		sink:     sink,
		logger:   log.With("component", "voice"),
		metrics:  metrics.Get(),
		timeout:  timeout,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Announce starts synthesis of text in the background and returns at once.
func (a *Announcer) Announce(text string, distance float64) {
	if text == "" || a.provider == nil || !a.provider.IsAvailable() {
		return
	}
	if a.ctx.Err() != nil {
		return
	}
	if !a.busy.CompareAndSwap(false, true) {
		a.metrics.RecordSpeechDropped()
		a.logger.Debug("speech busy, dropping utterance", "text", text)
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.busy.Store(false)
		a.speak(text, distance)
	}()
}

func (a *Announcer) speak(text string, distance float64) {
	ctx, cancel := context.WithTimeout(a.ctx, a.timeout)
	defer cancel()

	start := time.Now()
	audio, err := a.provider.Synthesize(ctx, ai.SpeechRequest{Text: text, Distance: distance})
	a.metrics.RecordSpeech(err)
	if err != nil {
		a.logger.Warn("speech synthesis failed, continuing silently",
			"provider", a.provider.Name(), "error", err)
		return
	}
	if audio == nil || len(audio.Data) == 0 {
		return
	}
	a.logger.Debug("speech synthesised", "bytes", len(audio.Data), "latency", time.Since(start))
	if a.sink != nil {
		a.sink.BroadcastAudio(text, audio)
	}
}

// Busy reports whether a synthesis is in flight.
func (a *Announcer) Busy() bool {
	return a.busy.Load()
}

// Wait blocks until in-flight synthesis has finished.
func (a *Announcer) Wait() {
	a.wg.Wait()
}

// Close cancels in-flight synthesis and refuses new requests.
func (a *Announcer) Close() {
	a.cancel()
	a.wg.Wait()
}
