package narrate

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/intervox/intervox/pkg/speech"
	"github.com/intervox/intervox/pkg/speech/mock"
)

const testSettle = 30 * time.Millisecond

func newTestNarrator(synth speech.Synthesizer, done *atomic.Int32, opts ...Option) *Narrator {
	opts = append([]Option{
		WithSettleDelay(testSettle),
		WithDoneFunc(func(int) { done.Add(1) }),
	}, opts...)
	return New(synth, opts...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSpeakCompletionArmsCaptureAfterSettle(t *testing.T) {
	synth := &mock.Synthesizer{}
	var done atomic.Int32
	n := newTestNarrator(synth, &done)

	n.Speak(context.Background(), "What is a goroutine?")
	waitFor(t, "speaking", n.IsSpeaking)

	if got := synth.SpeakCount(); got != 1 {
		t.Fatalf("Speak called %d times, want 1", got)
	}
	if done.Load() != 0 {
		t.Fatal("done fired before narration completed")
	}

	synth.LastHandle().Complete()

	// Done must not fire before the settle delay.
	time.Sleep(testSettle / 3)
	if done.Load() != 0 {
		t.Error("done fired before settle delay elapsed")
	}

	waitFor(t, "done", func() bool { return done.Load() == 1 })
	if n.IsSpeaking() {
		t.Error("should not be speaking after completion")
	}
}

func TestSpeakUsesConfiguredVoice(t *testing.T) {
	synth := &mock.Synthesizer{}
	var done atomic.Int32
	n := newTestNarrator(synth, &done, WithVoice(speech.Voice{Rate: 1.2, Pitch: 1.0, Volume: 0.9}))

	n.Speak(context.Background(), "hello")
	waitFor(t, "speak call", func() bool { return synth.SpeakCount() == 1 })

	if got := synth.SpeakCalls[0].Voice.Rate; got != 1.2 {
		t.Errorf("voice rate = %v, want 1.2", got)
	}
}

func TestNewSpeakCancelsInFlightNarration(t *testing.T) {
	synth := &mock.Synthesizer{}
	var done atomic.Int32
	n := newTestNarrator(synth, &done)

	n.Speak(context.Background(), "question one")
	waitFor(t, "first speak", func() bool { return synth.SpeakCount() == 1 })
	first := synth.LastHandle()

	n.Speak(context.Background(), "question two")
	waitFor(t, "second speak", func() bool { return synth.SpeakCount() == 2 })

	if first.CancelCalls != 1 {
		t.Errorf("first narration Cancel called %d times, want 1", first.CancelCalls)
	}

	// The cancelled narration must not arm capture; only the second one does.
	synth.LastHandle().Complete()
	waitFor(t, "done", func() bool { return done.Load() == 1 })

	time.Sleep(2 * testSettle)
	if got := done.Load(); got != 1 {
		t.Errorf("done fired %d times, want exactly 1", got)
	}
}

func TestSynthesisErrorArmsCaptureImmediately(t *testing.T) {
	synth := &mock.Synthesizer{}
	var done atomic.Int32
	n := newTestNarrator(synth, &done)

	n.Speak(context.Background(), "broken question")
	waitFor(t, "speak call", func() bool { return synth.SpeakCount() == 1 })

	start := time.Now()
	synth.LastHandle().Fail(&speech.RecognitionError{Code: speech.ErrNetwork, Message: "synthesis failed"})

	waitFor(t, "done", func() bool { return done.Load() == 1 })
	if elapsed := time.Since(start); elapsed >= testSettle {
		t.Errorf("error path took %s, want immediate (no settle delay)", elapsed)
	}
}

func TestUnsupportedSynthesizerArmsCaptureImmediately(t *testing.T) {
	var done atomic.Int32
	n := newTestNarrator(nil, &done)

	n.Speak(context.Background(), "any question")
	waitFor(t, "done", func() bool { return done.Load() == 1 })
}

func TestDisabledNarrationSkipsSynthesis(t *testing.T) {
	synth := &mock.Synthesizer{}
	var done atomic.Int32
	n := newTestNarrator(synth, &done)
	n.Configure(false)

	n.Speak(context.Background(), "silent question")
	waitFor(t, "done", func() bool { return done.Load() == 1 })

	if got := synth.SpeakCount(); got != 0 {
		t.Errorf("Speak called %d times while disabled, want 0", got)
	}
}

func TestCancelSuppressesDone(t *testing.T) {
	synth := &mock.Synthesizer{}
	var done atomic.Int32
	n := newTestNarrator(synth, &done)

	n.Speak(context.Background(), "to be cancelled")
	waitFor(t, "speaking", n.IsSpeaking)

	n.Cancel()
	if n.IsSpeaking() {
		t.Error("should not be speaking after Cancel")
	}
	if got := synth.LastHandle().CancelCalls; got != 1 {
		t.Errorf("Cancel called %d times on handle, want 1", got)
	}

	time.Sleep(2 * testSettle)
	if got := done.Load(); got != 0 {
		t.Errorf("done fired %d times after Cancel, want 0", got)
	}
}

func TestCancelWithoutNarrationIsNoOp(t *testing.T) {
	synth := &mock.Synthesizer{}
	var done atomic.Int32
	n := newTestNarrator(synth, &done)

	n.Cancel()
	n.Cancel()
	if got := done.Load(); got != 0 {
		t.Errorf("done fired %d times, want 0", got)
	}
}

func TestDoneCarriesSpeakToken(t *testing.T) {
	synth := &mock.Synthesizer{}
	var fired atomic.Int64
	n := New(synth,
		WithSettleDelay(testSettle),
		WithDoneFunc(func(gen int) { fired.Store(int64(gen)) }),
	)

	first := n.Speak(context.Background(), "question one")
	waitFor(t, "first speak", func() bool { return synth.SpeakCount() == 1 })

	second := n.Speak(context.Background(), "question two")
	if second <= first {
		t.Fatalf("tokens = %d then %d, want strictly increasing", first, second)
	}
	waitFor(t, "second speak", func() bool { return synth.SpeakCount() == 2 })

	synth.LastHandle().Complete()
	waitFor(t, "done", func() bool { return fired.Load() != 0 })
	if got := fired.Load(); got != int64(second) {
		t.Errorf("done token = %d, want %d", got, second)
	}
}

func TestEmptyTextArmsCaptureImmediately(t *testing.T) {
	synth := &mock.Synthesizer{}
	var done atomic.Int32
	n := newTestNarrator(synth, &done)

	n.Speak(context.Background(), "")
	waitFor(t, "done", func() bool { return done.Load() == 1 })
	if got := synth.SpeakCount(); got != 0 {
		t.Errorf("Speak called %d times for empty text, want 0", got)
	}
}
