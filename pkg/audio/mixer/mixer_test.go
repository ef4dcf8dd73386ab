package mixer_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/MrWong99/soundstage/pkg/audio/mixer"
)

// constStreamer emits remaining frames of the constant value v, then drains.
type constStreamer struct {
	v         float64
	remaining int
}

func (c *constStreamer) Stream(samples [][2]float64) (int, bool) {
	if c.remaining <= 0 {
		return 0, false
	}
	n := min(len(samples), c.remaining)
	for i := range samples[:n] {
		samples[i] = [2]float64{c.v, c.v}
	}
	c.remaining -= n
	return n, true
}

func (c *constStreamer) Err() error { return nil }

func TestMixer_SumsVoices(t *testing.T) {
	t.Parallel()

	m := mixer.New()
	if _, err := m.Add(&constStreamer{v: 0.25, remaining: 100}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := m.Add(&constStreamer{v: 0.5, remaining: 100}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	buf := make([][2]float64, 8)
	n, ok := m.Stream(buf)
	if n != len(buf) || !ok {
		t.Fatalf("Stream = (%d, %v), want (%d, true)", n, ok, len(buf))
	}
	for i, s := range buf {
		if s[0] != 0.75 || s[1] != 0.75 {
			t.Fatalf("sample %d = %v, want [0.75 0.75]", i, s)
		}
	}
}

func TestMixer_SilenceWhenEmpty(t *testing.T) {
	t.Parallel()

	m := mixer.New()
	buf := [][2]float64{{1, 1}, {1, 1}}
	n, ok := m.Stream(buf)
	if n != 2 || !ok {
		t.Fatalf("Stream = (%d, %v), want (2, true)", n, ok)
	}
	for i, s := range buf {
		if s != [2]float64{} {
			t.Errorf("sample %d = %v, want silence", i, s)
		}
	}
}

func TestMixer_DrainedVoiceRemovedAndReported(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		finished []uint64
	)
	m := mixer.New(mixer.WithOnFinished(func(id uint64) {
		mu.Lock()
		defer mu.Unlock()
		finished = append(finished, id)
	}))

	short, _ := m.Add(&constStreamer{v: 1, remaining: 3})
	long, _ := m.Add(&constStreamer{v: 1, remaining: 1000})

	buf := make([][2]float64, 8)
	m.Stream(buf)

	if buf[2][0] != 2 || buf[3][0] != 1 {
		t.Errorf("samples = %v, want short voice to stop after frame 3", buf[:4])
	}
	if got := m.Len(); got != 1 {
		t.Errorf("Len = %d, want 1", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(finished) != 1 || finished[0] != short {
		t.Errorf("finished = %v, want [%d]", finished, short)
	}
	if m.Remove(long) != true {
		t.Error("Remove(long) = false, want true")
	}
}

func TestMixer_MaxVoices(t *testing.T) {
	t.Parallel()

	m := mixer.New(mixer.WithMaxVoices(2))
	for range 2 {
		if _, err := m.Add(&constStreamer{remaining: 10}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if _, err := m.Add(&constStreamer{remaining: 10}); !errors.Is(err, mixer.ErrFull) {
		t.Errorf("Add over cap: err = %v, want ErrFull", err)
	}
}

func TestMixer_Remove(t *testing.T) {
	t.Parallel()

	m := mixer.New()
	id, _ := m.Add(&constStreamer{v: 1, remaining: 10})
	if !m.Remove(id) {
		t.Fatal("Remove = false, want true")
	}
	if m.Remove(id) {
		t.Error("second Remove = true, want false")
	}
	buf := make([][2]float64, 4)
	m.Stream(buf)
	if buf[0][0] != 0 {
		t.Errorf("sample = %v, want silence after Remove", buf[0])
	}
}

func TestMixer_Close(t *testing.T) {
	t.Parallel()

	m := mixer.New()
	_, _ = m.Add(&constStreamer{v: 1, remaining: 10})
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if n, ok := m.Stream(make([][2]float64, 4)); n != 0 || ok {
		t.Errorf("Stream after Close = (%d, %v), want (0, false)", n, ok)
	}
	if _, err := m.Add(&constStreamer{}); !errors.Is(err, mixer.ErrClosed) {
		t.Errorf("Add after Close: err = %v, want ErrClosed", err)
	}
}

func TestMixer_DoHoldsLock(t *testing.T) {
	t.Parallel()

	m := mixer.New()
	v := &constStreamer{v: 1, remaining: 1 << 20}
	_, _ = m.Add(v)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		buf := make([][2]float64, 64)
		for range 100 {
			m.Stream(buf)
		}
	}()
	for range 100 {
		m.Do(func() { v.v = 0.5 })
	}
	wg.Wait()
}
