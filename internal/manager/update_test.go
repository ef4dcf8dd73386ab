package manager_test

import (
	"errors"
	"testing"

	"github.com/MrWong99/soundstage/internal/manager"
	"github.com/MrWong99/soundstage/internal/source"
)

func TestTick_ReclaimsFinishedChannels(t *testing.T) {
	t.Parallel()

	m, sess := newManager(t)
	for _, id := range []string{"done", "dead", "live"} {
		if err := m.Load(id, assetFile(t, id+".wav"), false, true); err != nil {
			t.Fatalf("Load(%s) error: %v", id, err)
		}
		if err := m.Play(id, manager.PlayParams{Volume: 1}); err != nil {
			t.Fatalf("Play(%s) error: %v", id, err)
		}
	}
	sess.Channels[0].Finish()
	sess.Channels[1].Invalidate()

	n, err := m.Tick()
	if err != nil {
		t.Fatalf("Tick() error: %v", err)
	}
	if n != 2 {
		t.Errorf("Tick() = %d, want 2", n)
	}
	want := map[string]source.State{"done": source.StateStopped, "dead": source.StateStopped, "live": source.StatePlaying}
	for id, state := range want {
		if info, _ := m.SourceInfo(id); info.State != state {
			t.Errorf("%s state = %v, want %v", id, info.State, state)
		}
	}
	if _, channels := m.Stats(); channels != 1 {
		t.Errorf("channels = %d, want 1", channels)
	}
}

func TestTick_CommitFailureSkipsReclaim(t *testing.T) {
	t.Parallel()

	m, sess := playing(t, "a", false)
	lastChannel(t, sess).Finish()
	sess.UpdateError = errors.New("engine stalled")

	if _, err := m.Tick(); !errors.Is(err, manager.ErrBackend) {
		t.Errorf("Tick() error = %v, want ErrBackend", err)
	}
	if info, _ := m.SourceInfo("a"); info.State != source.StatePlaying {
		t.Errorf("state = %v, want playing", info.State)
	}
}

func TestCleanup(t *testing.T) {
	t.Parallel()

	m, sess := playing(t, "a", true)
	if err := m.Load("b", assetFile(t, "b.wav"), false, true); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	m.Cleanup()
	if m.Initialized() {
		t.Error("Initialized() = true after Cleanup")
	}
	if live := sess.LiveChannels(); len(live) != 0 {
		t.Errorf("live channels = %d, want 0", len(live))
	}
	for i, snd := range sess.Sounds {
		if snd.CallCountRelease != 1 {
			t.Errorf("sound %d released %d times, want 1", i, snd.CallCountRelease)
		}
	}
	if sess.CallCountClose != 1 {
		t.Errorf("Close calls = %d, want 1", sess.CallCountClose)
	}

	m.Cleanup()
	if sess.CallCountClose != 1 {
		t.Errorf("Close calls after second Cleanup = %d, want 1", sess.CallCountClose)
	}
}

func TestCleanup_AllowsReinit(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t)
	m.Cleanup()
	if err := m.Init(8, 0); err != nil {
		t.Errorf("Init() after Cleanup error: %v", err)
	}
}
