package software_test

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"

	"github.com/MrWong99/soundstage/pkg/audio"
	"github.com/MrWong99/soundstage/pkg/audio/software"
)

const testRate = 8000

// writeTone writes a stereo 16-bit WAV of frames samples at value amp.
func writeTone(t *testing.T, frames int, amp float64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	defer f.Close()

	tone := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			samples[i] = [2]float64{amp, amp}
		}
		return len(samples), true
	})
	format := beep.Format{SampleRate: testRate, NumChannels: 2, Precision: 2}
	if err := wav.Encode(f, beep.Take(frames, tone), format); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return path
}

// openNull opens a session on the null driver.
func openNull(t *testing.T, maxChannels int) *software.Session {
	t.Helper()
	e := software.New(software.WithSampleRate(testRate))
	s, err := e.Open(audio.SessionConfig{MaxChannels: maxChannels, Driver: software.DriverNull})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s.(*software.Session)
}

// pull renders n frames from s.
func pull(s *software.Session, n int) [][2]float64 {
	buf := make([][2]float64, n)
	s.Stream(buf)
	return buf
}

func playTone(t *testing.T, s *software.Session, frames int, mode audio.Mode) audio.Channel {
	t.Helper()
	snd, err := s.CreateSound(writeTone(t, frames, 0.5), mode)
	if err != nil {
		t.Fatalf("CreateSound() error: %v", err)
	}
	ch, err := s.PlaySound(snd, false)
	if err != nil {
		t.Fatalf("PlaySound() error: %v", err)
	}
	return ch
}

func near(a, b float64) bool { return math.Abs(a-b) < 0.01 }

func TestEngine_Drivers(t *testing.T) {
	t.Parallel()

	got := software.New().Drivers()
	if len(got) != 2 || got[software.DriverSpeaker] != "speaker" || got[software.DriverNull] != "null" {
		t.Errorf("Drivers() = %v, want [speaker null]", got)
	}
}

func TestSession_CreateSoundErrors(t *testing.T) {
	t.Parallel()

	s := openNull(t, 4)

	if _, err := s.CreateSound(filepath.Join(t.TempDir(), "a.xyz"), audio.Mode2D); !errors.Is(err, audio.ErrUnsupportedFormat) {
		t.Errorf("unsupported extension: err = %v, want ErrUnsupportedFormat", err)
	}
	if _, err := s.CreateSound(filepath.Join(t.TempDir(), "missing.wav"), audio.Mode2D); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: err = %v, want os.ErrNotExist", err)
	}
}

func TestVoice_PlaysAtVolume(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		mode audio.Mode
	}{
		{"preloaded", audio.Mode2D | audio.ModeLoopNormal},
		{"streamed", audio.Mode2D | audio.ModeLoopNormal | audio.ModeCreateStream},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := openNull(t, 4)
			ch := playTone(t, s, 1000, tc.mode)

			out := pull(s, 200)
			if !near(out[100][0], 0.5) || !near(out[100][1], 0.5) {
				t.Fatalf("sample = %v, want ~[0.5 0.5]", out[100])
			}

			if err := ch.SetVolume(0.5); err != nil {
				t.Fatalf("SetVolume() error: %v", err)
			}
			out = pull(s, 200)
			if !near(out[100][0], 0.25) {
				t.Errorf("sample after SetVolume(0.5) = %v, want ~0.25", out[100])
			}
			if v, _ := ch.Volume(); v != 0.5 {
				t.Errorf("Volume() = %v, want 0.5", v)
			}
		})
	}
}

func TestVoice_Pan(t *testing.T) {
	t.Parallel()

	s := openNull(t, 4)
	ch := playTone(t, s, 1000, audio.Mode2D)
	if err := ch.SetPan(1); err != nil {
		t.Fatalf("SetPan() error: %v", err)
	}
	out := pull(s, 200)
	if out[100][0] != 0 {
		t.Errorf("left = %v, want 0 with full right pan", out[100][0])
	}
	if out[100][1] <= 0 {
		t.Errorf("right = %v, want > 0", out[100][1])
	}
}

func TestVoice_FinishesWithoutLoop(t *testing.T) {
	t.Parallel()

	s := openNull(t, 4)
	ch := playTone(t, s, 100, audio.Mode2D|audio.ModeLoopNormal)
	if err := ch.SetLoopCount(0); err != nil {
		t.Fatalf("SetLoopCount() error: %v", err)
	}

	pull(s, 400)
	playing, err := ch.IsPlaying()
	if err != nil {
		t.Fatalf("IsPlaying() error: %v", err)
	}
	if playing {
		t.Error("IsPlaying() = true after the sound drained, want false")
	}
	out := pull(s, 10)
	if out[5] != [2]float64{} {
		t.Errorf("sample after drain = %v, want silence", out[5])
	}
}

func TestVoice_LoopForever(t *testing.T) {
	t.Parallel()

	s := openNull(t, 4)
	ch := playTone(t, s, 100, audio.Mode2D|audio.ModeLoopNormal)
	if err := ch.SetLoopCount(audio.LoopForever); err != nil {
		t.Fatalf("SetLoopCount() error: %v", err)
	}

	out := pull(s, 1000)
	if !near(out[950][0], 0.5) {
		t.Errorf("sample 950 = %v, want ~0.5 while looping", out[950])
	}
	if playing, _ := ch.IsPlaying(); !playing {
		t.Error("IsPlaying() = false, want true while looping")
	}
}

func TestVoice_Paused(t *testing.T) {
	t.Parallel()

	s := openNull(t, 4)
	snd, err := s.CreateSound(writeTone(t, 1000, 0.5), audio.Mode2D)
	if err != nil {
		t.Fatalf("CreateSound() error: %v", err)
	}
	ch, err := s.PlaySound(snd, true)
	if err != nil {
		t.Fatalf("PlaySound() error: %v", err)
	}

	if out := pull(s, 100); out[50] != [2]float64{} {
		t.Errorf("paused sample = %v, want silence", out[50])
	}
	if err := ch.SetPaused(false); err != nil {
		t.Fatalf("SetPaused() error: %v", err)
	}
	if out := pull(s, 100); !near(out[50][0], 0.5) {
		t.Errorf("resumed sample = %v, want ~0.5", out[50])
	}
}

func TestVoice_PitchAndSeek(t *testing.T) {
	t.Parallel()

	s := openNull(t, 4)
	ch := playTone(t, s, 1000, audio.Mode2D)

	if err := ch.SetPitch(2); err != nil {
		t.Fatalf("SetPitch() error: %v", err)
	}
	if p, _ := ch.Pitch(); p != 2 {
		t.Errorf("Pitch() = %v, want 2", p)
	}
	if err := ch.SetPitch(0); err == nil {
		t.Error("SetPitch(0) error = nil, want error")
	}
	if err := ch.SetPosition(60_000); err != nil {
		t.Errorf("SetPosition past the end error: %v", err)
	}
}

func TestVoice_StopInvalidatesHandle(t *testing.T) {
	t.Parallel()

	s := openNull(t, 4)
	ch := playTone(t, s, 1000, audio.Mode2D)

	if err := ch.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if err := ch.Stop(); !errors.Is(err, audio.ErrInvalidHandle) {
		t.Errorf("second Stop() error = %v, want ErrInvalidHandle", err)
	}
	if _, err := ch.IsPlaying(); !errors.Is(err, audio.ErrInvalidHandle) {
		t.Errorf("IsPlaying() error = %v, want ErrInvalidHandle", err)
	}
	if out := pull(s, 10); out[5] != [2]float64{} {
		t.Errorf("sample after Stop = %v, want silence", out[5])
	}
}

func TestSession_ChannelLimit(t *testing.T) {
	t.Parallel()

	s := openNull(t, 1)
	snd, err := s.CreateSound(writeTone(t, 1000, 0.5), audio.Mode2D)
	if err != nil {
		t.Fatalf("CreateSound() error: %v", err)
	}
	if _, err := s.PlaySound(snd, false); err != nil {
		t.Fatalf("first PlaySound() error: %v", err)
	}
	if _, err := s.PlaySound(snd, false); !errors.Is(err, audio.ErrChannelLimit) {
		t.Errorf("second PlaySound() error = %v, want ErrChannelLimit", err)
	}
}

func TestSession_ReleaseInvalidatesChannels(t *testing.T) {
	t.Parallel()

	s := openNull(t, 4)
	snd, err := s.CreateSound(writeTone(t, 1000, 0.5), audio.Mode2D)
	if err != nil {
		t.Fatalf("CreateSound() error: %v", err)
	}
	ch, err := s.PlaySound(snd, false)
	if err != nil {
		t.Fatalf("PlaySound() error: %v", err)
	}

	if err := snd.Release(); err != nil {
		t.Fatalf("Release() error: %v", err)
	}
	if err := ch.SetVolume(1); !errors.Is(err, audio.ErrInvalidHandle) {
		t.Errorf("SetVolume() after Release error = %v, want ErrInvalidHandle", err)
	}
	if err := snd.Release(); !errors.Is(err, audio.ErrInvalidHandle) {
		t.Errorf("second Release() error = %v, want ErrInvalidHandle", err)
	}
}

func TestSession_Spatial(t *testing.T) {
	t.Parallel()

	s := openNull(t, 4)
	snd, err := s.CreateSound(writeTone(t, 4000, 0.5), audio.Mode3D|audio.ModeLinearRolloff|audio.ModeLoopNormal)
	if err != nil {
		t.Fatalf("CreateSound() error: %v", err)
	}
	ch, err := s.PlaySound(snd, false)
	if err != nil {
		t.Fatalf("PlaySound() error: %v", err)
	}
	if err := ch.Set3DMinMaxDistance(1, 20); err != nil {
		t.Fatalf("Set3DMinMaxDistance() error: %v", err)
	}

	// To the listener's right, inside the audible range.
	if err := ch.Set3DPosition(audio.Vector{X: 5}); err != nil {
		t.Fatalf("Set3DPosition() error: %v", err)
	}
	if err := s.Update(); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	out := pull(s, 100)
	if out[50][1] <= out[50][0] {
		t.Errorf("sample = %v, want right louder than left", out[50])
	}

	// Beyond max distance.
	if err := ch.Set3DPosition(audio.Vector{Z: 50}); err != nil {
		t.Fatalf("Set3DPosition() error: %v", err)
	}
	if err := s.Update(); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if out := pull(s, 100); out[50] != [2]float64{} {
		t.Errorf("sample = %v, want silence beyond max distance", out[50])
	}
}

func TestSession_ListenerAndClose(t *testing.T) {
	t.Parallel()

	s := openNull(t, 4)
	if got := s.Listener(); got != audio.DefaultListener() {
		t.Errorf("Listener() = %+v, want default", got)
	}
	l := audio.DefaultListener()
	l.Position = audio.Vector{X: 1, Y: 2, Z: 3}
	if err := s.SetListener(l); err != nil {
		t.Fatalf("SetListener() error: %v", err)
	}
	if got := s.Listener(); got != l {
		t.Errorf("Listener() = %+v, want %+v", got, l)
	}
	if s.Driver() != software.DriverNull {
		t.Errorf("Driver() = %d, want %d", s.Driver(), software.DriverNull)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}
	if err := s.Update(); !errors.Is(err, audio.ErrSessionClosed) {
		t.Errorf("Update() after Close error = %v, want ErrSessionClosed", err)
	}
	if _, err := s.CreateSound("x.wav", audio.Mode2D); !errors.Is(err, audio.ErrSessionClosed) {
		t.Errorf("CreateSound() after Close error = %v, want ErrSessionClosed", err)
	}
}
