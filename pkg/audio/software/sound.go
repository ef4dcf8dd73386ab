package software

import (
	"fmt"
	"io"

	"github.com/gopxl/beep/v2"

	"github.com/MrWong99/soundstage/pkg/audio"
)

// sound is an asset created by [Session.CreateSound]. Preloaded sounds keep
// their samples in buf; streamed sounds reopen path for every voice.
type sound struct {
	session *Session
	path    string
	mode    audio.Mode
	format  beep.Format

	// Guarded by the session's mixer lock.
	buf              *beep.Buffer
	minDist, maxDist float64
	released         bool
}

func (snd *sound) Mode() audio.Mode { return snd.mode }

func (snd *sound) Set3DMinMaxDistance(min, max float64) error {
	if err := checkRange(min, max); err != nil {
		return err
	}
	var err error
	snd.session.mix.Do(func() {
		if snd.released {
			err = audio.ErrInvalidHandle
			return
		}
		snd.minDist, snd.maxDist = min, max
	})
	return err
}

func (snd *sound) Release() error { return snd.session.release(snd) }

// open returns a fresh source for one voice. closer is nil for preloaded
// sounds.
func (snd *sound) open() (beep.StreamSeeker, io.Closer, error) {
	var buf *beep.Buffer
	snd.session.mix.Do(func() { buf = snd.buf })
	if buf != nil {
		return buf.Streamer(0, buf.Len()), nil, nil
	}
	dec, _, err := openFile(snd.path)
	if err != nil {
		return nil, nil, err
	}
	return dec, dec, nil
}

func checkRange(min, max float64) error {
	if min < 0 || max < min {
		return fmt.Errorf("software: invalid distance range [%v, %v]", min, max)
	}
	return nil
}
