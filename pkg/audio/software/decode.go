package software

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"

	"github.com/MrWong99/soundstage/pkg/audio"
)

// decoderFor returns the beep decoder for the extension of path.
func decoderFor(path string) (func(f *os.File) (beep.StreamSeekCloser, beep.Format, error), error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		return func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return wav.Decode(f) }, nil
	case ".mp3":
		return func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return mp3.Decode(f) }, nil
	case ".ogg", ".oga":
		return func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return vorbis.Decode(f) }, nil
	case ".flac":
		return func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return flac.Decode(f) }, nil
	default:
		return nil, fmt.Errorf("%w: %q", audio.ErrUnsupportedFormat, ext)
	}
}

// openFile opens and decodes path. Closing the returned decoder closes the
// file.
func openFile(path string) (beep.StreamSeekCloser, beep.Format, error) {
	decode, err := decoderFor(path)
	if err != nil {
		return nil, beep.Format{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}
	dec, format, err := decode(f)
	if err != nil {
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return &fileDecoder{StreamSeekCloser: dec, f: f}, format, nil
}

// fileDecoder closes the underlying file together with the decoder, since not
// every beep decoder owns its reader.
type fileDecoder struct {
	beep.StreamSeekCloser
	f *os.File
}

func (d *fileDecoder) Close() error {
	err := d.StreamSeekCloser.Close()
	_ = d.f.Close()
	return err
}
