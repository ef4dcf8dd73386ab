package protocol

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// Verb identifies a protocol command. The set is closed: [Dispatcher.Dispatch]
// switches over every value.
type Verb int

const (
	// VerbUnknown is the zero value, produced for unrecognised tokens.
	VerbUnknown Verb = iota
	VerbInit
	VerbLoad
	VerbPlay
	VerbStop
	VerbStopAll
	VerbVolume
	VerbPitch
	VerbSetVol
	VerbSeek
	VerbPan
	VerbPosition
	VerbListener
	VerbOrient
	VerbUpdate
	VerbPause
	VerbResume
	VerbRelease
	VerbStatus
	VerbInfo
	VerbDebug
	VerbQuit
)

var verbNames = [...]string{
	VerbUnknown:  "UNKNOWN",
	VerbInit:     "INIT",
	VerbLoad:     "LOAD",
	VerbPlay:     "PLAY",
	VerbStop:     "STOP",
	VerbStopAll:  "STOPALL",
	VerbVolume:   "VOLUME",
	VerbPitch:    "PITCH",
	VerbSetVol:   "SETVOL",
	VerbSeek:     "SEEK",
	VerbPan:      "PAN",
	VerbPosition: "POSITION",
	VerbListener: "LISTENER",
	VerbOrient:   "ORIENT",
	VerbUpdate:   "UPDATE",
	VerbPause:    "PAUSE",
	VerbResume:   "RESUME",
	VerbRelease:  "RELEASE",
	VerbStatus:   "STATUS",
	VerbInfo:     "INFO",
	VerbDebug:    "DEBUG",
	VerbQuit:     "QUIT",
}

// String returns the wire name of v.
func (v Verb) String() string {
	if v < 0 || int(v) >= len(verbNames) {
		return verbNames[VerbUnknown]
	}
	return verbNames[v]
}

// RequiresSession reports whether v answers NOT_INITIALIZED before INIT.
func (v Verb) RequiresSession() bool {
	switch v {
	case VerbUnknown, VerbInit, VerbDebug, VerbQuit:
		return false
	default:
		return true
	}
}

// Verbs returns every known verb in declaration order.
func Verbs() []Verb {
	out := make([]Verb, 0, len(verbNames)-1)
	for v := VerbInit; int(v) < len(verbNames); v++ {
		out = append(out, v)
	}
	return out
}

// LookupVerb maps a token to its [Verb], ignoring case.
func LookupVerb(tok string) (Verb, bool) {
	up := strings.ToUpper(tok)
	for _, v := range Verbs() {
		if verbNames[v] == up {
			return v, true
		}
	}
	return VerbUnknown, false
}

// minSuggestScore is the Jaro-Winkler similarity below which no suggestion
// is offered.
const minSuggestScore = 0.8

// Suggest returns the known verb closest to tok, or "" when nothing is
// similar enough.
func Suggest(tok string) string {
	up := strings.ToUpper(tok)
	best, bestScore := "", minSuggestScore
	for _, v := range Verbs() {
		if s := matchr.JaroWinkler(up, verbNames[v], false); s >= bestScore {
			best, bestScore = verbNames[v], s
		}
	}
	return best
}
