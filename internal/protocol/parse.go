package protocol

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/MrWong99/soundstage/pkg/audio"
)

// Command is one parsed input line. Args are the raw tokens after the verb;
// they are converted by the handler of the verb so that session checks run
// before argument validation.
type Command struct {
	Verb Verb
	Name string
	Args []string
}

// Parse splits line into a [Command]. It returns false for blank lines,
// which produce no response. Unrecognised verbs yield [VerbUnknown] with
// Name set to the upper-cased token.
func Parse(line string) (Command, bool) {
	toks := strings.Fields(line)
	if len(toks) == 0 {
		return Command{}, false
	}
	v, _ := LookupVerb(toks[0])
	return Command{Verb: v, Name: strings.ToUpper(toks[0]), Args: toks[1:]}, true
}

// ArgError reports missing positional arguments. It is answered with
// INVALID_ARGS.
type ArgError struct {
	Msg string
}

func (e *ArgError) Error() string { return e.Msg }

// ValueError reports an argument that could not be converted. It is answered
// with INVALID_VALUE.
type ValueError struct {
	Kind  string
	Value string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("invalid %s value %q", e.Kind, e.Value)
}

// require returns an [ArgError] carrying msg when c has fewer than n args.
func (c Command) require(n int, msg string) error {
	if len(c.Args) < n {
		return &ArgError{Msg: msg}
	}
	return nil
}

// arg returns the i-th argument, or "" when absent.
func (c Command) arg(i int) string {
	if i < len(c.Args) {
		return c.Args[i]
	}
	return ""
}

// has reports whether argument i is present.
func (c Command) has(i int) bool { return i < len(c.Args) }

// floatArg parses argument i, returning def when absent. NaN and infinities are
// rejected.
func (c Command) floatArg(i int, def float64) (float64, error) {
	if !c.has(i) {
		return def, nil
	}
	f, err := strconv.ParseFloat(c.Args[i], 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &ValueError{Kind: "float", Value: c.Args[i]}
	}
	return f, nil
}

// intArg parses argument i, returning def when absent.
func (c Command) intArg(i int, def int) (int, error) {
	if !c.has(i) {
		return def, nil
	}
	n, err := strconv.Atoi(c.Args[i])
	if err != nil {
		return 0, &ValueError{Kind: "int", Value: c.Args[i]}
	}
	return n, nil
}

// boolArg parses argument i as a boolean: only "true" (any case) is true.
func (c Command) boolArg(i int) bool {
	return strings.EqualFold(c.arg(i), "true")
}

// vectorArg parses the three arguments starting at i. Missing components
// default to the matching component of def.
func (c Command) vectorArg(i int, def audio.Vector) (audio.Vector, error) {
	x, err := c.floatArg(i, def.X)
	if err != nil {
		return audio.Vector{}, err
	}
	y, err := c.floatArg(i+1, def.Y)
	if err != nil {
		return audio.Vector{}, err
	}
	z, err := c.floatArg(i+2, def.Z)
	if err != nil {
		return audio.Vector{}, err
	}
	return audio.Vector{X: x, Y: y, Z: z}, nil
}
