package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/soundstage/internal/manager"
	"github.com/MrWong99/soundstage/internal/observe"
	"github.com/MrWong99/soundstage/pkg/audio"
)

// Defaults holds the values used when INIT and LOAD omit optional arguments.
type Defaults struct {
	MaxChannels int
	Driver      int

	// Preload decodes sounds fully at LOAD unless the stream flag is given.
	Preload bool
}

// DefaultDefaults returns the built-in INIT and LOAD defaults.
func DefaultDefaults() Defaults {
	return Defaults{MaxChannels: 64, Driver: 0, Preload: true}
}

// Response is the outcome of one dispatched command.
type Response struct {
	// Line is the single response line, without the trailing newline.
	Line string

	// Quit is set after QUIT. The caller must stop reading and clean up.
	Quit bool
}

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithLevel sets the level variable toggled by DEBUG.
func WithLevel(lv *slog.LevelVar) Option {
	return func(d *Dispatcher) { d.level = lv }
}

// WithDefaults sets the INIT and LOAD defaults.
func WithDefaults(def Defaults) Option {
	return func(d *Dispatcher) { d.defaults = def }
}

// Dispatcher turns parsed commands into manager calls and response lines.
//
// Commands are executed one at a time. [Dispatcher.Ready] may be read from
// any goroutine without blocking.
type Dispatcher struct {
	mu       sync.Mutex
	mgr      *manager.Manager
	metrics  *observe.Metrics
	level    *slog.LevelVar
	defaults Defaults
	ready    atomic.Bool

	// quiet is the level DEBUG off returns to.
	quiet slog.Level
}

// NewDispatcher returns a [Dispatcher] driving mgr.
func NewDispatcher(mgr *manager.Manager, opts ...Option) *Dispatcher {
	d := &Dispatcher{mgr: mgr, defaults: DefaultDefaults()}
	for _, o := range opts {
		o(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	if d.level == nil {
		d.level = new(slog.LevelVar)
	}
	d.quiet = slog.LevelInfo
	if lv := d.level.Level(); lv > slog.LevelDebug {
		d.quiet = lv
	}
	return d
}

// Ready reports whether a session is open.
func (d *Dispatcher) Ready() bool { return d.ready.Load() }

// Close tears down the session, if any. It is safe to call repeatedly.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mgr.Cleanup()
	d.ready.Store(false)
	d.metrics.SetGauges(0, 0)
}

// Dispatch executes cmd and returns its response. A panic raised while
// executing cmd is answered with EXCEPTION.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) (resp Response) {
	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()
	ctx, span := observe.StartCommandSpan(ctx, cmd.Name)
	log := observe.Logger(ctx)
	log.Debug("protocol: received command", "verb", cmd.Name, "args", cmd.Args)

	defer func() {
		if r := recover(); r != nil {
			log.Error("protocol: command panicked", "verb", cmd.Name, "panic", r)
			resp = Response{Line: fail("EXCEPTION", fmt.Sprint(r))}
		}
		status := statusOf(resp.Line)
		d.metrics.RecordCommand(ctx, cmd.Verb.String(), status, time.Since(start))
		d.metrics.SetGauges(d.mgr.Stats())
		d.ready.Store(d.mgr.Initialized())
		if status == "ok" {
			observe.EndSpan(span, "")
		} else {
			observe.EndSpan(span, status)
		}
	}()

	if cmd.Verb.RequiresSession() && !d.mgr.Initialized() {
		log.Error("protocol: command before INIT", "verb", cmd.Name)
		return Response{Line: fail("NOT_INITIALIZED")}
	}

	line, err := d.execute(ctx, cmd)
	if err != nil {
		var argErr *ArgError
		var valErr *ValueError
		switch {
		case errors.As(err, &argErr):
			log.Error("protocol: invalid arguments", "verb", cmd.Name, "args", cmd.Args, "err", err)
			return Response{Line: fail("INVALID_ARGS", argErr.Msg)}
		case errors.As(err, &valErr):
			log.Error("protocol: invalid value", "verb", cmd.Name, "err", err)
			return Response{Line: fail("INVALID_VALUE", valErr.Error())}
		default:
			log.Error("protocol: command error", "verb", cmd.Name, "err", err)
			return Response{Line: fail("EXCEPTION", err.Error())}
		}
	}
	return Response{Line: line, Quit: cmd.Verb == VerbQuit}
}

// execute runs cmd. Domain failures are returned as ERROR lines; only
// argument errors and unexpected failures are returned as errors.
func (d *Dispatcher) execute(ctx context.Context, cmd Command) (string, error) {
	switch cmd.Verb {
	case VerbInit:
		return d.doInit(cmd)
	case VerbLoad:
		return d.doLoad(ctx, cmd)
	case VerbPlay:
		return d.doPlay(ctx, cmd)
	case VerbStop:
		return d.doStop(ctx, cmd)
	case VerbStopAll:
		d.mgr.StopAll()
		return ok("STOPPED_ALL"), nil
	case VerbVolume:
		if err := cmd.require(1, "missing volume"); err != nil {
			return "", err
		}
		v, err := cmd.floatArg(0, 0)
		if err != nil {
			return "", err
		}
		return ok("VOLUME", formatFloat(d.mgr.SetMasterVolume(v))), nil
	case VerbPitch:
		return d.doPitch(ctx, cmd)
	case VerbSetVol:
		return d.doSetVol(ctx, cmd)
	case VerbSeek:
		return d.doSeek(ctx, cmd)
	case VerbPan:
		return d.doPan(ctx, cmd)
	case VerbPosition:
		return d.doPosition(cmd)
	case VerbListener:
		return d.doListener(ctx, cmd)
	case VerbOrient:
		return d.doOrient(ctx, cmd)
	case VerbUpdate:
		n, err := d.mgr.Tick()
		if err != nil {
			d.metrics.RecordBackendError(ctx, cmd.Verb.String())
			slog.Warn("protocol: update failed", "err", err)
		}
		d.metrics.RecordReclaimed(ctx, n)
		return ok("UPDATED"), nil
	case VerbPause:
		d.mgr.PauseAll()
		return ok("PAUSED"), nil
	case VerbResume:
		d.mgr.ResumeAll()
		return ok("RESUMED"), nil
	case VerbRelease:
		d.mgr.ReleaseAllSounds()
		return ok("RELEASED"), nil
	case VerbStatus:
		return d.doStatus(cmd)
	case VerbInfo:
		return d.doInfo(cmd)
	case VerbDebug:
		return d.doDebug(cmd), nil
	case VerbQuit:
		slog.Info("protocol: QUIT received")
		return ok("GOODBYE"), nil
	case VerbUnknown:
		if s := Suggest(cmd.Name); s != "" {
			slog.Warn("protocol: unknown command", "verb", cmd.Name, "suggestion", s)
		} else {
			slog.Warn("protocol: unknown command", "verb", cmd.Name)
		}
		return fail("UNKNOWN_COMMAND", cmd.Name), nil
	default:
		panic(fmt.Sprintf("protocol: unhandled verb %d", int(cmd.Verb)))
	}
}

// ─── Handlers ───────────────────────────────────────────────────────────────

func (d *Dispatcher) doInit(cmd Command) (string, error) {
	if d.mgr.Initialized() {
		slog.Warn("protocol: INIT called but already initialized")
		return fail("ALREADY_INITIALIZED"), nil
	}
	channels, err := cmd.intArg(0, d.defaults.MaxChannels)
	if err != nil {
		return "", err
	}
	driver, err := cmd.intArg(1, d.defaults.Driver)
	if err != nil {
		return "", err
	}
	if err := d.mgr.Init(channels, driver); err != nil {
		return "", err
	}
	return ok("INITIALIZED", "channels="+strconv.Itoa(channels), "driver="+strconv.Itoa(driver)), nil
}

func (d *Dispatcher) doLoad(ctx context.Context, cmd Command) (string, error) {
	if err := cmd.require(2, "missing source_id or filename"); err != nil {
		return "", err
	}
	id, file := cmd.arg(0), cmd.arg(1)
	is3D := cmd.boolArg(2)
	preload := d.defaults.Preload && !cmd.boolArg(3)
	if err := d.mgr.Load(id, file, is3D, preload); err != nil {
		return fail("LOAD_FAILED", id, d.reason(ctx, cmd, err)), nil
	}
	return ok("LOADED", id, "3d="+formatBool(is3D)), nil
}

func (d *Dispatcher) doPlay(ctx context.Context, cmd Command) (string, error) {
	if err := cmd.require(1, "missing source_id"); err != nil {
		return "", err
	}
	id := cmd.arg(0)
	pos, err := cmd.vectorArg(1, audio.Vector{})
	if err != nil {
		return "", err
	}
	vol, err := cmd.floatArg(4, 1)
	if err != nil {
		return "", err
	}
	minD, err := cmd.floatArg(6, 0)
	if err != nil {
		return "", err
	}
	maxD, err := cmd.floatArg(7, 0)
	if err != nil {
		return "", err
	}
	p := manager.PlayParams{
		Position:    pos,
		Volume:      vol,
		Looping:     cmd.boolArg(5),
		MinDistance: minD,
		MaxDistance: maxD,
	}
	if err := d.mgr.Play(id, p); err != nil {
		return fail("PLAY_FAILED", id, d.reason(ctx, cmd, err)), nil
	}
	return ok("PLAYING", id, "vol="+formatFloat(audio.ClampVolume(vol)), "loop="+formatBool(p.Looping)), nil
}

func (d *Dispatcher) doStop(ctx context.Context, cmd Command) (string, error) {
	if err := cmd.require(1, "missing source_id"); err != nil {
		return "", err
	}
	id := cmd.arg(0)
	if err := d.mgr.Stop(id); err != nil {
		return fail("STOP_FAILED", id, d.reason(ctx, cmd, err)), nil
	}
	return ok("STOPPED", id), nil
}

func (d *Dispatcher) doPitch(ctx context.Context, cmd Command) (string, error) {
	if err := cmd.require(2, "missing source_id or pitch"); err != nil {
		return "", err
	}
	id := cmd.arg(0)
	pitch, err := cmd.floatArg(1, 1)
	if err != nil {
		return "", err
	}
	if err := d.mgr.SetPitch(id, pitch); err != nil {
		return fail("PITCH_FAILED", id, d.reason(ctx, cmd, err)), nil
	}
	return ok("PITCH", id, formatFloat(pitch)), nil
}

func (d *Dispatcher) doSetVol(ctx context.Context, cmd Command) (string, error) {
	if err := cmd.require(2, "missing source_id or volume"); err != nil {
		return "", err
	}
	id := cmd.arg(0)
	vol, err := cmd.floatArg(1, 1)
	if err != nil {
		return "", err
	}
	stored, err := d.mgr.SetVolume(id, vol)
	if err != nil {
		return fail("SETVOL_FAILED", id, d.reason(ctx, cmd, err)), nil
	}
	return ok("SETVOL", id, formatFloat(stored)), nil
}

func (d *Dispatcher) doSeek(ctx context.Context, cmd Command) (string, error) {
	if err := cmd.require(2, "missing source_id or position"); err != nil {
		return "", err
	}
	id := cmd.arg(0)
	ms, err := cmd.intArg(1, 0)
	if err != nil {
		return "", err
	}
	if err := d.mgr.Seek(id, ms); err != nil {
		return fail("SEEK_FAILED", id, d.reason(ctx, cmd, err)), nil
	}
	return ok("SEEK", id, strconv.Itoa(ms)+"ms"), nil
}

func (d *Dispatcher) doPan(ctx context.Context, cmd Command) (string, error) {
	if err := cmd.require(2, "missing source_id or pan"); err != nil {
		return "", err
	}
	id := cmd.arg(0)
	pan, err := cmd.floatArg(1, 0)
	if err != nil {
		return "", err
	}
	applied, err := d.mgr.SetPan(id, pan)
	if err != nil {
		return fail("PAN_FAILED", id, d.reason(ctx, cmd, err)), nil
	}
	return ok("PAN", id, formatFloat(applied)), nil
}

func (d *Dispatcher) doPosition(cmd Command) (string, error) {
	if err := cmd.require(4, "missing source_id or position"); err != nil {
		return "", err
	}
	id := cmd.arg(0)
	pos, err := cmd.vectorArg(1, audio.Vector{})
	if err != nil {
		return "", err
	}
	if !d.mgr.UpdatePosition(id, pos) {
		return fail("POSITION_FAILED", id), nil
	}
	return ok("POSITION", id, formatVector(pos, " ")), nil
}

func (d *Dispatcher) doListener(ctx context.Context, cmd Command) (string, error) {
	if err := cmd.require(3, "missing position"); err != nil {
		return "", err
	}
	pos, err := cmd.vectorArg(0, audio.Vector{})
	if err != nil {
		return "", err
	}
	if err := d.mgr.SetListenerPosition(pos); err != nil {
		d.metrics.RecordBackendError(ctx, cmd.Verb.String())
		return fail("LISTENER_FAILED", err.Error()), nil
	}
	return ok("LISTENER", formatVector(pos, " ")), nil
}

func (d *Dispatcher) doOrient(ctx context.Context, cmd Command) (string, error) {
	if err := cmd.require(3, "missing forward vector"); err != nil {
		return "", err
	}
	fwd, err := cmd.vectorArg(0, audio.Vector{})
	if err != nil {
		return "", err
	}
	up, err := cmd.vectorArg(3, audio.Vector{Y: 1})
	if err != nil {
		return "", err
	}
	if err := d.mgr.SetListenerOrientation(fwd, up); err != nil {
		d.metrics.RecordBackendError(ctx, cmd.Verb.String())
		return fail("ORIENT_FAILED", err.Error()), nil
	}
	return ok("ORIENT", formatVector(fwd, " "), formatVector(up, " ")), nil
}

func (d *Dispatcher) doStatus(cmd Command) (string, error) {
	if !cmd.has(0) {
		ids := d.mgr.SourceIDs()
		return ok("STATUS", "sources="+strconv.Itoa(len(ids)), "["+strings.Join(ids, ",")+"]"), nil
	}
	id := cmd.arg(0)
	info, err := d.mgr.SourceInfo(id)
	if err != nil {
		return fail("STATUS_FAILED", id, "not_found"), nil
	}
	return ok("STATUS", id, "state="+info.State.String(), "vol="+formatFloat(info.Volume)), nil
}

func (d *Dispatcher) doInfo(cmd Command) (string, error) {
	if err := cmd.require(1, "missing source_id"); err != nil {
		return "", err
	}
	id := cmd.arg(0)
	info, err := d.mgr.SourceInfo(id)
	if err != nil {
		return fail("INFO_FAILED", id, "not_found"), nil
	}
	return ok("INFO", id,
		"file="+info.Filename,
		"3d="+formatBool(info.Is3D),
		"state="+info.State.String(),
		"vol="+formatFloat(info.Volume),
		"loop="+formatBool(info.Looping),
		"pos="+formatVector(info.Position, ","),
	), nil
}

func (d *Dispatcher) doDebug(cmd Command) string {
	if cmd.has(0) {
		switch strings.ToLower(cmd.arg(0)) {
		case "on", "true", "1":
			if lv := d.level.Level(); lv > slog.LevelDebug {
				d.quiet = lv
			}
			d.level.Set(slog.LevelDebug)
		default:
			d.level.Set(d.quiet)
		}
	}
	if d.level.Level() <= slog.LevelDebug {
		return ok("DEBUG", "ON")
	}
	return ok("DEBUG", "OFF")
}

// reason maps a manager error to the short failure reason of a response and
// counts backend failures.
func (d *Dispatcher) reason(ctx context.Context, cmd Command, err error) string {
	switch {
	case errors.Is(err, manager.ErrNotFound):
		return "not_found"
	case errors.Is(err, manager.ErrNotLoaded):
		return "not_loaded"
	case errors.Is(err, manager.ErrNotPlaying):
		return "not_playing"
	case errors.Is(err, manager.ErrUnsupported3D):
		return "not_2d"
	case errors.Is(err, manager.ErrAssetNotFound):
		return "file_not_found"
	case errors.Is(err, manager.ErrPlaybackFailed):
		d.metrics.RecordBackendError(ctx, cmd.Verb.String())
		return "no_channel"
	case errors.Is(err, manager.ErrBackend), errors.Is(err, manager.ErrLoadFailed):
		d.metrics.RecordBackendError(ctx, cmd.Verb.String())
		return "backend_error"
	default:
		return "invalid"
	}
}

// ─── Formatting ─────────────────────────────────────────────────────────────

func ok(parts ...string) string {
	return strings.Join(append([]string{"OK"}, parts...), " ")
}

func fail(code string, parts ...string) string {
	return strings.Join(append([]string{"ERROR", code}, parts...), " ")
}

// statusOf returns "ok" for OK lines and the error code otherwise.
func statusOf(line string) string {
	f := strings.Fields(line)
	if len(f) < 2 || f[0] == "OK" {
		return "ok"
	}
	return f[1]
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func formatVector(v audio.Vector, sep string) string {
	return formatFloat(v.X) + sep + formatFloat(v.Y) + sep + formatFloat(v.Z)
}
