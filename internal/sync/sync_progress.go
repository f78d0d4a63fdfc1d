package sync

type ProgressPhase string

const (
	PhaseStart  ProgressPhase = "start"
	PhaseFinish ProgressPhase = "finish"
)

// ProgressEvent reports one path of a work unit. Err is set on finish events of
// failed units.
type ProgressEvent struct {
	Phase ProgressPhase
	Path  string
	Kind  ActionKind
	Err   error
}

// ProgressSink receives events from concurrently running work units, so Emit
// must be safe for concurrent use. Emit is synchronous: a slow sink slows the
// executor down instead of queueing events without bound.
type ProgressSink interface {
	Emit(ev ProgressEvent)
}

type ProgressFunc func(ev ProgressEvent)

func (f ProgressFunc) Emit(ev ProgressEvent) {
	f(ev)
}

// ChannelSink forwards events to a channel. The consumer must keep draining it
// until the execution returns, otherwise workers block.
type ChannelSink chan<- ProgressEvent

func (c ChannelSink) Emit(ev ProgressEvent) {
	c <- ev
}

type nopSink struct{}

func (nopSink) Emit(ProgressEvent) {}
