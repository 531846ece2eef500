package resolver

import "github.com/sirupsen/logrus"

// traceLogger emits structured trace events during search, mirroring the
// teacher's SolveParameters.TraceLogger/Trace-bool pattern. A nil logger
// (the default) means tracing is off; Resolver.SetTrace installs one.
type traceLogger struct {
	log *logrus.Logger
}

func newTraceLogger(l *logrus.Logger) *traceLogger {
	if l == nil {
		return nil
	}
	return &traceLogger{log: l}
}

func (t *traceLogger) choose(target *Module, req Req, cap Cap) {
	if t == nil {
		return
	}
	t.log.WithFields(logrus.Fields{
		"event":    "resolver.choose",
		"target":   target.errString(),
		"provider": cap.EffectiveOwner(),
	}).Debug("chose candidate")
}

func (t *traceLogger) permute(kind string, depth int) {
	if t == nil {
		return
	}
	t.log.WithFields(logrus.Fields{
		"event": "resolver.permute",
		"stack": kind,
		"depth": depth,
	}).Debug("pushed permutation")
}

func (t *traceLogger) backtrack(f *ResolveFailure) {
	if t == nil {
		return
	}
	t.log.WithFields(logrus.Fields{
		"event": "resolver.backtrack",
		"kind":  f.Kind,
	}).Debug(f.Message)
}
