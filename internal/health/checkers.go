package health

import "context"

// CheckFunc adapts a probe function to the Checker interface.
type CheckFunc struct {
	ProbeName  string
	IsCritical bool
	Probe      func(ctx context.Context) error
}

func (c CheckFunc) Name() string     { return c.ProbeName }
func (c CheckFunc) Critical() bool   { return c.IsCritical }
func (c CheckFunc) Check(ctx context.Context) error {
	return c.Probe(ctx)
}

// Pinger covers the Redis wrapper, the vector client, and the run
// writer, all of which expose Ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker probes any Pinger dependency.
func PingChecker(name string, critical bool, p Pinger) Checker {
	return CheckFunc{
		ProbeName:  name,
		IsCritical: critical,
		Probe:      p.Ping,
	}
}
