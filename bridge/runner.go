package bridge

import (
	"context"

	"github.com/viant/mcp-remote/internal/bridgelog"
)

// Run parses argv per ParseCommandLineArgs, builds a Service and serves it on
// stdio until ctx is cancelled or the remote connection is lost beyond its
// retry budget. Both bridge executables share this entrypoint, differing only
// in which upstream they expose on stdio.
func Run(ctx context.Context, argv []string, log bridgelog.Logger) error {
	args, err := ParseCommandLineArgs(argv)
	if err != nil {
		return &Error{Kind: KindConfig, Cause: err}
	}
	svc, err := New(args, log)
	if err != nil {
		return err
	}
	return svc.Run(ctx)
}

// RunProbe parses argv the same way Run does but, instead of bridging stdio,
// connects, lists the remote's tools and returns without serving anything —
// the loopback test entrypoint.
func RunProbe(ctx context.Context, argv []string, log bridgelog.Logger) (*ProbeResult, error) {
	args, err := ParseCommandLineArgs(argv)
	if err != nil {
		return nil, &Error{Kind: KindConfig, Cause: err}
	}
	svc, err := New(args, log)
	if err != nil {
		return nil, err
	}
	return svc.Probe(ctx)
}
