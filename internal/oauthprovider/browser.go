package oauthprovider

import (
	"context"
	"fmt"
	"io"
	"runtime"
)

// Runner is the shape of github.com/viant/gosh's Service.Run: execute a
// shell command and return its combined output and exit code. The
// dependency on the concrete gosh.Service is kept at the call site that
// constructs one (bridge/service.go) so that a Provider can be tested, and
// degrade gracefully, without a live shell.
type Runner interface {
	Run(ctx context.Context, command string) (output string, code int, err error)
}

// OpenBrowser shells out to the platform's URL opener through runner the
// same way the terminal tool runs an arbitrary command, rather than through
// a bespoke os/exec invocation per OS. If runner is nil, or the command
// fails, the sanitized URL is written to fallback instead so the user can
// open it by hand.
func OpenBrowser(ctx context.Context, runner Runner, fallback io.Writer, rawURL string) error {
	sanitized, err := Sanitize(rawURL)
	if err != nil {
		return fmt.Errorf("oauthprovider: refusing to open unsafe URL: %w", err)
	}
	if runner == nil {
		printFallback(fallback, sanitized)
		return nil
	}
	output, code, err := runner.Run(ctx, openerCommand(sanitized))
	if err != nil || code != 0 {
		printFallback(fallback, sanitized)
		return fmt.Errorf("oauthprovider: open browser (exit %d): %w: %s", code, err, output)
	}
	return nil
}

func openerCommand(sanitizedURL string) string {
	switch runtime.GOOS {
	case "darwin":
		return fmt.Sprintf("open %q", sanitizedURL)
	case "windows":
		return fmt.Sprintf("rundll32 url.dll,FileProtocolHandler %q", sanitizedURL)
	default:
		return fmt.Sprintf("xdg-open %q", sanitizedURL)
	}
}

func printFallback(w io.Writer, sanitizedURL string) {
	if w == nil {
		return
	}
	fmt.Fprintf(w, "Please open the following URL in your browser to authorize this client:\n%s\n", sanitizedURL)
}
