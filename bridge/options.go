package bridge

import (
	"fmt"
	"strconv"
	"strings"
)

// Args is the parsed, validated command line for both bridge executables.
// ParseCommandLineArgs is a pure function of its input vector: same argv,
// same Args, every time.
type Args struct {
	ServerURL         string
	CallbackPort      int
	Host              string
	TransportStrategy string
	AllowHTTP         bool
	Headers           map[string]string
	IgnoredTools      []string

	StaticClientMetadata string
	StaticClientInfo     string
	OAuthScopes          string
	AuthorizeResource    string
}

const defaultTransportStrategy = "http-first"
const defaultHost = "localhost"

var validStrategies = map[string]bool{
	"http-only": true, "sse-only": true, "http-first": true, "sse-first": true,
}

// ParseCommandLineArgs parses argv (excluding the program name) per the
// bridge's flag grammar:
//
//	<serverUrl> [callbackPort]
//	  [--header "Name: value"]...
//	  [--transport sse-only|http-only|sse-first|http-first]
//	  [--host <hostname>]
//	  [--allow-http]
//	  [--ignore-tool <name>]...
//	  [--static-oauth-client-metadata <json>]
//	  [--static-oauth-client-info <json>]
//	  [--oauth-scopes <space-separated>]
//	  [--authorize-resource <uri>]
//
// The first positional is the server URL; a second positional, if present
// and entirely numeric, is the callback port (a non-numeric second
// positional is simply ignored rather than rejected, keeping the function
// total over any input). Unknown --transport values fall back to the
// default silently. Malformed headers (no colon) are discarded. It returns
// an error in exactly two cases: a missing server URL, since nothing
// downstream can run without one, and a plaintext http:// URL to a host other
// than localhost/127.0.0.1 without --allow-http.
func ParseCommandLineArgs(argv []string) (*Args, error) {
	args := &Args{
		Host:              defaultHost,
		TransportStrategy: defaultTransportStrategy,
		Headers:           map[string]string{},
	}

	var positionals []string
	i := 0
	for i < len(argv) {
		tok := argv[i]
		switch tok {
		case "--header":
			if v, ok := next(argv, &i); ok {
				if name, value, ok := splitHeader(v); ok {
					args.Headers[name] = value
				}
			}
		case "--transport":
			if v, ok := next(argv, &i); ok {
				if validStrategies[v] {
					args.TransportStrategy = v
				}
			}
		case "--host":
			if v, ok := next(argv, &i); ok {
				args.Host = v
			}
		case "--allow-http":
			args.AllowHTTP = true
			i++
		case "--ignore-tool":
			if v, ok := next(argv, &i); ok {
				args.IgnoredTools = append(args.IgnoredTools, v)
			}
		case "--static-oauth-client-metadata":
			if v, ok := next(argv, &i); ok {
				args.StaticClientMetadata = v
			}
		case "--static-oauth-client-info":
			if v, ok := next(argv, &i); ok {
				args.StaticClientInfo = v
			}
		case "--oauth-scopes":
			if v, ok := next(argv, &i); ok {
				args.OAuthScopes = v
			}
		case "--authorize-resource":
			if v, ok := next(argv, &i); ok {
				args.AuthorizeResource = v
			}
		default:
			positionals = append(positionals, tok)
			i++
		}
	}

	if len(positionals) == 0 {
		return nil, fmt.Errorf("bridge: a server URL is required")
	}
	args.ServerURL = positionals[0]
	if len(positionals) > 1 {
		if port, err := strconv.Atoi(positionals[1]); err == nil {
			args.CallbackPort = port
		}
	}

	if !args.AllowHTTP && strings.HasPrefix(args.ServerURL, "http://") {
		host := hostOf(args.ServerURL)
		if host != "localhost" && host != "127.0.0.1" {
			return nil, fmt.Errorf("bridge: plaintext http:// to non-loopback host %q requires --allow-http", host)
		}
	}

	return args, nil
}

func next(argv []string, i *int) (string, bool) {
	*i++
	if *i >= len(argv) {
		return "", false
	}
	v := argv[*i]
	*i++
	return v, true
}

// splitHeader splits "Name: value" into (name, value), preserving any
// leading whitespace on value exactly as typed. A token without a colon is
// not a valid header and is discarded by the caller.
func splitHeader(raw string) (name, value string, ok bool) {
	idx := strings.Index(raw, ":")
	if idx < 0 {
		return "", "", false
	}
	return raw[:idx], raw[idx+1:], true
}

func hostOf(rawURL string) string {
	rest := strings.TrimPrefix(rawURL, "http://")
	rest = strings.TrimPrefix(rest, "https://")
	if idx := strings.IndexAny(rest, "/:"); idx >= 0 {
		rest = rest[:idx]
	}
	return rest
}
