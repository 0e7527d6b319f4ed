package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/viant/gosh"
	"github.com/viant/gosh/runner/local"
	"github.com/viant/jsonrpc"
	"github.com/viant/jsonrpc/transport"
	protoClient "github.com/viant/mcp-protocol/client"
	protologger "github.com/viant/mcp-protocol/logger"
	"github.com/viant/mcp-protocol/schema"
	protoserver "github.com/viant/mcp-protocol/server"

	"github.com/viant/mcp/client"
	authtransport "github.com/viant/mcp-remote/client/auth/transport"
	"github.com/viant/mcp-remote/internal/authstore"
	"github.com/viant/mcp-remote/internal/bridgelog"
	"github.com/viant/mcp-remote/internal/oauthprovider"
	"github.com/viant/mcp-remote/internal/serverid"
	"github.com/viant/mcp-remote/internal/transportselector"
	stdiosrv "github.com/viant/jsonrpc/transport/server/stdio"
	mcpserver "github.com/viant/mcp/server"
)

// Service is one running bridge session against args.ServerURL.
type Service struct {
	args      *Args
	log       bridgelog.Logger
	store     *authstore.Store
	provider  *oauthprovider.Provider
	authRT    *authtransport.RoundTripper
	selector  *transportselector.Selector
	ignoredTools map[string]bool
}

// New wires the Config Store, OAuth Provider and Transport Selector for a
// single remote server, per the flags in args.
func New(args *Args, log bridgelog.Logger) (*Service, error) {
	if log == nil {
		log = bridgelog.Nop{}
	}
	hash := serverid.Hash(args.ServerURL)
	if err := authstore.Prune(map[string]string{hash: args.ServerURL}); err != nil {
		log.Warn("prune stale config store directories", "err", err)
	}

	store, err := authstore.Open(args.ServerURL, hash)
	if err != nil {
		return nil, &Error{Kind: KindConfig, Cause: fmt.Errorf("bridge: open config store: %w", err)}
	}

	static := oauthprovider.StaticConfig{
		ClientMetadata:    rawJSON(args.StaticClientMetadata),
		ClientInfo:        rawJSON(args.StaticClientInfo),
		Scopes:            args.OAuthScopes,
		AuthorizeResource: args.AuthorizeResource,
	}
	provider := oauthprovider.New(store, static, args.Host)

	callbackPort := args.CallbackPort
	if callbackPort == 0 {
		callbackPort = 3334
	}

	goshService, err := gosh.New(context.Background(), local.New())
	if err != nil {
		return nil, &Error{Kind: KindConfig, Cause: fmt.Errorf("bridge: start local shell runner: %w", err)}
	}

	flow := &oauthprovider.CoordinatedFlow{
		Provider:     provider,
		Host:         args.Host,
		CallbackPort: callbackPort,
		Runner:       goshService,
		Stderr:       os.Stderr,
	}
	authRT, err := authtransport.New(
		authtransport.WithProvider(provider),
		authtransport.WithAuthFlow(flow),
		authtransport.WithCallback(args.Host, callbackPort),
	)
	if err != nil {
		return nil, &Error{Kind: KindConfig, Cause: err}
	}

	selector := &transportselector.Selector{
		URL:      args.ServerURL,
		Strategy: transportselector.Parse(args.TransportStrategy),
		AuthRT:   authRT,
		Headers:  args.Headers,
		Logger:   log,
	}

	ignored := make(map[string]bool, len(args.IgnoredTools))
	for _, name := range args.IgnoredTools {
		ignored[name] = true
	}

	return &Service{
		args:         args,
		log:          log,
		store:        store,
		provider:     provider,
		authRT:       authRT,
		selector:     selector,
		ignoredTools: ignored,
	}, nil
}

// Run connects to the remote server and serves it on stdio until ctx is
// cancelled or either side closes. An authorization failure is invalidated
// and retried once before being surfaced as fatal, per the runtime's retry
// policy.
func (s *Service) Run(ctx context.Context) error {
	remoteTransport, err := s.connectWithAuthRetry(ctx)
	if err != nil {
		return err
	}

	remoteClient := client.New("mcp-remote", "0.1", remoteTransport,
		client.WithCapabilities(schema.ClientCapabilities{}))
	if _, err := remoteClient.Initialize(ctx); err != nil {
		return &Error{Kind: KindTransport, Cause: fmt.Errorf("bridge: initialize remote session: %w", err)}
	}

	newImplementer := func(ctx context.Context, _ transport.Notifier, _ protologger.Logger, _ protoClient.Operations) (protoserver.Implementer, error) {
		return &forwardingImplementer{remote: remoteClient, ignoredTools: s.ignoredTools}, nil
	}
	upstream, err := mcpserver.New(mcpserver.WithNewImplementer(newImplementer))
	if err != nil {
		return &Error{Kind: KindConfig, Cause: err}
	}

	srv := stdiosrv.New(ctx, upstream.NewHandler)
	s.log.Info("bridge ready", "serverUrl", s.args.ServerURL, "transport", s.selector.Strategy)
	if err := srv.ListenAndServe(); err != nil {
		return &Error{Kind: KindTransport, Cause: err}
	}
	return nil
}

// ProbeResult is what Probe reports about a successful connection, for a
// human operator or a test harness to eyeball.
type ProbeResult struct {
	ServerInfo schema.Implementation
	Tools      []schema.Tool
}

// Probe connects and initializes a session against the remote server, lists
// its tools and returns, without bridging anything on stdio. It exercises
// exactly the same Config Store, OAuth Provider and Transport Selector path
// as Run, making it a loopback smoke test for a server/auth combination.
func (s *Service) Probe(ctx context.Context) (*ProbeResult, error) {
	remoteTransport, err := s.connectWithAuthRetry(ctx)
	if err != nil {
		return nil, err
	}
	remoteClient := client.New("mcp-remote-client", "0.1", remoteTransport,
		client.WithCapabilities(schema.ClientCapabilities{}))
	initResult, err := remoteClient.Initialize(ctx)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Cause: fmt.Errorf("bridge: initialize remote session: %w", err)}
	}
	listResult, err := remoteClient.ListTools(ctx, nil)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Cause: fmt.Errorf("bridge: list remote tools: %w", err)}
	}
	var tools []schema.Tool
	if listResult != nil {
		for _, tool := range listResult.Tools {
			if !s.ignoredTools[tool.Name] {
				tools = append(tools, tool)
			}
		}
	}
	return &ProbeResult{ServerInfo: initResult.ServerInfo, Tools: tools}, nil
}

// connectWithAuthRetry connects once, and on a persistent authorization
// failure invalidates the cached tokens and retries exactly once before
// surfacing the failure, per the Bridge Runtime's retry policy (§4.6). A
// cancellation (ctx.Err() != nil) is passed through untouched so the caller
// reports a clean shutdown instead of a failure, and a non-authorization
// dial failure (bad URL, exhausted network retries) is surfaced as-is
// without touching the Config Store.
func (s *Service) connectWithAuthRetry(ctx context.Context) (transport.Transport, error) {
	tr, err := s.selector.Connect(ctx)
	if err == nil {
		return tr, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	var authErr *authtransport.AuthError
	if !errors.As(err, &authErr) {
		return nil, &Error{Kind: KindTransport, Cause: fmt.Errorf("bridge: connect to %s: %w", s.args.ServerURL, err)}
	}

	s.log.Warn("authorization failed, invalidating cached credentials and retrying once", "err", err)
	_ = s.provider.InvalidateCredentials(authstore.InvalidateTokens)
	tr, err = s.selector.Reconnect(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &Error{Kind: KindAuth, Cause: fmt.Errorf("bridge: connect to %s: %w", s.args.ServerURL, err)}
	}
	return tr, nil
}

func rawJSON(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	return json.RawMessage(s)
}

// forwardingImplementer proxies an upstream stdio JSON-RPC request to the
// already-authorized remote session, filtering ignored tool names out of
// tools/list and rejecting tools/call for them before they reach the remote.
type forwardingImplementer struct {
	remote       client.Interface
	ignoredTools map[string]bool
}

func (f *forwardingImplementer) Initialize(ctx context.Context, _ *schema.InitializeRequestParams, result *schema.InitializeResult) {
	res, err := f.remote.Initialize(ctx)
	if err != nil {
		return
	}
	*result = *res
}

func (f *forwardingImplementer) ListResources(ctx context.Context, request *schema.ListResourcesRequest) (*schema.ListResourcesResult, *jsonrpc.Error) {
	res, err := f.remote.ListResources(ctx, request.Params.Cursor)
	return res, toRPCError(err)
}

func (f *forwardingImplementer) ListResourceTemplates(ctx context.Context, request *schema.ListResourceTemplatesRequest) (*schema.ListResourceTemplatesResult, *jsonrpc.Error) {
	res, err := f.remote.ListResourceTemplates(ctx, request.Params.Cursor)
	return res, toRPCError(err)
}

func (f *forwardingImplementer) ReadResource(ctx context.Context, request *schema.ReadResourceRequest) (*schema.ReadResourceResult, *jsonrpc.Error) {
	res, err := f.remote.ReadResource(ctx, &request.Params)
	return res, toRPCError(err)
}

func (f *forwardingImplementer) Subscribe(ctx context.Context, request *schema.SubscribeRequest) (*schema.SubscribeResult, *jsonrpc.Error) {
	res, err := f.remote.Subscribe(ctx, &request.Params)
	return res, toRPCError(err)
}

func (f *forwardingImplementer) Unsubscribe(ctx context.Context, request *schema.UnsubscribeRequest) (*schema.UnsubscribeResult, *jsonrpc.Error) {
	res, err := f.remote.Unsubscribe(ctx, &request.Params)
	return res, toRPCError(err)
}

func (f *forwardingImplementer) ListPrompts(ctx context.Context, request *schema.ListPromptsRequest) (*schema.ListPromptsResult, *jsonrpc.Error) {
	res, err := f.remote.ListPrompts(ctx, request.Params.Cursor)
	return res, toRPCError(err)
}

func (f *forwardingImplementer) GetPrompt(ctx context.Context, request *schema.GetPromptRequest) (*schema.GetPromptResult, *jsonrpc.Error) {
	res, err := f.remote.GetPrompt(ctx, &request.Params)
	return res, toRPCError(err)
}

// ListTools proxies tools/list, filtering out any tool named in --ignore-tool.
func (f *forwardingImplementer) ListTools(ctx context.Context, request *schema.ListToolsRequest) (*schema.ListToolsResult, *jsonrpc.Error) {
	res, err := f.remote.ListTools(ctx, request.Params.Cursor)
	if err != nil || res == nil || len(f.ignoredTools) == 0 {
		return res, toRPCError(err)
	}
	kept := res.Tools[:0]
	for _, tool := range res.Tools {
		if !f.ignoredTools[tool.Name] {
			kept = append(kept, tool)
		}
	}
	res.Tools = kept
	return res, nil
}

// CallTool proxies tools/call, rejecting calls against an ignored tool
// before they reach the remote transport.
func (f *forwardingImplementer) CallTool(ctx context.Context, request *schema.CallToolRequest) (*schema.CallToolResult, *jsonrpc.Error) {
	if f.ignoredTools[request.Params.Name] {
		return nil, jsonrpc.NewMethodNotFound(fmt.Sprintf("tool %q is ignored by this bridge", request.Params.Name), nil)
	}
	res, err := f.remote.CallTool(ctx, &request.Params)
	return res, toRPCError(err)
}

func (f *forwardingImplementer) Complete(ctx context.Context, request *schema.CompleteRequest) (*schema.CompleteResult, *jsonrpc.Error) {
	res, err := f.remote.Complete(ctx, &request.Params)
	return res, toRPCError(err)
}

func (f *forwardingImplementer) SetLevel(ctx context.Context, request *schema.SetLevelRequest) (*schema.SetLevelResult, *jsonrpc.Error) {
	res, err := f.remote.SetLevel(ctx, &request.Params)
	return res, toRPCError(err)
}

func (f *forwardingImplementer) OnNotification(ctx context.Context, notification *jsonrpc.Notification) {
	// The remote session already receives its own notifications directly;
	// nothing from the upstream client needs forwarding downstream.
}

func (f *forwardingImplementer) Implements(method string) bool {
	switch method {
	case schema.MethodInitialize,
		schema.MethodPing,
		schema.MethodResourcesList,
		schema.MethodResourcesTemplatesList,
		schema.MethodResourcesRead,
		schema.MethodSubscribe,
		schema.MethodUnsubscribe,
		schema.MethodPromptsList,
		schema.MethodPromptsGet,
		schema.MethodToolsList,
		schema.MethodToolsCall,
		schema.MethodComplete,
		schema.MethodLoggingSetLevel:
		return true
	}
	return false
}

func toRPCError(err error) *jsonrpc.Error {
	if err == nil {
		return nil
	}
	if rpcErr, ok := err.(*jsonrpc.Error); ok {
		return rpcErr
	}
	return jsonrpc.NewInternalError(err.Error(), nil)
}
