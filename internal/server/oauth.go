package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/t2r/internal/shared"
	"golang.org/x/oauth2"
)

// CallbackPath is where the provider redirects after consent.
const CallbackPath = "/callback"

// OAuthResult contains the result of an OAuth authorization flow.
type OAuthResult struct {
	Token *oauth2.Token
	err   error
}

func (o *OAuthResult) Error() error {
	return o.err
}

// OAuthHandler handles the authorization code callback, using PKCE when a verifier is set.
type OAuthHandler struct {
	ctx        context.Context
	config     *oauth2.Config
	state      string
	verifier   string
	resultChan chan OAuthResult
	once       sync.Once

	mu          sync.Mutex
	callbackHit bool
}

// NewOAuthHandler creates a handler for one callback. state must be unguessable.
func NewOAuthHandler(ctx context.Context, config *oauth2.Config, state, verifier string) *OAuthHandler {
	return &OAuthHandler{
		ctx:        ctx,
		config:     config,
		state:      state,
		verifier:   verifier,
		resultChan: make(chan OAuthResult, 1),
	}
}

// AuthCodeURL is the consent URL matching this handler's state and verifier.
func (h *OAuthHandler) AuthCodeURL() string {
	opts := []oauth2.AuthCodeOption{oauth2.AccessTypeOffline, oauth2.ApprovalForce}
	if h.verifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(h.verifier))
	}
	return h.config.AuthCodeURL(h.state, opts...)
}

// Routes returns the HTTP routes this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{CallbackPath}
}

// ServeHTTP handles the OAuth callback request. Only the first request is processed.
func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.callbackHit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.callbackHit = true
	h.mu.Unlock()

	query := r.URL.Query()
	if query.Get("state") != h.state {
		h.Send(OAuthResult{err: fmt.Errorf("%w: invalid state parameter", shared.ErrAuthFailed)})
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	code := query.Get("code")
	if code == "" {
		err := fmt.Errorf("%w: %s - %s", shared.ErrAuthFailed, query.Get("error"), query.Get("error_description"))
		h.Send(OAuthResult{err: err})
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	var opts []oauth2.AuthCodeOption
	if h.verifier != "" {
		opts = append(opts, oauth2.VerifierOption(h.verifier))
	}
	token, err := h.config.Exchange(h.ctx, code, opts...)
	if err != nil {
		h.Send(OAuthResult{err: fmt.Errorf("%w: token exchange failed: %v", shared.ErrAuthFailed, err)})
		http.Error(w, "Token exchange failed", http.StatusInternalServerError)
		return
	}

	h.Send(OAuthResult{Token: token})

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, successPage)
}

// Send sends the OAuth result through the channel (only once).
func (h *OAuthHandler) Send(result OAuthResult) {
	h.once.Do(func() {
		h.resultChan <- result
		close(h.resultChan)
	})
}

// Result returns the result channel for receiving OAuth flow completion.
//
// Channel will receive exactly one result and then be closed.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.resultChan
}

// FlowOpts configures [Authorize].
type FlowOpts struct {
	Addr    string                 // host:port to listen on; port 0 picks a free one
	Open    func(url string) error // Opens the consent page, usually [shared.OpenBrowser]
	Timeout time.Duration
	Logger  *log.Logger
	Output  io.Writer // Receives the consent URL when Open fails
}

// Authorize runs the authorization code flow against a temporary local callback server.
//
// config.RedirectURL is overwritten with the listener's callback URL on a copy of config.
func Authorize(ctx context.Context, config *oauth2.Config, opts FlowOpts) (*oauth2.Token, error) {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.Output == nil {
		opts.Output = io.Discard
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}

	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start callback listener: %w", err)
	}

	cfg := *config
	cfg.RedirectURL = "http://" + ln.Addr().String() + CallbackPath

	handler := NewOAuthHandler(ctx, &cfg, oauth2.GenerateVerifier(), oauth2.GenerateVerifier())
	router := NewBasicRouter()
	router.Use(Recoverer(opts.Logger), RequestLogger(opts.Logger))
	router.Handler(handler)

	httpServer := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}
	serverErrors := make(chan error, 1)
	go func() {
		opts.Logger.Info("starting OAuth callback server", "addr", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			opts.Logger.Warn("error shutting down server", "error", err)
		}
	}()

	authURL := handler.AuthCodeURL()
	if opts.Open == nil || opts.Open(authURL) != nil {
		fmt.Fprintf(opts.Output, "Open this URL in your browser:\n%s\n\n", authURL)
	}

	timeout := time.NewTimer(opts.Timeout)
	defer timeout.Stop()

	var result OAuthResult
	select {
	case result = <-handler.Result():
	case err := <-serverErrors:
		return nil, fmt.Errorf("callback server error: %w", err)
	case <-timeout.C:
		return nil, fmt.Errorf("%w: authorization timed out after %s", shared.ErrTimeout, opts.Timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if result.Error() != nil {
		return nil, result.Error()
	}
	if result.Token == nil {
		return nil, fmt.Errorf("%w: no token received", shared.ErrAuthFailed)
	}
	return result.Token, nil
}

const successPage = `<!DOCTYPE html>
<html>
<head>
    <title>t2r authorized</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #04B575; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>✓ Google Tasks connected</h1>
        <p>You can close this window and return to the terminal.</p>
    </div>
</body>
</html>
`
