package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"

	"github.com/semmidev/backupkeeper/internal/infrastructure/logger"
)

// GoogleOAuthService runs the one-off consent flow that yields the refresh
// token a gdrive upload target needs.
type GoogleOAuthService struct {
	config     *oauth2.Config
	logger     *logger.Logger
	state      string
	tokens     chan *oauth2.Token
	authServer *http.Server
}

func NewGoogleOAuthService(logger *logger.Logger, clientSecretPath string) (*GoogleOAuthService, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if clientSecretPath == "" {
		return nil, errors.New("client secret path cannot be empty")
	}

	b, err := os.ReadFile(clientSecretPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret: %w", err)
	}

	cfg, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret: %w", err)
	}

	return &GoogleOAuthService{
		config: cfg,
		logger: logger,
		state:  uuid.NewString(),
		tokens: make(chan *oauth2.Token, 1),
	}, nil
}

// AuthURL is the consent page the operator has to open.
func (s *GoogleOAuthService) AuthURL() string {
	return s.config.AuthCodeURL(s.state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Handler serves the start and callback routes of the consent flow.
func (s *GoogleOAuthService) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /auth/google/drive", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, s.AuthURL(), http.StatusTemporaryRedirect)
	})

	mux.HandleFunc("GET /auth/google/callback", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != s.state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code parameter", http.StatusBadRequest)
			return
		}

		token, err := s.config.Exchange(r.Context(), code)
		if err != nil {
			s.logger.Errorf("Token exchange failed: %v", err)
			http.Error(w, "token exchange failed", http.StatusBadGateway)
			return
		}
		if token.RefreshToken == "" {
			fmt.Fprintln(w, "No refresh token returned. Revoke app access and authorize again.")
			return
		}

		fmt.Fprintf(w, "Add this to the gdrive upload target:\n\n    refresh_token: %q\n", token.RefreshToken)

		select {
		case s.tokens <- token:
		default:
		}
	})

	return mux
}

// Start listens on addr and serves Handler in the background.
func (s *GoogleOAuthService) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.authServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.logger.Infof("Google Drive OAuth server listening on %s", ln.Addr())
		if err := s.authServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("OAuth server error: %v", err)
		}
	}()

	return nil
}

// WaitToken blocks until the callback delivered a token carrying a refresh
// token, or ctx is done.
func (s *GoogleOAuthService) WaitToken(ctx context.Context) (*oauth2.Token, error) {
	select {
	case token := <-s.tokens:
		return token, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *GoogleOAuthService) Shutdown(ctx context.Context) error {
	if s.authServer == nil {
		return nil
	}

	if err := s.authServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown OAuth server: %w", err)
	}
	s.logger.Infof("OAuth server stopped")
	return nil
}
