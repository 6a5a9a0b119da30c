package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"ledger/internal/config"
	gsheet "ledger/internal/sheets/google"
)

const oauthTimeout = 5 * time.Minute

func (a *App) journalCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Manage the Google Sheets journal",
		// The journal commands never touch the ledger store.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	}

	var tokenFile string
	auth := &cobra.Command{
		Use:   "auth",
		Short: "Authorize journal access with a Google account and save the token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			oc, err := gsheet.OAuthConfig(cfg.GoogleOAuthClientJSON, cfg.GoogleOAuthClientFile)
			if err != nil {
				return err
			}
			if tokenFile == "" {
				tokenFile = cfg.GoogleOAuthTokenFile
			}
			if tokenFile == "" {
				tokenFile = "token.json"
			}

			tok, err := a.authorize(cmd.Context(), oc, cfg.OAuthRedirectPort)
			if err != nil {
				return err
			}
			if err := gsheet.SaveToken(tokenFile, tok); err != nil {
				return err
			}
			a.success("Saved token to %s", tokenFile)
			return nil
		},
	}
	auth.Flags().StringVarP(&tokenFile, "token-file", "o", "", "where to write the token (default: GOOGLE_OAUTH_TOKEN_FILE or token.json)")

	cmd.AddCommand(auth)
	return cmd
}

// authorize runs the installed-app flow against a local callback server.
func (a *App) authorize(ctx context.Context, oc *oauth2.Config, port string) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "localhost:"+port)
	if err != nil {
		return nil, fmt.Errorf("listen for OAuth callback: %w", err)
	}
	oc.RedirectURL = "http://localhost:" + port + "/callback"

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)
	srv := &http.Server{Handler: callbackHandler(codeCh, errCh), ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	fmt.Fprint(a.out, pterm.Info.Sprintfln("Open this URL to authorize:\n%s", oc.AuthCodeURL("state-token", oauth2.AccessTypeOffline)))

	ctx, cancel := context.WithTimeout(ctx, oauthTimeout)
	defer cancel()
	select {
	case code := <-codeCh:
		tok, err := oc.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("token exchange: %w", err)
		}
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.New("authorization timed out")
		}
		return nil, ctx.Err()
	}
}

func callbackHandler(codeCh chan<- string, errCh chan<- error) http.Handler {
	r := chi.NewRouter()
	r.Get("/callback", func(w http.ResponseWriter, r *http.Request) {
		if msg := r.URL.Query().Get("error"); msg != "" {
			http.Error(w, "OAuth error: "+msg, http.StatusBadRequest)
			select {
			case errCh <- fmt.Errorf("authorization denied: %s", msg):
			default:
			}
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "You may close this window and return to the terminal.")
		select {
		case codeCh <- code:
		default:
		}
	})
	return r
}
