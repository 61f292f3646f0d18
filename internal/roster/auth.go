package roster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"

	"github.com/Tiliavir/rosterctl/internal/config"
	"github.com/Tiliavir/rosterctl/internal/logging"
)

// ErrNotSignedIn is returned when neither a static token nor a saved token
// is available.
var ErrNotSignedIn = errors.New("not signed in (run: rosterctl login)")

// tokenFilePath returns the path to the stored token file under base.
func tokenFilePath(base string) string {
	return filepath.Join(base, "auth", "tokens.json")
}

// oauth2Config returns the oauth2.Config for the roster backend.
func oauth2Config(cfg config.Config) *oauth2.Config {
	return &oauth2.Config{
		ClientID: cfg.Auth.ClientID,
		Scopes:   cfg.Auth.Scopes,
		Endpoint: oauth2.Endpoint{
			DeviceAuthURL: cfg.DeviceAuthURL(),
			TokenURL:      cfg.TokenURL(),
			AuthStyle:     oauth2.AuthStyleInParams,
		},
	}
}

// loadToken loads a previously saved token from disk. A missing file yields
// (nil, nil).
func loadToken(base string) (*oauth2.Token, error) {
	path := tokenFilePath(base)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading token file: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("corrupt token file (delete %s to re-authenticate): %w", path, err)
	}
	return &tok, nil
}

// saveToken persists a token to disk.
func saveToken(base string, tok *oauth2.Token) error {
	path := tokenFilePath(base)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating auth directory: %w", err)
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling token: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("saving token file: %w", err)
	}
	return nil
}

// savingTokenSource wraps a TokenSource and persists refreshed tokens.
type savingTokenSource struct {
	base string
	ts   oauth2.TokenSource
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.ts.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := saveToken(s.base, tok); err != nil {
			logging.Warn().Err(err).Msg("could not save refreshed token")
		}
	}
	return tok, nil
}

// TokenSource returns the token source for API calls: the static token from
// config when set, otherwise the saved device-code token, refreshed and
// re-saved as needed.
func TokenSource(ctx context.Context, base string, cfg config.Config) (oauth2.TokenSource, error) {
	if cfg.API.Token != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.API.Token, TokenType: "Bearer"}), nil
	}
	tok, err := loadToken(base)
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, ErrNotSignedIn
	}
	ts := oauth2Config(cfg).TokenSource(ctx, tok)
	return oauth2.ReuseTokenSource(tok, &savingTokenSource{base: base, ts: ts, last: tok.AccessToken}), nil
}

// Login runs the OAuth2 device code flow, printing the instructions to out,
// and saves the resulting token.
func Login(ctx context.Context, base string, cfg config.Config, out io.Writer) (*oauth2.Token, error) {
	oc := oauth2Config(cfg)
	resp, err := oc.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("device auth request failed: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "To sign in, use a web browser to open the page:")
	fmt.Fprintf(out, "  %s\n", resp.VerificationURI)
	fmt.Fprintf(out, "Enter the code: %s\n", resp.UserCode)
	fmt.Fprintln(out)

	tok, err := oc.DeviceAccessToken(ctx, resp)
	if err != nil {
		return nil, fmt.Errorf("device authentication failed: %w", err)
	}
	if err := saveToken(base, tok); err != nil {
		return tok, fmt.Errorf("could not save token: %w", err)
	}
	return tok, nil
}

// BearerToken returns a current access token for transports that cannot use
// the oauth2 http.Client, such as the WebSocket dialer.
func BearerToken(ts oauth2.TokenSource) (string, error) {
	tok, err := ts.Token()
	if err != nil {
		return "", fmt.Errorf("obtaining access token: %w", err)
	}
	return tok.AccessToken, nil
}
