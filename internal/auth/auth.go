// Package auth talks to the legacy login and session servers: it logs the
// proxy in, joins the real server on its behalf and checks that connecting
// clients joined the proxy.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultLoginURL = "https://login.minecraft.net/"
	DefaultJoinURL  = "http://session.minecraft.net/game/joinserver.jsp"
	DefaultCheckURL = "http://session.minecraft.net/game/checkserver.jsp"

	// launcherVersion is the client version the login server expects.
	launcherVersion = "13"

	requestTimeout = 10 * time.Second
	maxBodySize    = 4096
)

var (
	ErrLoginFailed = errors.New("auth: login failed")
	ErrJoinFailed  = errors.New("auth: join failed")
)

// Credential is a logged in account.
type Credential struct {
	Username  string
	SessionID string
}

// Authenticator is what a session needs from the login and session servers.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (Credential, error)
	JoinServer(ctx context.Context, cred Credential, serverHash string) error
	CheckServer(ctx context.Context, username, serverHash string) (bool, error)
}

// Client implements Authenticator over HTTP.
type Client struct {
	LoginURL string
	JoinURL  string
	CheckURL string

	http *http.Client
}

// NewClient returns a client for the given endpoints; empty ones fall back
// to the public defaults.
func NewClient(loginURL, joinURL, checkURL string) *Client {
	c := &Client{
		LoginURL: loginURL,
		JoinURL:  joinURL,
		CheckURL: checkURL,
		http:     &http.Client{Timeout: requestTimeout},
	}
	if c.LoginURL == "" {
		c.LoginURL = DefaultLoginURL
	}
	if c.JoinURL == "" {
		c.JoinURL = DefaultJoinURL
	}
	if c.CheckURL == "" {
		c.CheckURL = DefaultCheckURL
	}
	return c
}

// Login exchanges a username and password for a session id. The server
// answers "version:deprecated:username:session:uid" on success and a plain
// error message otherwise.
func (c *Client) Login(ctx context.Context, username, password string) (Credential, error) {
	body, err := c.get(ctx, c.LoginURL, url.Values{
		"user":     {username},
		"password": {password},
		"version":  {launcherVersion},
	})
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}

	parts := strings.Split(body, ":")
	if len(parts) != 5 {
		return Credential{}, fmt.Errorf("%w: %s", ErrLoginFailed, body)
	}
	return Credential{Username: parts[2], SessionID: parts[3]}, nil
}

// JoinServer tells the session server that cred is joining the server
// identified by serverHash.
func (c *Client) JoinServer(ctx context.Context, cred Credential, serverHash string) error {
	body, err := c.get(ctx, c.JoinURL, url.Values{
		"user":      {cred.Username},
		"sessionId": {cred.SessionID},
		"serverId":  {serverHash},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJoinFailed, err)
	}
	if body != "OK" {
		return fmt.Errorf("%w: %s", ErrJoinFailed, body)
	}
	return nil
}

// CheckServer asks whether username joined the server identified by
// serverHash.
func (c *Client) CheckServer(ctx context.Context, username, serverHash string) (bool, error) {
	body, err := c.get(ctx, c.CheckURL, url.Values{
		"user":     {username},
		"serverId": {serverHash},
	})
	if err != nil {
		return false, fmt.Errorf("auth: check server: %w", err)
	}
	return body == "YES", nil
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	return strings.TrimSpace(string(raw)), nil
}
