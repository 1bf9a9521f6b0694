// Package smartapi is a market-data client for the Angel One SmartAPI.
// It covers the session lifecycle (TOTP login, token refresh, logout)
// and the two data endpoints this module consumes: historical candles
// and last-traded-price quotes. Order placement and portfolio routes are
// out of scope.
//
// Usage:
//
//	c := smartapi.New(smartapi.Config{
//	    APIKey:     os.Getenv("SMARTAPI_KEY"),
//	    ClientCode: os.Getenv("SMARTAPI_CLIENT"),
//	    Password:   os.Getenv("SMARTAPI_PASSWORD"),
//	    TOTPSecret: os.Getenv("SMARTAPI_TOTP_SECRET"),
//	})
//	if err := c.Login(ctx); err != nil { log.Fatal(err) }
//	candles, err := c.CandleData(ctx, smartapi.CandleRequest{...})
package smartapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
)

const defaultBaseURL = "https://apiconnect.angelone.in"

var routes = map[string]string{
	"login":   "/rest/auth/angelbroking/user/v1/loginByPassword",
	"logout":  "/rest/secure/angelbroking/user/v1/logout",
	"refresh": "/rest/auth/angelbroking/jwt/v1/generateTokens",
	"profile": "/rest/secure/angelbroking/user/v1/getProfile",
	"candles": "/rest/secure/angelbroking/historical/v1/getCandleData",
	"ltp":     "/rest/secure/angelbroking/order/v1/getLtpData",
}

// ErrNotLoggedIn is returned by data endpoints before a successful Login.
var ErrNotLoggedIn = errors.New("smartapi: not logged in")

type Config struct {
	APIKey     string
	ClientCode string
	Password   string
	TOTPSecret string // base32 secret; a fresh code is generated per login

	BaseURL    string        // default: https://apiconnect.angelone.in
	Timeout    time.Duration // default: 7s
	HTTPClient *http.Client  // optional, for tests
}

type Client struct {
	cfg Config

	accessToken  string
	refreshToken string
	feedToken    string

	httpClient *http.Client
	localIP    string
	macAddr    string
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		cfg:        cfg,
		httpClient: hc,
		localIP:    localIP(),
		macAddr:    macAddress(),
	}
}

// FeedToken returns the websocket feed token from the current session.
func (c *Client) FeedToken() string { return c.feedToken }

// LoggedIn reports whether the client holds a session token.
func (c *Client) LoggedIn() bool { return c.accessToken != "" }

// Login generates a fresh TOTP code and opens a session. Tokens are kept
// on the client for subsequent calls.
func (c *Client) Login(ctx context.Context) error {
	code, err := totp.GenerateCode(c.cfg.TOTPSecret, time.Now())
	if err != nil {
		return fmt.Errorf("smartapi: totp generation: %w", err)
	}

	var data struct {
		JWTToken     string `json:"jwtToken"`
		RefreshToken string `json:"refreshToken"`
		FeedToken    string `json:"feedToken"`
	}
	err = c.do(ctx, "login", map[string]any{
		"clientcode": c.cfg.ClientCode,
		"password":   c.cfg.Password,
		"totp":       code,
	}, &data)
	if err != nil {
		return fmt.Errorf("smartapi: login: %w", err)
	}
	if data.JWTToken == "" {
		return errors.New("smartapi: login returned empty token")
	}
	c.accessToken = data.JWTToken
	c.refreshToken = data.RefreshToken
	c.feedToken = data.FeedToken
	return nil
}

// RefreshSession exchanges the refresh token for new session tokens.
func (c *Client) RefreshSession(ctx context.Context) error {
	if c.refreshToken == "" {
		return ErrNotLoggedIn
	}
	var data struct {
		JWTToken  string `json:"jwtToken"`
		FeedToken string `json:"feedToken"`
	}
	err := c.do(ctx, "refresh", map[string]any{
		"refreshToken": c.refreshToken,
	}, &data)
	if err != nil {
		return fmt.Errorf("smartapi: refresh: %w", err)
	}
	if data.JWTToken != "" {
		c.accessToken = data.JWTToken
	}
	if data.FeedToken != "" {
		c.feedToken = data.FeedToken
	}
	return nil
}

// Logout terminates the session and clears tokens.
func (c *Client) Logout(ctx context.Context) error {
	if c.accessToken == "" {
		return nil
	}
	err := c.do(ctx, "logout", map[string]any{"clientcode": c.cfg.ClientCode}, nil)
	c.accessToken = ""
	c.refreshToken = ""
	c.feedToken = ""
	return err
}

// apiEnvelope is the common SmartAPI response wrapper.
type apiEnvelope struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorcode"`
	Data      json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, route string, params map[string]any, out any) error {
	path, ok := routes[route]
	if !ok {
		return fmt.Errorf("unknown route: %s", route)
	}

	body, err := json.Marshal(params)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http %d: %s", resp.StatusCode, truncate(raw, 200))
	}

	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	if !env.Status {
		return fmt.Errorf("api error %s: %s", env.ErrorCode, env.Message)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("parse data: %w", err)
		}
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	h := req.Header
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("X-ClientLocalIP", c.localIP)
	h.Set("X-ClientPublicIP", c.localIP)
	h.Set("X-MACAddress", c.macAddr)
	h.Set("X-PrivateKey", c.cfg.APIKey)
	h.Set("X-UserType", "USER")
	h.Set("X-SourceID", "WEB")
	if c.accessToken != "" {
		h.Set("Authorization", "Bearer "+c.accessToken)
	}
}

func localIP() string {
	addrs, err := net.InterfaceAddrs()
	if err == nil {
		for _, a := range addrs {
			if ipNet, ok := a.(*net.IPNet); ok && !ipNet.IP.IsLoopback() && ipNet.IP.To4() != nil {
				return ipNet.IP.String()
			}
		}
	}
	return "127.0.0.1"
}

func macAddress() string {
	ifs, _ := net.Interfaces()
	for _, ifc := range ifs {
		if len(ifc.HardwareAddr) > 0 {
			return ifc.HardwareAddr.String()
		}
	}
	return "00:11:22:33:44:55"
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
