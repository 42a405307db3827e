package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"pingme-link/internal/model"
)

var (
	// ErrUnauthorized covers 401s: no session, expired cookie, or a device
	// revoked behind our back.
	ErrUnauthorized = errors.New("not authenticated")
	// ErrPairingFailed covers every rejected pairing-token exchange:
	// expired, malformed, or already consumed.
	ErrPairingFailed = errors.New("pairing failed")
)

// Client calls the backend's REST surface. The durable credential lives in
// the cookie jar, set by the server on a successful token exchange.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Jar: jar, Timeout: 15 * time.Second},
	}, nil
}

// CheckAuth resumes the session for the given device. ErrUnauthorized means
// there is no usable session and local state should be cleared.
func (c *Client) CheckAuth(deviceID string) (model.Profile, error) {
	var profile model.Profile
	err := c.do(http.MethodGet, "/api/auth/check?deviceId="+deviceID, nil, &profile)
	return profile, err
}

type loginWithTokenRequest struct {
	PairingToken string           `json:"pairingToken"`
	DeviceInfo   model.DeviceInfo `json:"deviceInfo"`
}

// LoginWithToken exchanges a one-time pairing token plus the device
// descriptor for a durable session. The cookie jar captures the credential.
func (c *Client) LoginWithToken(pairingToken string, info model.DeviceInfo) (model.Profile, error) {
	var profile model.Profile
	err := c.do(http.MethodPost, "/api/auth/login-with-token", loginWithTokenRequest{
		PairingToken: pairingToken,
		DeviceInfo:   info,
	}, &profile)
	if err != nil {
		// Any rejection of the exchange is one user-visible condition.
		return model.Profile{}, fmt.Errorf("%w: %s", ErrPairingFailed, err)
	}
	return profile, nil
}

func (c *Client) Logout() error {
	return c.do(http.MethodPost, "/api/auth/logout", nil, nil)
}

func (c *Client) Users() ([]model.Profile, error) {
	var users []model.Profile
	err := c.do(http.MethodGet, "/api/messages/users", nil, &users)
	return users, err
}

func (c *Client) Messages(otherID string) ([]model.Message, error) {
	var msgs []model.Message
	err := c.do(http.MethodGet, "/api/messages/"+otherID, nil, &msgs)
	return msgs, err
}

type sendMessageRequest struct {
	Text  string `json:"text"`
	Image string `json:"image,omitempty"`
}

func (c *Client) SendMessage(toID, text, image string) (model.Message, error) {
	var msg model.Message
	err := c.do(http.MethodPost, "/api/messages/send/"+toID, sendMessageRequest{Text: text, Image: image}, &msg)
	return msg, err
}

func (c *Client) Devices() ([]model.Device, error) {
	var devices []model.Device
	err := c.do(http.MethodGet, "/api/auth/devices", nil, &devices)
	return devices, err
}

func (c *Client) UnlinkDevice(deviceID string) error {
	return c.do(http.MethodDelete, "/api/auth/devices/"+deviceID, nil, nil)
}

// AuthorizePairing confirms a displayed code on behalf of a user. In
// production this is the phone app's job; against the stub backend it lets
// one process play both sides of the handshake.
func (c *Client) AuthorizePairing(code, userID string) error {
	body := map[string]string{"pairingCode": code, "userId": userID}
	return c.do(http.MethodPost, "/api/pairing/authorize", body, nil)
}

func (c *Client) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&errBody) == nil && errBody.Error != "" {
			return fmt.Errorf("server: %s (%d)", errBody.Error, resp.StatusCode)
		}
		return fmt.Errorf("server: unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
