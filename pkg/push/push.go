// Package push implements the dashboard's push notification subscription
// flow. It talks to the origin's push endpoints and performs no caching
// itself; it only requires that the offline worker has activated.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	offlinecache "github.com/cat-feeder/offline-cache"

	"github.com/rs/zerolog"
)

// ErrNotActive is returned when the subscription flow is attempted before
// the lifecycle controller has activated.
var ErrNotActive = errors.New("push: worker not active")

type Keys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Subscription is the subscription object registered with the platform's
// push service and posted to the origin.
type Subscription struct {
	Endpoint string `json:"endpoint"`
	Keys     Keys   `json:"keys"`
}

// Activator reports the lifecycle state of the controlling worker.
type Activator interface {
	State() offlinecache.State
}

type Client struct {
	origin url.URL
	ctrl   Activator
	http   *http.Client
	log    zerolog.Logger
}

// NewClient creates a push client for the given origin, governed by the
// given lifecycle controller.
func NewClient(origin url.URL, ctrl Activator, logger *zerolog.Logger) *Client {
	var log zerolog.Logger
	if logger == nil {
		log = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		log = *logger
	}
	return &Client{
		origin: origin,
		ctrl:   ctrl,
		http:   &http.Client{},
		log:    log.With().Str("origin", origin.String()).Logger(),
	}
}

// VAPIDPublicKey fetches the server's public key for push subscriptions.
func (c *Client) VAPIDPublicKey(ctx context.Context) (string, error) {
	if err := c.requireActive(); err != nil {
		return "", err
	}
	target := c.origin.ResolveReference(&url.URL{Path: "/push/vapid-public-key"})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return "", err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("push: vapid key request got status %d", res.StatusCode)
	}
	var payload struct {
		PublicKey string `json:"public_key"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", err
	}
	return payload.PublicKey, nil
}

// Subscribe registers a subscription object with the origin.
func (c *Client) Subscribe(ctx context.Context, sub Subscription) error {
	return c.post(ctx, "/push/subscribe", sub)
}

// Unsubscribe removes a subscription object from the origin.
func (c *Client) Unsubscribe(ctx context.Context, sub Subscription) error {
	return c.post(ctx, "/push/unsubscribe", sub)
}

func (c *Client) post(ctx context.Context, path string, sub Subscription) error {
	if err := c.requireActive(); err != nil {
		return err
	}
	body, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	target := c.origin.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("push: %s got status %d", path, res.StatusCode)
	}
	c.log.Debug().Str("path", path).Msg("Push subscription updated")
	return nil
}

func (c *Client) requireActive() error {
	if c.ctrl == nil || c.ctrl.State() != offlinecache.StateActive {
		return ErrNotActive
	}
	return nil
}
