package platform

import (
	"errors"

	"github.com/ruteri/push-relay/interfaces"
)

// Client bundles the platform services the request handlers use.
type Client struct {
	ProjectID string
	Store     interfaces.RegistrationStore
	Gateway   interfaces.PushGateway

	closers []func() error
}

func NewClient(projectID string, store interfaces.RegistrationStore, gateway interfaces.PushGateway) *Client {
	return &Client{
		ProjectID: projectID,
		Store:     store,
		Gateway:   gateway,
	}
}

// Close releases the connections opened during bootstrap.
func (c *Client) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	return errors.Join(errs...)
}

// Handle is the outcome of bootstrap: either a ready client or the
// configuration error that prevented building one. It is immutable and safe
// to share between request handlers.
type Handle struct {
	client *Client
	err    error
}

// Ready returns a handle holding a usable client.
func Ready(client *Client) Handle {
	return Handle{client: client}
}

// Failed returns a handle recording why the platform is unusable.
func Failed(err error) Handle {
	var cfgErr *interfaces.ConfigurationError
	if !errors.As(err, &cfgErr) {
		err = &interfaces.ConfigurationError{Reason: "platform initialization failed", Err: err}
	}
	return Handle{err: err}
}

// Client returns the ready client, or a *interfaces.ConfigurationError when
// bootstrap failed or never ran.
func (h Handle) Client() (*Client, error) {
	if h.err != nil {
		return nil, h.err
	}
	if h.client == nil {
		return nil, &interfaces.ConfigurationError{Reason: "platform not initialized"}
	}
	return h.client, nil
}

// Ready reports whether requests can be served.
func (h Handle) Ready() bool {
	return h.err == nil && h.client != nil
}

// Err returns the bootstrap failure, if any.
func (h Handle) Err() error {
	_, err := h.Client()
	return err
}
