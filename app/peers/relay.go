// Package peers relays webhook deliveries to the other LifeMonitor instances.
package peers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"lifemonitor/pkg/log"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

const (
	webhookPath    = "/integrations/github"
	defaultTimeout = 10 * time.Second
	maxElapsed     = 20 * time.Second
)

// Response is the answer of a peer, returned verbatim to GitHub.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

type Relay struct {
	peers  map[string]string
	client *resty.Client
}

type Option func(*Relay)

func WithHTTPClient(c *http.Client) Option {
	return func(r *Relay) { r.client = resty.NewWithClient(c) }
}

func NewRelay(peers map[string]string, opts ...Option) *Relay {
	r := &Relay{peers: map[string]string{}, client: resty.New()}
	for name, url := range peers {
		r.peers[name] = strings.TrimRight(url, "/")
	}
	for _, opt := range opts {
		opt(r)
	}
	r.client.SetTimeout(defaultTimeout)
	return r
}

// Known reports whether name is a configured peer.
func (r *Relay) Known(name string) bool {
	_, ok := r.peers[name]
	return ok
}

// Forward posts a webhook delivery to the peer named instance with its
// original headers. Network failures and 5xx answers are retried.
func (r *Relay) Forward(ctx context.Context, instance string, header http.Header, body []byte) (*Response, error) {
	base, ok := r.peers[instance]
	if !ok {
		return nil, errors.Errorf("unknown LifeMonitor instance %s", instance)
	}
	url := base + webhookPath

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = maxElapsed

	var resp *resty.Response
	err := backoff.Retry(func() error {
		req := r.client.R().SetContext(ctx).SetBody(body)
		for k, values := range header {
			if k == "Content-Length" || k == "Host" {
				continue
			}
			for _, v := range values {
				req.Header.Add(k, v)
			}
		}
		var err error
		resp, err = req.Post(url)
		if err != nil {
			log.Warnf(nil, "Forward to %s failed: %v", instance, err)
			return err
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return errors.Errorf("peer %s answered %s", instance, resp.Status())
		}
		return nil
	}, backoff.WithContext(policy, ctx))
	if resp == nil {
		return nil, errors.Wrapf(err, "forward to %s", instance)
	}
	if err != nil {
		log.Warnf(nil, "Peer %s keeps failing: %v", instance, err)
	}
	log.Debugf(nil, "Forwarded delivery %s to %s: %d", header.Get("X-Github-Delivery"), instance, resp.StatusCode())
	return &Response{StatusCode: resp.StatusCode(), Header: resp.Header(), Body: resp.Body()}, nil
}
