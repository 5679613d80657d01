package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker"

	"catalog-platform/seeder/internal/bootstrap"
	"catalog-platform/seeder/internal/config"
)

const (
	natsProbeName = "nats"
	eventsMaxAge  = 7 * 24 * time.Hour
)

// jsContext is the subset of nats.JetStreamContext used for stream
// management and publishing, so tests can run without a NATS server.
type jsContext interface {
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	UpdateStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// NATSClient announces completed bootstraps on JetStream.
type NATSClient struct {
	cfg   config.NATSConfig
	cb    *gobreaker.CircuitBreaker
	newJS func(url string) (jsContext, func(), error)
}

// NewNATSClient constructs a NATSClient. Connections are opened lazily by
// each call and closed before it returns.
func NewNATSClient(cfg config.NATSConfig, cb *gobreaker.CircuitBreaker) *NATSClient {
	return &NATSClient{
		cfg:   cfg,
		cb:    cb,
		newJS: realNewJS,
	}
}

// PublishBootstrapCompleted ensures the events stream exists and publishes s
// as JSON on the configured subject. The message id is derived from
// s.CompletedAt so a redelivered publish is deduplicated by the server.
func (c *NATSClient) PublishBootstrapCompleted(ctx context.Context, s bootstrap.Summary) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding bootstrap summary: %w", err)
	}

	_, err = c.cb.Execute(func() (any, error) {
		js, cleanup, err := c.newJS(c.cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("connecting to NATS: %w", err)
		}
		defer cleanup()

		if err := ensureStream(ctx, js, c.streamConfig(), c.cfg.Subject); err != nil {
			return nil, err
		}

		msgID := "bootstrap-" + strconv.FormatInt(s.CompletedAt.UnixNano(), 10)
		if _, err := js.Publish(c.cfg.Subject, payload, nats.MsgId(msgID), nats.Context(ctx)); err != nil {
			return nil, fmt.Errorf("publishing to %s: %w", c.cfg.Subject, err)
		}
		return nil, nil
	})
	return breakerError(err)
}

// Probe verifies JetStream is reachable. A missing stream is not a failure;
// it is created on the first publish.
func (c *NATSClient) Probe(ctx context.Context) bootstrap.ProbeResult {
	start := time.Now()

	_, err := c.cb.Execute(func() (any, error) {
		js, cleanup, err := c.newJS(c.cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("connecting to NATS: %w", err)
		}
		defer cleanup()

		_, infoErr := js.StreamInfo(c.cfg.Stream, nats.Context(ctx))
		if infoErr != nil && !errors.Is(infoErr, nats.ErrStreamNotFound) {
			return nil, fmt.Errorf("stream info: %w", infoErr)
		}
		return nil, nil
	})

	return probeResult(natsProbeName, start, err)
}

func (c *NATSClient) streamConfig() *nats.StreamConfig {
	return &nats.StreamConfig{
		Name:      c.cfg.Stream,
		Subjects:  []string{c.cfg.StreamFilter},
		Retention: nats.LimitsPolicy,
		MaxAge:    eventsMaxAge,
	}
}

// ensureStream creates the stream if it does not exist. An existing stream
// whose subjects already capture subject is left untouched; otherwise the
// wanted filter is appended to its subjects and its other settings are kept.
func ensureStream(ctx context.Context, js jsContext, cfg *nats.StreamConfig, subject string) error {
	info, err := js.StreamInfo(cfg.Name, nats.Context(ctx))
	switch {
	case errors.Is(err, nats.ErrStreamNotFound):
		if _, addErr := js.AddStream(cfg, nats.Context(ctx)); addErr != nil {
			return fmt.Errorf("creating stream %s: %w", cfg.Name, addErr)
		}
		return nil
	case err != nil:
		return fmt.Errorf("querying stream %s: %w", cfg.Name, err)
	}

	updated := *cfg
	if info != nil {
		if streamCaptures(info.Config.Subjects, subject) {
			return nil
		}
		updated = info.Config
		updated.Subjects = append(slices.Clone(info.Config.Subjects), cfg.Subjects...)
	}
	if _, updErr := js.UpdateStream(&updated, nats.Context(ctx)); updErr != nil {
		return fmt.Errorf("updating stream %s: %w", cfg.Name, updErr)
	}
	return nil
}

func streamCaptures(filters []string, subject string) bool {
	return slices.ContainsFunc(filters, func(f string) bool {
		return config.SubjectMatches(f, subject)
	})
}

// realNewJS opens a real NATS connection and returns a JetStreamContext plus a
// cleanup function that closes the connection.
func realNewJS(url string) (jsContext, func(), error) {
	nc, err := nats.Connect(url, nats.Name("catalog-seeder"))
	if err != nil {
		return nil, func() {}, fmt.Errorf("nats connect %s: %w", url, err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, func() {}, fmt.Errorf("nats jetstream context: %w", err)
	}

	return js, func() { nc.Close() }, nil
}
