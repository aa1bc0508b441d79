package reporter

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/lcx/iast/codec"
)

// Publisher is the subset of *nats.Conn the NATS sender needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSender publishes encoded requests on a subject.
type NATSSender struct {
	pub     Publisher
	subject string
	codec   codec.Codec
	conn    *nats.Conn
}

// NewNATSSender creates a sender publishing on subject with the named codec.
// An empty name selects the default codec.
func NewNATSSender(pub Publisher, subject, codecName string) (*NATSSender, error) {
	if codecName == "" {
		if c := codec.Default(); c != nil {
			return &NATSSender{pub: pub, subject: subject, codec: c}, nil
		}
		codecName = codec.JSON
	}
	c, err := codec.Get(codecName)
	if err != nil {
		return nil, err
	}
	return &NATSSender{pub: pub, subject: subject, codec: c}, nil
}

// DialNATSSender connects to url and creates a sender owning the connection.
func DialNATSSender(url, subject, codecName string) (*NATSSender, error) {
	conn, err := nats.Connect(url, nats.Name("iast-reporter"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	s, err := NewNATSSender(conn, subject, codecName)
	if err != nil {
		conn.Close()
		return nil, err
	}
	s.conn = conn
	return s, nil
}

func (s *NATSSender) Name() string { return "nats" }

func (s *NATSSender) Send(ctx context.Context, req *Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := s.codec.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	if err := s.pub.Publish(s.subject, data); err != nil {
		return fmt.Errorf("failed to publish telemetry: %w", err)
	}
	return nil
}

// Close drains the connection opened by DialNATSSender.
func (s *NATSSender) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}
