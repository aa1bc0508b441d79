package reporter

import (
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"

	"github.com/lcx/iast/codec"
	"github.com/lcx/iast/log"
)

// Backends are the shared handles senders record on.
type Backends struct {
	Registerer prometheus.Registerer
	Meter      metric.Meter
	Logger     log.Logger
}

// BuildSenders makes cfg's codec the default codec and creates the senders
// enabled by cfg. On failure the senders created so far are closed.
func BuildSenders(cfg *Cfg, b Backends) ([]Sender, error) {
	c := cfg.withDefaults()
	cd, err := codec.Get(c.Codec)
	if err != nil {
		return nil, fmt.Errorf("reporter codec: %w", err)
	}
	codec.SetCodec(cd)

	var senders []Sender
	fail := func(err error) ([]Sender, error) {
		for _, s := range senders {
			if closer, ok := s.(io.Closer); ok {
				err = errors.Join(err, closer.Close())
			}
		}
		return nil, err
	}

	if c.HTTPURL != "" {
		senders = append(senders, NewHTTPSender(c.HTTPURL, c.HTTPTimeout, c.Debug))
	}
	if c.Prometheus {
		reg := b.Registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		s, err := NewPrometheusSender(reg)
		if err != nil {
			return fail(fmt.Errorf("prometheus sender: %w", err))
		}
		senders = append(senders, s)
	}
	if c.OTel {
		if b.Meter == nil {
			return fail(errors.New("otel sender: meter is required"))
		}
		senders = append(senders, NewOTelSender(b.Meter))
	}
	if c.Log {
		senders = append(senders, NewLogSender(b.Logger))
	}
	if c.NATSURL != "" {
		s, err := DialNATSSender(c.NATSURL, c.NATSSubject, c.Codec)
		if err != nil {
			return fail(fmt.Errorf("nats sender: %w", err))
		}
		senders = append(senders, s)
	}
	return senders, nil
}
