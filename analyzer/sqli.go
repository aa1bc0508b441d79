package analyzer

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"unicode/utf8"

	"github.com/lcx/iast/config"
	"github.com/lcx/iast/log"
	"github.com/lcx/iast/plugin"
)

// VulnSQLInjection is the vulnerability tag of the SQL injection sink.
const VulnSQLInjection = "SQL_INJECTION"

// SQLInjectionCfg configures the SQL injection sink.
type SQLInjectionCfg struct {
	Enabled bool `mapstructure:"enabled"`
	// Channels are the query channels to observe.
	Channels []string `mapstructure:"channels"`
	// EvidenceLimit truncates the recorded evidence to this many characters.
	// Zero keeps it whole.
	EvidenceLimit int `mapstructure:"evidenceLimit"`
}

func (c *SQLInjectionCfg) validate() error {
	if len(c.Channels) == 0 {
		return errors.New("sql injection sink needs at least one channel")
	}
	if c.EvidenceLimit < 0 {
		return fmt.Errorf("evidenceLimit must not be negative: %d", c.EvidenceLimit)
	}
	return nil
}

func decodeSQLInjectionCfg(block map[string]any) (SQLInjectionCfg, error) {
	cfg := SQLInjectionCfg{
		Enabled:  true,
		Channels: []string{ChannelPGQuery, ChannelMySQLQuery},
	}
	if err := config.Decode(block, &cfg); err != nil {
		return cfg, fmt.Errorf("sql injection config: %w", err)
	}
	return cfg, cfg.validate()
}

// Finding is one detected vulnerability.
type Finding struct {
	Type     string
	Channel  string
	Evidence string
}

// SQLInjection reports queries containing tainted values.
type SQLInjection struct {
	*plugin.IastPlugin

	logger log.Logger

	mu       sync.Mutex
	cfg      SQLInjectionCfg
	findings []Finding
}

// Findings returns the vulnerabilities detected so far.
func (s *SQLInjection) Findings() []Finding {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Finding, len(s.findings))
	copy(out, s.findings)
	return out
}

func (s *SQLInjection) onQuery(msg any, pctx plugin.Context, channelName string) error {
	q, ok := msg.(Query)
	if !ok {
		return fmt.Errorf("unexpected message %T", msg)
	}
	value, found := TaintFromContext(pctx.Ctx).Find(q.SQL)
	if !found {
		return nil
	}

	s.mu.Lock()
	evidence := truncateRunes(value, s.cfg.EvidenceLimit)
	s.findings = append(s.findings, Finding{Type: VulnSQLInjection, Channel: channelName, Evidence: evidence})
	s.mu.Unlock()

	s.logger.Warn().
		Str("vulnerability", VulnSQLInjection).
		Str("channel", channelName).
		Str("evidence", evidence).
		Msg("iast vulnerability detected")
	return nil
}

// truncateRunes cuts s to at most limit runes. A non-positive limit keeps s.
func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

type sqliFactory struct{}

func (f *sqliFactory) Type() plugin.Type {
	return plugin.TypeSink
}

func (f *sqliFactory) Name() string {
	return "sql_injection"
}

func (f *sqliFactory) Setup(deps plugin.Deps, block map[string]any) (plugin.Analyzer, error) {
	cfg, err := decodeSQLInjectionCfg(block)
	if err != nil {
		return nil, err
	}

	s := &SQLInjection{cfg: cfg, logger: deps.Logger}
	if s.logger == nil {
		s.logger = log.Default()
	}
	s.IastPlugin = plugin.NewSinkPlugin("sqli", deps, plugin.WithSetup(func(p *plugin.IastPlugin) {
		for _, ch := range cfg.Channels {
			p.AddSub(plugin.Subscription{ChannelName: ch, Tag: VulnSQLInjection}, s.onQuery)
		}
	}))
	return s, nil
}

func (f *sqliFactory) Destroy(a plugin.Analyzer) error {
	s, ok := a.(*SQLInjection)
	if !ok {
		return fmt.Errorf("unexpected analyzer %T", a)
	}
	s.mu.Lock()
	s.findings = nil
	s.mu.Unlock()
	return nil
}

// Reload applies a new evidence limit in place. A change of channels needs
// new subscriptions, so it is refused and the manager recreates the analyzer.
func (f *sqliFactory) Reload(a plugin.Analyzer, block map[string]any) error {
	s, ok := a.(*SQLInjection)
	if !ok {
		return fmt.Errorf("unexpected analyzer %T", a)
	}
	cfg, err := decodeSQLInjectionCfg(block)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Equal(s.cfg.Channels, cfg.Channels) {
		return errors.New("channels changed")
	}
	s.cfg = cfg
	return nil
}
