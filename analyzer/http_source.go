package analyzer

import (
	"fmt"

	"github.com/lcx/iast/config"
	"github.com/lcx/iast/plugin"
	"github.com/lcx/iast/telemetry"
)

// Source tags.
const (
	SourceParameter = "http.request.parameter"
	SourceBody      = "http.request.body"
)

// HTTPSourceCfg configures the HTTP request source.
type HTTPSourceCfg struct {
	Enabled bool `mapstructure:"enabled"`
	// Body also taints the request body.
	Body bool `mapstructure:"body"`
}

func newHTTPSource(deps plugin.Deps, block map[string]any) (plugin.Analyzer, error) {
	cfg := HTTPSourceCfg{Enabled: true, Body: true}
	if err := config.Decode(block, &cfg); err != nil {
		return nil, fmt.Errorf("http source config: %w", err)
	}

	tel := deps.Telemetry
	p := plugin.NewSourcePlugin("http", deps, plugin.WithSetup(func(p *plugin.IastPlugin) {
		p.AddSub(plugin.Subscription{ChannelName: ChannelHTTPRequest, Tag: SourceParameter},
			func(msg any, pctx plugin.Context, _ string) error {
				req, ok := msg.(HTTPRequest)
				if !ok {
					return fmt.Errorf("unexpected message %T", msg)
				}
				taint := TaintFromContext(pctx.Ctx)
				for _, v := range req.Params {
					if taint.Add(v) && tel != nil {
						tel.Increase(pctx.Ctx, telemetry.RequestTainted, "")
					}
				}
				return nil
			})
		if !cfg.Body {
			return
		}
		p.AddSub(plugin.Subscription{ChannelName: ChannelHTTPRequest, Tag: SourceBody},
			func(msg any, pctx plugin.Context, _ string) error {
				req, ok := msg.(HTTPRequest)
				if !ok {
					return fmt.Errorf("unexpected message %T", msg)
				}
				if TaintFromContext(pctx.Ctx).Add(req.Body) && tel != nil {
					tel.Increase(pctx.Ctx, telemetry.RequestTainted, "")
				}
				return nil
			})
	}))
	return p, nil
}
