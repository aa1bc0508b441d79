package analyzer

import (
	"fmt"

	"github.com/lcx/iast/plugin"
	"github.com/lcx/iast/telemetry"
)

func newStringPropagation(deps plugin.Deps, _ map[string]any) (plugin.Analyzer, error) {
	tel := deps.Telemetry
	p := plugin.NewIastPlugin("string", deps, plugin.WithSetup(func(p *plugin.IastPlugin) {
		p.AddSub(plugin.Subscription{
			ChannelName:  ChannelStringConcat,
			Tag:          telemetry.PropagationString,
			TagDimension: telemetry.TagPropagationType,
		}, func(msg any, pctx plugin.Context, _ string) error {
			c, ok := msg.(Concat)
			if !ok {
				return fmt.Errorf("unexpected message %T", msg)
			}
			taint := TaintFromContext(pctx.Ctx)
			for _, part := range c.Parts {
				if taint.IsTainted(part) {
					taint.Add(c.Result)
					if tel != nil {
						tel.Increase(pctx.Ctx, telemetry.ExecutedTainted, "")
					}
					return nil
				}
			}
			return nil
		})
	}))
	return p, nil
}
