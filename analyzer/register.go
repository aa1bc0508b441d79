package analyzer

import "github.com/lcx/iast/plugin"

func init() {
	plugin.RegisterFactory(&sqliFactory{})
	plugin.RegisterFactory(&plugin.FuncFactory{
		FactoryType: plugin.TypeSource,
		FactoryName: "http_request",
		SetupFunc:   newHTTPSource,
	})
	plugin.RegisterFactory(&plugin.FuncFactory{
		FactoryType: plugin.TypePropagation,
		FactoryName: "string",
		SetupFunc:   newStringPropagation,
	})
}
