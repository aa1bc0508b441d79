package reporter

import (
	"os"
	"runtime"

	"github.com/lcx/iast/telemetry"
)

// Request envelope constants.
const (
	APIVersion       = "v1"
	RequestType      = "generate-metrics"
	PayloadNamespace = "tracers"
)

// Request is one telemetry submission.
type Request struct {
	APIVersion  string      `json:"api_version" yaml:"api_version"`
	RequestType string      `json:"request_type" yaml:"request_type"`
	TracerTime  int64       `json:"tracer_time" yaml:"tracer_time"`
	RuntimeID   string      `json:"runtime_id" yaml:"runtime_id"`
	SeqID       uint64      `json:"seq_id" yaml:"seq_id"`
	Payload     Payload     `json:"payload" yaml:"payload"`
	Application Application `json:"application" yaml:"application"`
	Host        Host        `json:"host" yaml:"host"`
}

// Payload carries the drained series.
type Payload struct {
	Namespace string                    `json:"namespace" yaml:"namespace"`
	Series    []telemetry.PayloadMetric `json:"series" yaml:"series"`
}

// Application describes the monitored service.
type Application struct {
	ServiceName     string `json:"service_name" yaml:"service_name"`
	Env             string `json:"env,omitempty" yaml:"env,omitempty"`
	ServiceVersion  string `json:"service_version,omitempty" yaml:"service_version,omitempty"`
	LanguageName    string `json:"language_name" yaml:"language_name"`
	LanguageVersion string `json:"language_version" yaml:"language_version"`
}

// Host describes the machine the service runs on.
type Host struct {
	Hostname     string `json:"hostname" yaml:"hostname"`
	OS           string `json:"os" yaml:"os"`
	Architecture string `json:"architecture" yaml:"architecture"`
}

func applicationFromCfg(c Cfg) Application {
	service := c.Service
	if service == "" {
		service = "unnamed-go-service"
	}
	return Application{
		ServiceName:     service,
		Env:             c.Env,
		ServiceVersion:  c.Version,
		LanguageName:    "go",
		LanguageVersion: runtime.Version(),
	}
}

func currentHost() Host {
	hostname, _ := os.Hostname()
	return Host{
		Hostname:     hostname,
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
	}
}
