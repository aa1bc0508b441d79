package plugin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/lcx/iast/channel"
	"github.com/lcx/iast/log"
	"github.com/lcx/iast/telemetry"
)

// Type is the analyzer category.
type Type string

const (
	// TypeSource analyzers mark externally controlled data as tainted.
	TypeSource Type = "source"
	// TypeSink analyzers inspect sensitive operations for tainted input.
	TypeSink Type = "sink"
	// TypePropagation analyzers carry taint through data transformations.
	TypePropagation Type = "propagation"
)

// Analyzer is a configured analyzer instance.
type Analyzer interface {
	Name() string
	Configure(enabled bool)
}

// Deps are the collaborators handed to every factory.
type Deps struct {
	Channels   *channel.Registry
	Telemetry  *telemetry.Telemetry
	Activation ActivationSource
	Logger     log.Logger
}

func (d Deps) logger() log.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return log.Default()
}

// activation falls back to the channel registry's activation notifications.
func (d Deps) activation(registry *channel.Registry) ActivationSource {
	if d.Activation != nil {
		return d.Activation
	}
	return registry
}

// Factory creates analyzers of one kind.
//
// Lifecycle methods:
//   - Setup: create an analyzer from its configuration block
//   - Destroy: release the analyzer; it has already been disabled
//   - Reload: apply a changed configuration block in place; an error makes
//     the manager destroy and recreate the analyzer instead
type Factory interface {
	Type() Type
	Name() string
	Setup(deps Deps, cfg map[string]any) (Analyzer, error)
	Destroy(Analyzer) error
	Reload(Analyzer, map[string]any) error
}

var (
	_factoryLock sync.RWMutex
	// _factoryMap is keyed by "<type>_<name>".
	_factoryMap = make(map[string]Factory)
)

func factoryKey(ft Type, fn string) string {
	return fmt.Sprintf("%s_%s", ft, fn)
}

// RegisterFactory makes f available to InitPlugins. Registering the same type
// and name again replaces the previous factory.
func RegisterFactory(f Factory) {
	_factoryLock.Lock()
	defer _factoryLock.Unlock()
	_factoryMap[factoryKey(f.Type(), f.Name())] = f
}

// UnregisterFactory removes a factory.
func UnregisterFactory(ft Type, fn string) {
	_factoryLock.Lock()
	defer _factoryLock.Unlock()
	delete(_factoryMap, factoryKey(ft, fn))
}

func getFactory(ft Type, fn string) Factory {
	_factoryLock.RLock()
	defer _factoryLock.RUnlock()
	return _factoryMap[factoryKey(ft, fn)]
}

// ListFactories returns the names of the registered factories of type ft, sorted.
func ListFactories(ft Type) []string {
	_factoryLock.RLock()
	defer _factoryLock.RUnlock()

	var names []string
	for _, f := range _factoryMap {
		if f.Type() == ft {
			names = append(names, f.Name())
		}
	}
	sort.Strings(names)
	return names
}

// FuncFactory adapts plain functions to Factory. Nil Destroy and Reload
// functions mean no cleanup and no in-place reload.
type FuncFactory struct {
	FactoryType Type
	FactoryName string
	SetupFunc   func(deps Deps, cfg map[string]any) (Analyzer, error)
	DestroyFunc func(Analyzer) error
	ReloadFunc  func(Analyzer, map[string]any) error
}

func (f *FuncFactory) Type() Type   { return f.FactoryType }
func (f *FuncFactory) Name() string { return f.FactoryName }

func (f *FuncFactory) Setup(deps Deps, cfg map[string]any) (Analyzer, error) {
	return f.SetupFunc(deps, cfg)
}

func (f *FuncFactory) Destroy(a Analyzer) error {
	if f.DestroyFunc == nil {
		return nil
	}
	return f.DestroyFunc(a)
}

func (f *FuncFactory) Reload(a Analyzer, cfg map[string]any) error {
	if f.ReloadFunc == nil {
		return fmt.Errorf("analyzer %s/%s does not support reload", f.FactoryType, f.FactoryName)
	}
	return f.ReloadFunc(a, cfg)
}
