package config

import "sync"

var (
	_instance ConfigManager
	_instMu   sync.Mutex
)

// GetInstance returns the process-wide ConfigManager, creating it on first use.
func GetInstance() ConfigManager {
	_instMu.Lock()
	defer _instMu.Unlock()
	if _instance == nil {
		_instance = NewConfigManager()
	}
	return _instance
}

// SetInstanceForTesting replaces the process-wide ConfigManager.
func SetInstanceForTesting(cm ConfigManager) {
	_instMu.Lock()
	defer _instMu.Unlock()
	_instance = cm
}

// ResetInstance closes and drops the process-wide ConfigManager.
func ResetInstance() {
	_instMu.Lock()
	defer _instMu.Unlock()
	if _instance != nil {
		_ = _instance.Close()
	}
	_instance = nil
}
