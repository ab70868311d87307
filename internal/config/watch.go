package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watcher reloads configuration when the backing file changes on disk.
type Watcher struct {
	v *viper.Viper
}

// NewWatcher creates a watcher for the given config file. The file must
// exist before watching starts.
func NewWatcher(path string) *Watcher {
	v := viper.New()
	setDefaults(v)
	bindEnv(v)
	v.SetConfigFile(path)
	return &Watcher{v: v}
}

// Load reads the config file and returns the parsed configuration.
func (w *Watcher) Load() (*Config, error) {
	if err := w.v.ReadInConfig(); err != nil {
		return nil, err
	}
	return unmarshal(w.v)
}

// Watch starts watching the file and invokes onChange with the freshly
// parsed config on every write. Parse failures are reported through
// onError and the previous config stays in effect.
func (w *Watcher) Watch(onChange func(*Config), onError func(error)) {
	w.v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		cfg, err := unmarshal(w.v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	w.v.WatchConfig()
}
