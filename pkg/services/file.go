package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/platinummonkey/ssohub/pkg/observability"
	"gopkg.in/yaml.v3"
)

// serviceFile is the on-disk layout of a service registry file:
//
//	services:
//	  - id: 1
//	    name: wiki
//	    service_id: ^https://wiki\.example\.com/.*
//	    protocol: CAS
//	    logout_type: BACK_CHANNEL
//	    logout_url: https://wiki.example.com/slo
//	    access:
//	      enabled: true
type serviceFile struct {
	Services []*RegisteredService `yaml:"services"`
}

// LoadServices reads registered services from a YAML file
func LoadServices(path string) ([]*RegisteredService, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read service registry: %w", err)
	}

	var f serviceFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse service registry %s: %w", path, err)
	}
	return f.Services, nil
}

// FileDirectory is a MemoryDirectory loaded from a YAML file, optionally
// reloaded when the file changes.
type FileDirectory struct {
	*MemoryDirectory
	path   string
	logger *observability.Logger
}

// NewFileDirectory loads path. A file that fails to parse or validate is an error.
func NewFileDirectory(path string, logger *observability.Logger) (*FileDirectory, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	d := &FileDirectory{
		MemoryDirectory: &MemoryDirectory{},
		path:            path,
		logger:          logger.WithField("service_registry", path),
	}
	if err := d.Reload(); err != nil {
		return nil, err
	}
	return d, nil
}

// Reload re-reads the file. The current services stay in place when the new
// file is invalid.
func (d *FileDirectory) Reload() error {
	svcs, err := LoadServices(d.path)
	if err != nil {
		return err
	}
	if err := d.Replace(svcs); err != nil {
		return fmt.Errorf("invalid service registry %s: %w", d.path, err)
	}
	d.logger.WithField("services", len(svcs)).Info("service registry loaded")
	return nil
}

// Watch reloads the directory whenever the file is written or recreated,
// until ctx is done. The parent directory is watched so editors that replace
// the file by rename are picked up. onReload, when set, is called after
// every successful reload.
func (d *FileDirectory) Watch(ctx context.Context, onReload func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(d.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", d.path, err)
	}

	target := filepath.Clean(d.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := d.Reload(); err != nil {
				d.logger.WithError(err).Warn("keeping previous service registry")
				continue
			}
			if onReload != nil {
				onReload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			d.logger.WithError(err).Warn("service registry watcher error")
		}
	}
}
