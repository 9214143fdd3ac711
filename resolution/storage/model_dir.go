package storage

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/teranos/entres/am"
	"github.com/teranos/entres/errors"
	"github.com/teranos/entres/resolution/model"
)

// DefaultReloadDebounce is how long the directory watcher waits for a burst of changes to settle
const DefaultReloadDebounce = 250 * time.Millisecond

// modelExtensions maps file extensions to parsers. The entity type is the file name without extension.
var modelExtensions = map[string]func([]byte) (*model.Model, error){
	".json": model.Parse,
	".yaml": model.ParseYAML,
	".yml":  model.ParseYAML,
}

// DirectoryModelProvider serves models from <dir>/<entity_type>.json, .yaml, or .yml.
// Models are parsed when the directory is loaded; Watch keeps them current.
type DirectoryModelProvider struct {
	dir      string
	logger   *zap.SugaredLogger
	debounce time.Duration

	mu     sync.RWMutex
	models map[string]*model.Model
	files  map[string]string // entity type -> file path
}

// NewDirectoryModelProvider loads every model file in dir. A file that does not
// parse fails the load. logger may be nil.
func NewDirectoryModelProvider(dir string, logger *zap.SugaredLogger) (*DirectoryModelProvider, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	p := &DirectoryModelProvider{dir: dir, logger: logger, debounce: DefaultReloadDebounce}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// SetDebounce overrides the watcher debounce period
func (p *DirectoryModelProvider) SetDebounce(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.debounce = d
}

// Reload re-reads the directory. On error the previous models stay in place.
func (p *DirectoryModelProvider) Reload() error {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return errors.Wrapf(err, "read model directory %s", p.dir)
	}

	models := map[string]*model.Model{}
	files := map[string]string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		entityType, parse, ok := modelFile(e.Name())
		if !ok {
			continue
		}
		if prev, dup := files[entityType]; dup {
			return errors.NewInvalidRequestError("entity type %q is defined by both %s and %s", entityType, filepath.Base(prev), e.Name())
		}
		path := filepath.Join(p.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "read model %s", path)
		}
		m, err := parse(data)
		if err != nil {
			return errors.Wrapf(err, "model file %s", e.Name())
		}
		models[entityType] = m
		files[entityType] = path
	}

	p.mu.Lock()
	p.models, p.files = models, files
	p.mu.Unlock()
	p.logger.Debugw("loaded model directory", "dir", p.dir, "count", len(models))
	return nil
}

// modelFile splits a file name into an entity type and its parser
func modelFile(name string) (string, func([]byte) (*model.Model, error), bool) {
	ext := strings.ToLower(filepath.Ext(name))
	parse, ok := modelExtensions[ext]
	if !ok {
		return "", nil, false
	}
	entityType := strings.TrimSuffix(name, filepath.Ext(name))
	if model.ValidateEntityType(entityType) != nil {
		return "", nil, false
	}
	return entityType, parse, true
}

// GetModel returns the loaded model of entityType
func (p *DirectoryModelProvider) GetModel(_ context.Context, entityType string) (*model.Model, error) {
	if err := model.ValidateEntityType(entityType); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.models[entityType]
	if !ok {
		return nil, errors.NewNotFoundError("entity model not found: %s", entityType)
	}
	return m, nil
}

// PutModel writes <entity_type>.json, replacing any other file for the type
func (p *DirectoryModelProvider) PutModel(_ context.Context, entityType string, m *model.Model) error {
	if err := model.ValidateEntityType(entityType); err != nil {
		return err
	}
	data, err := m.MarshalJSON()
	if err != nil {
		return errors.Wrapf(err, "encode model %s", entityType)
	}
	if err := os.MkdirAll(p.dir, am.DefaultDirPermissions); err != nil {
		return errors.Wrapf(err, "create model directory %s", p.dir)
	}

	path := filepath.Join(p.dir, entityType+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return errors.Wrapf(err, "write model %s", entityType)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "write model %s", entityType)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if prev, ok := p.files[entityType]; ok && prev != path {
		if err := os.Remove(prev); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "remove previous model file %s", prev)
		}
	}
	p.models[entityType] = m
	p.files[entityType] = path
	return nil
}

// DeleteModel removes the model file of entityType
func (p *DirectoryModelProvider) DeleteModel(_ context.Context, entityType string) error {
	if err := model.ValidateEntityType(entityType); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	path, ok := p.files[entityType]
	if !ok {
		return errors.NewNotFoundError("entity model not found: %s", entityType)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "remove model %s", entityType)
	}
	delete(p.models, entityType)
	delete(p.files, entityType)
	return nil
}

// ListModels returns the loaded entity types, sorted
func (p *DirectoryModelProvider) ListModels(_ context.Context) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	types := make([]string, 0, len(p.models))
	for t := range p.models {
		types = append(types, t)
	}
	sort.Strings(types)
	return types, nil
}

// Watch reloads the directory whenever a model file changes, until ctx is done.
// Changes are debounced; a reload that fails is logged and the previous models stay.
func (p *DirectoryModelProvider) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create fsnotify watcher")
	}
	if err := watcher.Add(p.dir); err != nil {
		watcher.Close()
		return errors.Wrapf(err, "failed to watch model directory %s", p.dir)
	}

	go func() {
		defer watcher.Close()
		var timer *time.Timer
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if _, _, isModel := modelFile(filepath.Base(event.Name)); !isModel {
					continue
				}
				p.logger.Debugw("model directory changed", "file", event.Name, "op", event.Op.String())

				p.mu.RLock()
				debounce := p.debounce
				p.mu.RUnlock()
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, func() {
					if err := p.Reload(); err != nil {
						p.logger.Errorw("model reload failed", "dir", p.dir, "error", err)
					}
				})

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				p.logger.Warnw("model watcher error", "error", err)
			}
		}
	}()
	return nil
}
