package extractor

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/mamage/photo-similarity/internal/config"
)

// Session runs one forward pass of a loaded model. Implementations must be safe for
// concurrent use.
type Session interface {
	Run(input []float32, profile config.ModelProfile) ([]float32, error)
	Close() error
}

// SessionLoader opens the model file at path.
type SessionLoader func(profile config.ModelProfile, path string) (Session, error)

type loadedSession struct {
	session Session
	profile config.ModelProfile
}

// Registry lazily loads one Session per model and shares it process-wide.
// Callers racing on a cold model all wait for the same load, and a failed load
// is remembered rather than retried.
type Registry struct {
	modelDir string
	profiles map[string]config.ModelProfile
	loader   SessionLoader

	mu    sync.Mutex
	cells map[string]func() (*loadedSession, error)
}

// NewRegistry creates a registry over the given model profiles.
func NewRegistry(modelDir string, profiles map[string]config.ModelProfile, loader SessionLoader) *Registry {
	return &Registry{
		modelDir: modelDir,
		profiles: profiles,
		loader:   loader,
		cells:    make(map[string]func() (*loadedSession, error)),
	}
}

// Profile returns the registered profile for model.
func (r *Registry) Profile(model string) (config.ModelProfile, error) {
	p, ok := r.profiles[model]
	if !ok {
		return config.ModelProfile{}, fmt.Errorf("%w: %s (known: %s)", ErrUnknownModel, model, strings.Join(r.Models(), ", "))
	}
	if p.Name == "" {
		p.Name = model
	}
	return p, nil
}

// Models lists the registered model names.
func (r *Registry) Models() []string {
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Session returns the shared session for model, loading it on first use.
func (r *Registry) Session(model string) (Session, config.ModelProfile, error) {
	profile, err := r.Profile(model)
	if err != nil {
		return nil, config.ModelProfile{}, err
	}

	ls, err := r.cell(model, profile)()
	if err != nil {
		return nil, profile, err
	}
	return ls.session, ls.profile, nil
}

func (r *Registry) cell(model string, profile config.ModelProfile) func() (*loadedSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.cells[model]; ok {
		return c
	}
	c := sync.OnceValues(func() (*loadedSession, error) {
		return r.load(profile)
	})
	r.cells[model] = c
	return c
}

func (r *Registry) load(profile config.ModelProfile) (*loadedSession, error) {
	path := profile.Path(r.modelDir)
	if _, err := os.Stat(path); err != nil {
		return nil, &ModelLoadError{Model: profile.Name, Path: path, EnvVar: "MODEL_DIR", Err: err}
	}

	session, err := r.loader(profile, path)
	if err != nil {
		var mle *ModelLoadError
		if errors.As(err, &mle) {
			return nil, mle
		}
		return nil, &ModelLoadError{Model: profile.Name, Path: path, EnvVar: "MODEL_DIR", Err: err}
	}
	return &loadedSession{session: session, profile: profile}, nil
}

// Close releases every session that loaded successfully.
func (r *Registry) Close() error {
	r.mu.Lock()
	cells := r.cells
	r.cells = make(map[string]func() (*loadedSession, error))
	r.mu.Unlock()

	var errs []error
	for _, c := range cells {
		ls, err := c()
		if err != nil {
			continue
		}
		if err := ls.session.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
