package dict

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"techcharades/internal/domain"

	yaml "gopkg.in/yaml.v3"
)

//go:embed terms.yaml
var defaultFiles embed.FS

// Classifier seeds a round's initial verification state at round end.
// It returns VerifyAccepted for a recognized term and VerifyUnset otherwise;
// rejection is always a human decision, never automatic.
type Classifier interface {
	Classify(ctx context.Context, term string) domain.Verification
}

// Dictionary is a Classifier backed by a fixed term set loaded from the
// embedded defaults plus an optional override file.
type Dictionary struct {
	mu    sync.RWMutex
	terms map[string]struct{}
}

type termFile struct {
	Terms []string `yaml:"terms"`
}

// Load reads the embedded term set and then merges overridePath if non-empty.
func Load(overridePath string) (*Dictionary, error) {
	d := &Dictionary{terms: make(map[string]struct{})}

	raw, err := fs.ReadFile(defaultFiles, "terms.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded terms: %w", err)
	}
	if err := d.applyYAML(raw); err != nil {
		return nil, err
	}

	if strings.TrimSpace(overridePath) != "" {
		b, err := os.ReadFile(overridePath)
		if err != nil {
			return nil, fmt.Errorf("read term overrides: %w", err)
		}
		if err := d.applyYAML(b); err != nil {
			return nil, fmt.Errorf("parse %s: %w", overridePath, err)
		}
	}
	return d, nil
}

func (d *Dictionary) applyYAML(b []byte) error {
	var f termFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return err
	}
	d.mu.Lock()
	for _, t := range f.Terms {
		if k := Normalize(t); k != "" {
			d.terms[k] = struct{}{}
		}
	}
	d.mu.Unlock()
	return nil
}

func (d *Dictionary) Classify(_ context.Context, term string) domain.Verification {
	k := Normalize(term)
	if k == "" {
		return domain.VerifyUnset
	}
	d.mu.RLock()
	_, ok := d.terms[k]
	d.mu.RUnlock()
	if ok {
		return domain.VerifyAccepted
	}
	return domain.VerifyUnset
}

func (d *Dictionary) Size() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.terms)
}

// Normalize trims edge whitespace and uppercases; internal whitespace is
// significant, so "machine learning" and "machinelearning" stay distinct.
func Normalize(term string) string {
	return strings.ToUpper(strings.TrimSpace(term))
}
