package checkpoint

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/born-ml/bornconvert/internal/serialization"
)

// Load reads a checkpoint file into a Model. The container is picked by
// extension: .born or .safetensors. The architecture metadata entry is
// required; a bare weight dump cannot be converted.
func Load(path string) (*Model, error) {
	m := &Model{
		Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".born":
		if err := loadBorn(path, m); err != nil {
			return nil, err
		}
	case ".safetensors":
		if err := loadSafeTensors(path, m); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unrecognized checkpoint format: %s", path)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model in %s: %w", path, err)
	}
	return m, nil
}

func loadBorn(path string, m *Model) error {
	r, err := serialization.Open(path)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint %s: %w", path, err)
	}
	defer r.Close()

	arch, ok := r.Header().Metadata[serialization.MetadataArchitectureKey]
	if !ok {
		return fmt.Errorf("%s: %w", path, ErrNoArchitecture)
	}
	if err := parseArchitecture(arch, m); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	m.Weights, err = r.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read tensors from %s: %w", path, err)
	}
	return nil
}

func loadSafeTensors(path string, m *Model) error {
	st, err := serialization.ReadSafeTensors(path)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint %s: %w", path, err)
	}

	arch, ok := st.Metadata[serialization.MetadataArchitectureKey]
	if !ok {
		return fmt.Errorf("%s: %w", path, ErrNoArchitecture)
	}
	if err := parseArchitecture(arch, m); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	m.Weights = st.Tensors
	return nil
}
