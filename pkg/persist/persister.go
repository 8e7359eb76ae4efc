package persist

// Persister handles I/O for a specific state type, choosing the codec from
// the file extension.
type Persister[T any] struct{}

// NewPersister creates a persister for T.
func NewPersister[T any]() *Persister[T] {
	return &Persister[T]{}
}

// Save writes state to path.
func (p *Persister[T]) Save(path string, state *T) error {
	return SaveFile(path, CodecFor(path), state)
}

// Load reads a T from path.
func (p *Persister[T]) Load(path string) (*T, error) {
	var state T

	err := LoadFile(path, CodecFor(path), &state)
	if err != nil {
		return nil, err
	}

	return &state, nil
}
