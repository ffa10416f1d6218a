package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockModel is a test implementation of the Model interface.
// It allows tests to control the detection results.
type MockModel struct {
	Weights string
	Device  string

	names      []string
	candidates []Candidate
	err        error
	shapes     [][3]int
	closed     bool
	mu         sync.Mutex
}

// NewMockModel creates a MockModel with the given class names.
func NewMockModel(names ...string) *MockModel {
	if len(names) == 0 {
		names = COCONames()
	}
	return &MockModel{names: names}
}

// SetCandidates sets the candidates that will be returned by Infer.
func (m *MockModel) SetCandidates(c []Candidate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candidates = c
}

// SetError sets the error that will be returned by Infer.
func (m *MockModel) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockModel) Names() []string { return m.names }

func (m *MockModel) Stride() int { return DefaultStride }

// Infer records the blob shape and returns the pre-configured candidates or error.
func (m *MockModel) Infer(blob gocv.Mat) ([]Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, h, w := BlobShape(blob)
	m.shapes = append(m.shapes, [3]int{b, h, w})

	if m.err != nil {
		return nil, m.err
	}

	out := make([]Candidate, len(m.candidates))
	copy(out, m.candidates)
	return out, nil
}

// Calls returns the number of Infer calls.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.shapes)
}

// Shapes returns the (batch, height, width) of every blob seen by Infer.
func (m *MockModel) Shapes() [][3]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][3]int, len(m.shapes))
	copy(out, m.shapes)
	return out
}

func (m *MockModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockModel) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MockLoader hands out MockModels and remembers every load.
type MockLoader struct {
	// Names is passed to every model created.
	Names []string
	// Candidates is preloaded into every model created.
	Candidates []Candidate
	// Err, when set, fails every load.
	Err error

	models []*MockModel
	mu     sync.Mutex
}

// Load implements Loader.
func (l *MockLoader) Load(weights, device string) (Model, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.Err != nil {
		return nil, l.Err
	}

	m := NewMockModel(l.Names...)
	m.Weights = weights
	m.Device = device
	m.candidates = l.Candidates
	l.models = append(l.models, m)
	return m, nil
}

// Models returns every model loaded so far, oldest first.
func (l *MockLoader) Models() []*MockModel {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*MockModel, len(l.models))
	copy(out, l.models)
	return out
}

// Last returns the most recently loaded model, or nil.
func (l *MockLoader) Last() *MockModel {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.models) == 0 {
		return nil
	}
	return l.models[len(l.models)-1]
}

// SetErr changes the load error for subsequent loads.
func (l *MockLoader) SetErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Err = err
}
