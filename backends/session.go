package backends

import (
	"errors"
	"fmt"
	"slices"

	"golang.org/x/exp/maps"

	"github.com/kiln-ml/kiln/options"
	"github.com/kiln-ml/kiln/util/fileutil"
)

// Runner is the forward-pass capability consumed by the pipelines: given a
// role and named input tensors, produce named output tensors. One call is one
// forward pass over one batch; the call either completes with all named
// outputs or fails atomically.
type Runner interface {
	Run(role string, inputs map[string]*Tensor) (map[string]*Tensor, error)
}

// SessionHandle is a named, loaded, stateless-between-calls inference session.
// A handle runs at most one forward pass at a time by caller contract; no
// internal locking is performed.
type SessionHandle struct {
	Role        string
	InputsMeta  []InputOutputInfo
	OutputsMeta []InputOutputInfo

	ort   *ortSession
	gonnx *goSession

	destroy func() error
}

// SessionSet owns the named inference sessions of one model. Roles are logical
// names such as "encoder", "decoder" or "model"; the mapping from role to
// artifact is decided by the pipeline that loads the set.
type SessionSet struct {
	options *options.Options
	handles map[string]*SessionHandle
}

// LoadSessionSet reads the given role to artifact-location mapping and creates
// one session per role. Locations are resolved through the afs file system, so
// local paths and s3:// URLs both work. Fails with ErrSessionLoad if a
// required role has no artifact or an artifact cannot be loaded.
func LoadSessionSet(artifacts map[string]string, required []string, opts *options.Options) (*SessionSet, error) {
	for _, role := range required {
		if _, ok := artifacts[role]; !ok {
			return nil, fmt.Errorf("%w: required role %q has no artifact", ErrSessionLoad, role)
		}
	}
	byteArtifacts := make(map[string][]byte, len(artifacts))
	for role, location := range artifacts {
		onnxBytes, err := fileutil.ReadFileBytes(location)
		if err != nil {
			return nil, fmt.Errorf("%w: reading artifact for role %q at %s: %w", ErrSessionLoad, role, location, err)
		}
		byteArtifacts[role] = onnxBytes
	}
	return LoadSessionSetBytes(byteArtifacts, required, opts)
}

// LoadSessionSetBytes is LoadSessionSet for artifacts already held in memory.
func LoadSessionSetBytes(artifacts map[string][]byte, required []string, opts *options.Options) (*SessionSet, error) {
	for _, role := range required {
		if _, ok := artifacts[role]; !ok {
			return nil, fmt.Errorf("%w: required role %q has no artifact", ErrSessionLoad, role)
		}
	}
	set := &SessionSet{options: opts, handles: map[string]*SessionHandle{}}
	for role, onnxBytes := range artifacts {
		handle, err := newSessionHandle(role, onnxBytes, opts)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("%w: role %q: %w", ErrSessionLoad, role, err), set.Destroy())
		}
		set.handles[role] = handle
	}
	return set, nil
}

func newSessionHandle(role string, onnxBytes []byte, opts *options.Options) (*SessionHandle, error) {
	switch opts.Backend {
	case "GO":
		return createGoSessionHandle(role, onnxBytes)
	case "ORT":
		return createORTSessionHandle(role, onnxBytes, opts)
	default:
		return nil, fmt.Errorf("backend %s not recognized", opts.Backend)
	}
}

// Run executes one forward pass of the session loaded under role. Input
// tensors are handed to the engine for the duration of the call; the
// engine-side values are released before Run returns. The returned tensors
// are fresh buffers exclusively owned by the caller and never alias the
// inputs.
func (s *SessionSet) Run(role string, inputs map[string]*Tensor) (map[string]*Tensor, error) {
	if s == nil || s.handles == nil {
		return nil, fmt.Errorf("%w: session set has not been loaded", ErrUninitialized)
	}
	handle, ok := s.handles[role]
	if !ok {
		return nil, fmt.Errorf("%w: %q (loaded roles: %v)", ErrUnknownRole, role, s.Roles())
	}
	for _, meta := range handle.InputsMeta {
		if _, ok := inputs[meta.Name]; !ok {
			return nil, fmt.Errorf("role %q: missing input %q", role, meta.Name)
		}
	}
	var outputs map[string]*Tensor
	var err error
	switch s.options.Backend {
	case "GO":
		outputs, err = runGoSession(handle, inputs)
	default:
		outputs, err = runORTSession(handle, inputs)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: role %q: %w", ErrInference, role, err)
	}
	return outputs, nil
}

// HasRole reports whether a session was loaded under the given role.
func (s *SessionSet) HasRole(role string) bool {
	if s == nil {
		return false
	}
	_, ok := s.handles[role]
	return ok
}

// Roles returns the loaded role names in sorted order.
func (s *SessionSet) Roles() []string {
	roles := maps.Keys(s.handles)
	slices.Sort(roles)
	return roles
}

// InputNames returns the declared input names of the session loaded under role.
func (s *SessionSet) InputNames(role string) ([]string, error) {
	handle, ok := s.handles[role]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	names := make([]string, len(handle.InputsMeta))
	for i, meta := range handle.InputsMeta {
		names[i] = meta.Name
	}
	return names, nil
}

// OutputNames returns the declared output names of the session loaded under role.
func (s *SessionSet) OutputNames(role string) ([]string, error) {
	handle, ok := s.handles[role]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	names := make([]string, len(handle.OutputsMeta))
	for i, meta := range handle.OutputsMeta {
		names[i] = meta.Name
	}
	return names, nil
}

// OutputsMeta returns the declared outputs of the session loaded under role.
func (s *SessionSet) OutputsMeta(role string) ([]InputOutputInfo, error) {
	handle, ok := s.handles[role]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	return handle.OutputsMeta, nil
}

// Destroy releases all sessions in the set. The set cannot be used afterwards.
func (s *SessionSet) Destroy() error {
	var err error
	for _, handle := range s.handles {
		if handle.destroy != nil {
			err = errors.Join(err, handle.destroy())
		}
	}
	s.handles = nil
	return err
}
