// Package kiln runs multimodal ONNX models in-process: image to image
// transformation, image captioning, and sequence to sequence text generation,
// backed by onnxruntime or a pure Go inference backend.
package kiln

import (
	"errors"
	"fmt"
	"slices"

	"github.com/kiln-ml/kiln/backends"
	"github.com/kiln-ml/kiln/options"
	"github.com/kiln-ml/kiln/pipelines"
)

// Session allows for the creation of new pipelines and holds the pipelines
// already created. Models are cached by path, so pipelines created from the
// same model directory share sessions and tokenizer.
type Session struct {
	imageToImagePipelines pipelineMap[*pipelines.ImageToImagePipeline]
	imageToTextPipelines  pipelineMap[*pipelines.ImageToTextPipeline]
	textToTextPipelines   pipelineMap[*pipelines.TextToTextPipeline]
	models                map[string]*backends.Model
	options               *options.Options
	environmentDestroy    func() error
}

func newSession(backend string, opts ...options.WithOption) (*Session, error) {
	parsedOptions := options.Defaults()
	parsedOptions.Backend = backend
	// Collect options into a struct, so they can be applied in the correct order later
	for _, option := range opts {
		err := option(parsedOptions)
		if err != nil {
			return nil, err
		}
	}

	session := &Session{
		imageToImagePipelines: map[string]*pipelines.ImageToImagePipeline{},
		imageToTextPipelines:  map[string]*pipelines.ImageToTextPipeline{},
		textToTextPipelines:   map[string]*pipelines.TextToTextPipeline{},
		models:                map[string]*backends.Model{},
		options:               parsedOptions,
		environmentDestroy: func() error {
			return nil
		},
	}

	return session, nil
}

type pipelineMap[T backends.Pipeline] map[string]T

func (m pipelineMap[T]) GetStats() []string {
	var stats []string
	for _, p := range m {
		stats = append(stats, p.GetStats()...)
	}
	return stats
}

// ImageToImageConfig is the configuration for an image to image pipeline.
type ImageToImageConfig = backends.PipelineConfig[*pipelines.ImageToImagePipeline]

// ImageToImageOption is an option for an image to image pipeline.
type ImageToImageOption = backends.PipelineOption[*pipelines.ImageToImagePipeline]

// ImageToTextConfig is the configuration for an image captioning pipeline.
type ImageToTextConfig = backends.PipelineConfig[*pipelines.ImageToTextPipeline]

// ImageToTextOption is an option for an image captioning pipeline.
type ImageToTextOption = backends.PipelineOption[*pipelines.ImageToTextPipeline]

// TextToTextConfig is the configuration for a sequence to sequence pipeline.
type TextToTextConfig = backends.PipelineConfig[*pipelines.TextToTextPipeline]

// TextToTextOption is an option for a sequence to sequence pipeline.
type TextToTextOption = backends.PipelineOption[*pipelines.TextToTextPipeline]

// modelRequirements returns the session roles and tokenizer requirement for
// a pipeline type.
func modelRequirements[T backends.Pipeline]() ([]string, bool, error) {
	var pipeline T
	switch any(pipeline).(type) {
	case *pipelines.ImageToImagePipeline:
		return []string{"model"}, false, nil
	case *pipelines.ImageToTextPipeline:
		return []string{"encoder", "decoder"}, true, nil
	case *pipelines.TextToTextPipeline:
		return []string{"encoder", "decoder"}, true, nil
	default:
		return nil, false, fmt.Errorf("pipeline type not supported: %T", pipeline)
	}
}

// NewPipeline can be used to create a new pipeline of type T. The initialised pipeline will be returned and it
// will also be stored in the session object so that all created pipelines can be destroyed with session.Destroy()
// at once.
func NewPipeline[T backends.Pipeline](s *Session, pipelineConfig backends.PipelineConfig[T]) (T, error) {
	var pipeline T
	if pipelineConfig.Name == "" {
		return pipeline, errors.New("a name for the pipeline is required")
	}

	_, getError := GetPipeline[T](s, pipelineConfig.Name)
	var notFoundError *pipelineNotFoundError
	if getError == nil {
		return pipeline, fmt.Errorf("pipeline %s has already been initialised", pipelineConfig.Name)
	} else if !errors.As(getError, &notFoundError) {
		return pipeline, getError
	}

	// Load model if it has not been loaded already
	model, ok := s.models[pipelineConfig.ModelPath]

	var err error
	var name string

	if !ok {
		roles, withTokenizer, reqErr := modelRequirements[T]()
		if reqErr != nil {
			return pipeline, reqErr
		}
		model, err = backends.LoadModel(pipelineConfig.ModelPath, roles, withTokenizer, s.options)
		if err != nil {
			return pipeline, err
		}
		s.models[pipelineConfig.ModelPath] = model
	}

	pipeline, name, err = InitializePipeline(pipeline, pipelineConfig, s.options, model)
	if err != nil {
		return pipeline, err
	}

	switch typedPipeline := any(pipeline).(type) {
	case *pipelines.ImageToImagePipeline:
		s.imageToImagePipelines[name] = typedPipeline
	case *pipelines.ImageToTextPipeline:
		s.imageToTextPipelines[name] = typedPipeline
	case *pipelines.TextToTextPipeline:
		s.textToTextPipelines[name] = typedPipeline
	default:
		return pipeline, fmt.Errorf("pipeline type not supported: %T", typedPipeline)
	}
	return pipeline, nil
}

func InitializePipeline[T backends.Pipeline](p T, pipelineConfig backends.PipelineConfig[T], options *options.Options, model *backends.Model) (T, string, error) {
	var pipeline T
	var name string

	switch any(p).(type) {
	case *pipelines.ImageToImagePipeline:
		config := any(pipelineConfig).(backends.PipelineConfig[*pipelines.ImageToImagePipeline])
		pipelineInitialised, err := pipelines.NewImageToImagePipeline(config, options, model)
		if err != nil {
			return pipeline, name, err
		}
		pipeline = any(pipelineInitialised).(T)
		name = config.Name
	case *pipelines.ImageToTextPipeline:
		config := any(pipelineConfig).(backends.PipelineConfig[*pipelines.ImageToTextPipeline])
		pipelineInitialised, err := pipelines.NewImageToTextPipeline(config, options, model)
		if err != nil {
			return pipeline, name, err
		}
		pipeline = any(pipelineInitialised).(T)
		name = config.Name
	case *pipelines.TextToTextPipeline:
		config := any(pipelineConfig).(backends.PipelineConfig[*pipelines.TextToTextPipeline])
		pipelineInitialised, err := pipelines.NewTextToTextPipeline(config, options, model)
		if err != nil {
			return pipeline, name, err
		}
		pipeline = any(pipelineInitialised).(T)
		name = config.Name
	default:
		return pipeline, name, fmt.Errorf("not implemented")
	}

	model.Pipelines[name] = pipeline
	return pipeline, name, nil
}

// GetPipeline can be used to retrieve a pipeline of type T with the given name from the session.
func GetPipeline[T backends.Pipeline](s *Session, name string) (T, error) {
	var pipeline T
	switch any(pipeline).(type) {
	case *pipelines.ImageToImagePipeline:
		p, ok := s.imageToImagePipelines[name]
		if !ok {
			return pipeline, &pipelineNotFoundError{pipelineName: name}
		}
		return any(p).(T), nil
	case *pipelines.ImageToTextPipeline:
		p, ok := s.imageToTextPipelines[name]
		if !ok {
			return pipeline, &pipelineNotFoundError{pipelineName: name}
		}
		return any(p).(T), nil
	case *pipelines.TextToTextPipeline:
		p, ok := s.textToTextPipelines[name]
		if !ok {
			return pipeline, &pipelineNotFoundError{pipelineName: name}
		}
		return any(p).(T), nil
	default:
		return pipeline, errors.New("pipeline type not supported")
	}
}

// ClosePipeline removes a pipeline from the session, destroying its model
// when no other pipeline shares it.
func ClosePipeline[T backends.Pipeline](s *Session, name string) error {
	var pipeline T
	switch any(pipeline).(type) {
	case *pipelines.ImageToImagePipeline:
		p, ok := s.imageToImagePipelines[name]
		if ok {
			model := p.Model
			delete(s.imageToImagePipelines, name)
			delete(model.Pipelines, name)
			if len(model.Pipelines) == 0 {
				delete(s.models, model.Path)
				return model.Destroy()
			}
		}
	case *pipelines.ImageToTextPipeline:
		p, ok := s.imageToTextPipelines[name]
		if ok {
			model := p.Model
			delete(s.imageToTextPipelines, name)
			delete(model.Pipelines, name)
			if len(model.Pipelines) == 0 {
				delete(s.models, model.Path)
				return model.Destroy()
			}
		}
	case *pipelines.TextToTextPipeline:
		p, ok := s.textToTextPipelines[name]
		if ok {
			model := p.Model
			delete(s.textToTextPipelines, name)
			delete(model.Pipelines, name)
			if len(model.Pipelines) == 0 {
				delete(s.models, model.Path)
				return model.Destroy()
			}
		}
	default:
		return errors.New("pipeline type not supported")
	}
	return nil
}

type pipelineNotFoundError struct {
	pipelineName string
}

func (e *pipelineNotFoundError) Error() string {
	return fmt.Sprintf("Pipeline with name %s not found", e.pipelineName)
}

// GetStats returns runtime statistics for all initialized pipelines for
// profiling purposes: the number of runs per pipeline, the total runtime and
// the average time per run.
func (s *Session) GetStats() []string {
	return slices.Concat(
		s.imageToImagePipelines.GetStats(),
		s.imageToTextPipelines.GetStats(),
		s.textToTextPipelines.GetStats(),
	)
}

// Destroy deletes the session and the backend environment with all
// initialized pipelines, freeing memory. A session should be destroyed when
// not needed any more, preferably with a defer() call.
func (s *Session) Destroy() error {
	var err error
	for _, model := range s.models {
		err = errors.Join(err, model.Destroy())
	}
	s.models = nil
	s.imageToImagePipelines = nil
	s.imageToTextPipelines = nil
	s.textToTextPipelines = nil

	if s.options != nil {
		err = errors.Join(err, s.options.Destroy())
		s.options = nil
	}

	err = errors.Join(err, s.environmentDestroy())
	return err
}
