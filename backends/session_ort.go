//go:build !NOORT || ALL

package backends

import (
	"errors"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/kiln-ml/kiln/options"
)

type ortSession struct {
	session *ort.DynamicAdvancedSession
}

func createORTSessionHandle(role string, onnxBytes []byte, opts *options.Options) (*SessionHandle, error) {
	ortInputs, ortOutputs, err := ort.GetInputOutputInfoWithONNXData(onnxBytes)
	if err != nil {
		return nil, err
	}
	inputs := convertORTInputOutputs(ortInputs)
	outputs := convertORTInputOutputs(ortOutputs)

	inputNames := make([]string, len(inputs))
	outputNames := make([]string, len(outputs))
	for i, v := range inputs {
		inputNames[i] = v.Name
	}
	for i, v := range outputs {
		outputNames[i] = v.Name
	}

	sessionOptions, _ := opts.RuntimeOptions.(*ort.SessionOptions)
	session, err := ort.NewDynamicAdvancedSessionWithONNXData(
		onnxBytes,
		inputNames,
		outputNames,
		sessionOptions,
	)
	if err != nil {
		return nil, err
	}

	return &SessionHandle{
		Role:        role,
		InputsMeta:  inputs,
		OutputsMeta: outputs,
		ort:         &ortSession{session: session},
		destroy: func() error {
			return session.Destroy()
		},
	}, nil
}

func runORTSession(handle *SessionHandle, inputs map[string]*Tensor) (outputs map[string]*Tensor, err error) {
	inputValues := make([]ort.Value, len(handle.InputsMeta))
	defer func() {
		for _, value := range inputValues {
			if value != nil {
				err = errors.Join(err, value.Destroy())
			}
		}
	}()

	for i, meta := range handle.InputsMeta {
		t := inputs[meta.Name]
		var value ort.Value
		var valueErr error
		switch {
		case t.IsFloat32():
			value, valueErr = ort.NewTensor(ort.NewShape(t.Shape...), t.Float32s)
		case t.IsInt64():
			value, valueErr = ort.NewTensor(ort.NewShape(t.Shape...), t.Int64s)
		default:
			valueErr = fmt.Errorf("input %q has no backing buffer", meta.Name)
		}
		if valueErr != nil {
			return nil, valueErr
		}
		inputValues[i] = value
	}

	outputValues := make([]ort.Value, len(handle.OutputsMeta))
	defer func() {
		for _, value := range outputValues {
			if value != nil {
				err = errors.Join(err, value.Destroy())
			}
		}
	}()
	if runErr := handle.ort.session.Run(inputValues, outputValues); runErr != nil {
		return nil, runErr
	}

	outputs = make(map[string]*Tensor, len(outputValues))
	for i, value := range outputValues {
		meta := handle.OutputsMeta[i]
		switch v := value.(type) {
		case *ort.Tensor[float32]:
			data := make([]float32, len(v.GetData()))
			copy(data, v.GetData())
			outputs[meta.Name] = &Tensor{Shape: Shape(v.GetShape()), Float32s: data}
		case *ort.Tensor[int64]:
			data := make([]int64, len(v.GetData()))
			copy(data, v.GetData())
			outputs[meta.Name] = &Tensor{Shape: Shape(v.GetShape()), Int64s: data}
		default:
			return nil, fmt.Errorf("unsupported output type %T for %q", value, meta.Name)
		}
	}
	return outputs, nil
}

func convertORTInputOutputs(inputOutputs []ort.InputOutputInfo) []InputOutputInfo {
	converted := make([]InputOutputInfo, len(inputOutputs))
	for i, inputOutput := range inputOutputs {
		converted[i] = InputOutputInfo{
			Name:       inputOutput.Name,
			Dimensions: Shape(inputOutput.Dimensions),
		}
	}
	return converted
}
