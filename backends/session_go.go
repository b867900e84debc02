package backends

import (
	"fmt"

	"github.com/advancedclimatesystems/gonnx"
	"gorgonia.org/tensor"
)

type goSession struct {
	model *gonnx.Model
}

func createGoSessionHandle(role string, onnxBytes []byte) (*SessionHandle, error) {
	model, err := gonnx.NewModelFromBytes(onnxBytes)
	if err != nil {
		return nil, err
	}

	var inputs, outputs []InputOutputInfo
	inputShapes := model.InputShapes()
	for _, name := range model.InputNames() {
		shape := inputShapes[name]
		dimensions := make(Shape, len(shape))
		for i, d := range shape {
			dimensions[i] = d.Size
		}
		inputs = append(inputs, InputOutputInfo{Name: name, Dimensions: dimensions})
	}
	outputShapes := model.OutputShapes()
	for _, name := range model.OutputNames() {
		shape := outputShapes[name]
		dimensions := make(Shape, len(shape))
		for i, d := range shape {
			dimensions[i] = d.Size
		}
		outputs = append(outputs, InputOutputInfo{Name: name, Dimensions: dimensions})
	}

	return &SessionHandle{
		Role:        role,
		InputsMeta:  inputs,
		OutputsMeta: outputs,
		gonnx:       &goSession{model: model},
		destroy: func() error {
			return nil
		},
	}, nil
}

func runGoSession(handle *SessionHandle, inputs map[string]*Tensor) (map[string]*Tensor, error) {
	inputMap := make(map[string]tensor.Tensor, len(handle.InputsMeta))
	for _, meta := range handle.InputsMeta {
		t := inputs[meta.Name]
		switch {
		case t.IsFloat32():
			inputMap[meta.Name] = tensor.New(
				tensor.WithShape(t.Shape.ValuesInt()...),
				tensor.WithBacking(t.Float32s),
			)
		case t.IsInt64():
			inputMap[meta.Name] = tensor.New(
				tensor.WithShape(t.Shape.ValuesInt()...),
				tensor.WithBacking(t.Int64s),
			)
		default:
			return nil, fmt.Errorf("input %q has no backing buffer", meta.Name)
		}
	}

	outputMap, err := handle.gonnx.model.Run(inputMap)
	if err != nil {
		return nil, err
	}

	outputs := make(map[string]*Tensor, len(outputMap))
	for name, out := range outputMap {
		outShape := out.Shape()
		shape := make(Shape, len(outShape))
		for i, d := range outShape {
			shape[i] = int64(d)
		}
		switch data := out.Data().(type) {
		case []float32:
			outputs[name] = &Tensor{Shape: shape, Float32s: data}
		case []int64:
			outputs[name] = &Tensor{Shape: shape, Int64s: data}
		case float32:
			outputs[name] = &Tensor{Shape: shape, Float32s: []float32{data}}
		case int64:
			outputs[name] = &Tensor{Shape: shape, Int64s: []int64{data}}
		default:
			return nil, fmt.Errorf("unsupported output type %T for %q", data, name)
		}
	}
	return outputs, nil
}
