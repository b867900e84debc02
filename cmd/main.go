package main

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/kiln-ml/kiln"
	"github.com/kiln-ml/kiln/options"
	"github.com/kiln-ml/kiln/pipelines"
	"github.com/kiln-ml/kiln/util/fileutil"
)

var modelPath string
var inputPath string
var outputPath string
var pipelineType string
var sharedLibraryDir string
var backend string
var prefix string

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "Run a model on input data",
	Description: `Run loads an ONNX model directory and runs one of the pipelines on the input.
				`,
	ArgsUsage: `
				--model: path to the model directory, containing the .onnx artifacts, config.json and tokenizer.json.
				--type: pipeline type. Currently implemented types are: imageToImage, imageToText and textToText.
				--input: path to the input image (imageToImage, imageToText) or to a text file with the prompt (textToText). For textToText the prompt is read from stdin when omitted.
				--output: path where to write the output. imageToImage writes a png; the text pipelines write plain text. If omitted, the output is sent to stdout.
				--onnxruntimeSharedLibrary: directory containing the onnxruntime shared library. Only used with the ORT backend.
				--backend: ORT (default) or GO for the pure Go backend.
				`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Usage:       "Path to the model directory",
			Aliases:     []string{"p"},
			Destination: &modelPath,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "type",
			Usage:       "Pipeline type",
			Aliases:     []string{"t"},
			Destination: &pipelineType,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "input",
			Usage:       "Path to the input data",
			Aliases:     []string{"i"},
			Destination: &inputPath,
		},
		&cli.StringFlag{
			Name:        "output",
			Usage:       "Path to output",
			Aliases:     []string{"o"},
			Destination: &outputPath,
		},
		&cli.StringFlag{
			Name:        "onnxruntimeSharedLibrary",
			Usage:       "Directory containing the onnxruntime shared library",
			Aliases:     []string{"s"},
			Destination: &sharedLibraryDir,
			Required:    false,
		},
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "Inference backend, ORT or GO",
			Aliases:     []string{"b"},
			Destination: &backend,
			Required:    false,
			Value:       "ORT",
		},
		&cli.StringFlag{
			Name:        "prefix",
			Usage:       "Generation prefix for the textToText pipeline",
			Destination: &prefix,
			Required:    false,
		},
	},
	Action: func(ctx *cli.Context) error {

		var sessionOptions []options.WithOption
		if sharedLibraryDir != "" {
			sessionOptions = append(sessionOptions, options.WithOnnxLibraryPath(sharedLibraryDir))
		}

		var session *kiln.Session
		var err error
		switch backend {
		case "GO":
			session, err = kiln.NewGoSession(sessionOptions...)
		case "ORT":
			session, err = kiln.NewORTSession(sessionOptions...)
		default:
			return fmt.Errorf("backend %s not implemented", backend)
		}
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, session.Destroy())
		}()

		writer, closeWriter, writeErr := openOutput(outputPath)
		if writeErr != nil {
			return writeErr
		}
		defer func() {
			err = errors.Join(err, closeWriter())
		}()

		switch pipelineType {
		case "imageToImage":
			err = runImageToImage(session, writer)
		case "imageToText":
			err = runImageToText(ctx, session, writer)
		case "textToText":
			err = runTextToText(ctx, session, writer)
		default:
			err = fmt.Errorf("pipeline type %s not implemented", pipelineType)
		}
		return err
	},
}

func main() {
	app := &cli.App{
		Name:     "kiln",
		Usage:    "Multimodal ONNX inference from the command line",
		Commands: []*cli.Command{runCommand},
	}
	if err := app.Run(os.Args); err != nil {
		panic(err)
	}
}

func openOutput(path string) (io.Writer, func() error, error) {
	if path == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	writer, err := fileutil.NewFileWriter(path)
	if err != nil {
		return nil, nil, err
	}
	return writer, writer.Close, nil
}

func runImageToImage(session *kiln.Session, writer io.Writer) error {
	if inputPath == "" {
		return errors.New("the imageToImage pipeline requires --input")
	}
	pipe, err := kiln.NewPipeline(session, kiln.ImageToImageConfig{
		ModelPath: modelPath,
		Name:      "cliPipeline",
	})
	if err != nil {
		return err
	}
	result, err := pipe.Run(inputPath)
	if err != nil {
		return err
	}
	img := image.NewRGBA(image.Rect(0, 0, result.Width, result.Height))
	copy(img.Pix, result.Pixels)
	return png.Encode(writer, img)
}

func runImageToText(ctx *cli.Context, session *kiln.Session, writer io.Writer) error {
	if inputPath == "" {
		return errors.New("the imageToText pipeline requires --input")
	}
	pipe, err := kiln.NewPipeline(session, kiln.ImageToTextConfig{
		ModelPath: modelPath,
		Name:      "cliPipeline",
	})
	if err != nil {
		return err
	}
	_, fragments, errs, err := pipe.RunStream(ctx.Context, inputPath)
	if err != nil {
		return err
	}
	return drainStream(writer, fragments, errs)
}

func runTextToText(ctx *cli.Context, session *kiln.Session, writer io.Writer) error {
	prompt, err := readPrompt()
	if err != nil {
		return err
	}
	pipe, err := kiln.NewPipeline(session, kiln.TextToTextConfig{
		ModelPath: modelPath,
		Name:      "cliPipeline",
	})
	if err != nil {
		return err
	}
	_, fragments, errs, err := pipe.RunStream(ctx.Context, prompt, prefix)
	if err != nil {
		return err
	}
	if prefix != "" {
		if _, err := io.WriteString(writer, prefix); err != nil {
			return err
		}
	}
	return drainStream(writer, fragments, errs)
}

func drainStream(writer io.Writer, fragments <-chan pipelines.Fragment, errs <-chan error) error {
	for fragment := range fragments {
		if _, err := io.WriteString(writer, fragment.Text); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(writer, "\n"); err != nil {
		return err
	}
	return <-errs
}

func readPrompt() (string, error) {
	if inputPath != "" {
		data, err := fileutil.ReadFileBytes(inputPath)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	}
	if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return "", errors.New("the textToText pipeline requires a prompt via --input or stdin")
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
