package detections

import (
	"fmt"
	"runtime"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/sys/cpu"
)

// Session runs one forward pass over a preprocessed CHW tensor.
// Implementations are not safe for concurrent use; a SessionPool hands each
// one to a single caller at a time.
type Session interface {
	Run(input []float32) ([]float32, error)
	Destroy()
}

// ModelSession is an ONNX Runtime session bound to its own input and
// output tensors.
type ModelSession struct {
	Session *ort.AdvancedSession
	Input   *ort.Tensor[float32]
	Output  *ort.Tensor[float32]
}

func (m *ModelSession) Run(input []float32) ([]float32, error) {
	copy(m.Input.GetData(), input)
	if err := m.Session.Run(); err != nil {
		return nil, err
	}
	// The output tensor is reused by the next run on this session.
	out := m.Output.GetData()
	result := make([]float32, len(out))
	copy(result, out)
	return result, nil
}

func (m *ModelSession) Destroy() {
	if m.Session != nil {
		m.Session.Destroy()
	}
	if m.Input != nil {
		m.Input.Destroy()
	}
	if m.Output != nil {
		m.Output.Destroy()
	}
}

// ModelSpec describes the single input and output of a YOLO detection export.
type ModelSpec struct {
	Path        string
	InputName   string
	OutputName  string
	InputShape  ort.Shape
	OutputShape ort.Shape
}

// NumClasses is derived from the [1, 4+nc, anchors] output layout.
func (s ModelSpec) NumClasses() int {
	return int(s.OutputShape[1]) - 4
}

func (s ModelSpec) NumAnchors() int {
	return int(s.OutputShape[2])
}

func defaultModelSpec(path string) ModelSpec {
	return ModelSpec{
		Path:        path,
		InputName:   "images",
		OutputName:  "output0",
		InputShape:  ort.NewShape(1, 3, InputHeight, InputWidth),
		OutputShape: ort.NewShape(1, int64(4+len(ClassLabels)), 8400),
	}
}

// InspectModel reads tensor names and shapes from the model file. Dynamic
// dimensions fall back to the standard 640x640 export layout.
func InspectModel(path string) (ModelSpec, error) {
	spec := defaultModelSpec(path)

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return spec, fmt.Errorf("read model io info: %w", err)
	}
	if len(inputs) != 1 || len(outputs) == 0 {
		return spec, fmt.Errorf("unexpected model io: %d inputs, %d outputs", len(inputs), len(outputs))
	}

	spec.InputName = inputs[0].Name
	spec.OutputName = outputs[0].Name
	if isStatic(inputs[0].Dimensions, 4) {
		spec.InputShape = inputs[0].Dimensions
	}
	if isStatic(outputs[0].Dimensions, 3) {
		spec.OutputShape = outputs[0].Dimensions
	}
	if spec.NumClasses() < 1 {
		return spec, fmt.Errorf("output shape %v has no class channels", spec.OutputShape)
	}
	return spec, nil
}

func isStatic(shape ort.Shape, rank int) bool {
	if len(shape) != rank {
		return false
	}
	for _, d := range shape {
		if d <= 0 {
			return false
		}
	}
	return true
}

func newModelSession(spec ModelSpec, threads int) (*ModelSession, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	options.SetIntraOpNumThreads(threads)
	options.SetInterOpNumThreads(1)

	inputTensor, err := ort.NewEmptyTensor[float32](spec.InputShape)
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](spec.OutputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		spec.Path,
		[]string{spec.InputName},
		[]string{spec.OutputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	return &ModelSession{
		Session: session,
		Input:   inputTensor,
		Output:  outputTensor,
	}, nil
}

// InitRuntime loads the ONNX Runtime shared library. It must be called once
// before any detector is created.
func InitRuntime(libPath string) error {
	if libPath == "" {
		libPath = DefaultLibraryPath()
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime from %s: %w", libPath, err)
	}
	return nil
}

func DestroyRuntime() error {
	return ort.DestroyEnvironment()
}

func DefaultLibraryPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}

// CPUFeatures lists the vector extensions the CPU execution provider can use.
func CPUFeatures() string {
	var features []string
	switch runtime.GOARCH {
	case "amd64", "386":
		if cpu.X86.HasSSE41 {
			features = append(features, "sse4.1")
		}
		if cpu.X86.HasAVX2 {
			features = append(features, "avx2")
		}
		if cpu.X86.HasFMA {
			features = append(features, "fma")
		}
		if cpu.X86.HasAVX512F {
			features = append(features, "avx512f")
		}
	case "arm64":
		if cpu.ARM64.HasASIMD {
			features = append(features, "asimd")
		}
		if cpu.ARM64.HasFPHP {
			features = append(features, "fp16")
		}
	}
	if len(features) == 0 {
		return "baseline"
	}
	return strings.Join(features, ",")
}
