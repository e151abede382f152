package conv

// Algo selects the execution engine for one call class. Each layer carries an
// independent Algo per call class in its Config, so forward can run on the
// device while backward stays on the CPU, or vice versa.
type Algo int

const (
	// AlgoAuto resolves to AlgoGPUBase when the layer prefers the GPU,
	// otherwise to AlgoCPUSerial.
	AlgoAuto Algo = iota
	AlgoCPUSerial
	AlgoCPUVector
	AlgoCPUParallel
	AlgoCPUParallelVector
	AlgoGPUBase
	AlgoGPUFast
)

var algoNames = map[Algo]string{
	AlgoAuto:              "auto",
	AlgoCPUSerial:         "cpu-serial",
	AlgoCPUVector:         "cpu-vector",
	AlgoCPUParallel:       "cpu-parallel",
	AlgoCPUParallelVector: "cpu-parallel-vector",
	AlgoGPUBase:           "gpu-base",
	AlgoGPUFast:           "gpu-fast",
}

// ParseAlgo maps an identifier to its Algo. Unrecognized identifiers behave
// like "auto" rather than failing, so harness flags degrade to the default
// engine of the layer's device preference.
func ParseAlgo(s string) Algo {
	for a, name := range algoNames {
		if name == s {
			return a
		}
	}
	return AlgoAuto
}

func (a Algo) String() string {
	if name, ok := algoNames[a]; ok {
		return name
	}
	return "auto"
}

// resolve replaces auto (and anything out of range) with the concrete default
// for the layer's device preference.
func (a Algo) resolve(preferGPU bool) Algo {
	switch a {
	case AlgoCPUSerial, AlgoCPUVector, AlgoCPUParallel, AlgoCPUParallelVector, AlgoGPUBase, AlgoGPUFast:
		return a
	default:
		if preferGPU {
			return AlgoGPUBase
		}
		return AlgoCPUSerial
	}
}
