package transport

import "github.com/corvidlabs/voxcore/internal/audiokit"

// Pipeline runs a TransportPlan's conversion chain over one direction's audio
// frames. Resample steps need the source and destination sample rates, which
// are supplied at construction since ConversionStep itself only names the
// operation.
type Pipeline struct {
	steps   []ConversionStep
	srcRate int
	dstRate int
}

// NewIngressPipeline builds the executable pipeline for a plan's ingress
// (wire → provider) direction.
func NewIngressPipeline(plan *TransportPlan) *Pipeline {
	return &Pipeline{
		steps:   plan.IngressSteps,
		srcRate: plan.Profile.Wire.SampleRate,
		dstRate: plan.Profile.ProviderInput.SampleRate,
	}
}

// NewEgressPipeline builds the executable pipeline for a plan's egress
// (provider → wire) direction.
func NewEgressPipeline(plan *TransportPlan) *Pipeline {
	return &Pipeline{
		steps:   plan.EgressSteps,
		srcRate: plan.Profile.ProviderOutput.SampleRate,
		dstRate: plan.Profile.Wire.SampleRate,
	}
}

// Run applies every step in order to frame, returning the converted bytes.
func (p *Pipeline) Run(frame []byte) ([]byte, error) {
	out := frame
	var err error
	for _, step := range p.steps {
		switch step {
		case StepDecompandMulaw:
			out = audiokit.DecompandUlaw(out)
		case StepDecompandAlaw:
			out = audiokit.DecompandAlaw(out)
		case StepResample:
			out, err = audiokit.Resample(out, p.srcRate, p.dstRate)
			if err != nil {
				return nil, err
			}
		case StepCompandMulaw:
			out, err = audiokit.CompandUlaw(out)
			if err != nil {
				return nil, err
			}
		case StepCompandAlaw:
			out, err = audiokit.CompandAlaw(out)
			if err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}
