// Package transport resolves a named audio profile and a provider's declared
// capabilities into a concrete TransportPlan: the conversion chain the call
// must run on ingress (caller → provider) and egress (provider → caller) audio,
// plus the frame sizing both directions must honor. It owns no I/O; the
// Playback Manager and media adapters execute the plans this package produces.
package transport

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/corvidlabs/voxcore/internal/audiokit"
)

// Encoding identifies the sample encoding of an AudioFormat.
type Encoding string

const (
	EncodingMulaw Encoding = "mulaw"
	EncodingAlaw  Encoding = "alaw"
	EncodingPCM16 Encoding = "pcm16le"
)

// AudioFormat describes one side of an audio conversion: how samples are
// encoded, at what rate, and how many channels. Equality is by value; two
// AudioFormat values with identical fields are the same format. Channels is
// always 1 in this system — every call leg is mono.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
}

// BytesPerSample returns the on-wire byte width of one sample in this format:
// 1 for compressed G.711 encodings, 2 for linear PCM16.
func (f AudioFormat) BytesPerSample() int {
	if f.Encoding == EncodingPCM16 {
		return 2
	}
	return 1
}

// AudioProfile declares the wire format the PBX actually carries and the
// input/output formats the configured provider expects. The wire format is
// authoritative regardless of what codec the caller's carrier actually used —
// the PBX already normalized it before handing media to the engine.
type AudioProfile struct {
	Name           string
	Wire           AudioFormat
	ProviderInput  AudioFormat
	ProviderOutput AudioFormat
}

// ProviderCapabilities is what a provider session reports it can accept and
// emit, used to validate an AudioProfile at plan time.
type ProviderCapabilities struct {
	SupportedInput  []AudioFormat
	SupportedOutput []AudioFormat
}

func (c ProviderCapabilities) supports(formats []AudioFormat, f AudioFormat) bool {
	for _, s := range formats {
		if s == f {
			return true
		}
	}
	return false
}

// ErrProfileNotFound is returned by Plan when no profile is registered under
// the requested name.
var ErrProfileNotFound = errors.New("transport: audio profile not found")

// ErrProfileIncompatible is returned by Plan when the provider's declared
// capabilities do not include a profile's wire/input/output formats, or the
// Codec Kit has no conversion path between the formats involved.
type ErrProfileIncompatible struct {
	Profile string
	Reason  string
}

func (e *ErrProfileIncompatible) Error() string {
	return fmt.Sprintf("transport: profile %q incompatible: %s", e.Profile, e.Reason)
}

// ConversionStep names one stage of a direction's conversion chain, in the
// order it must run.
type ConversionStep string

const (
	StepCompandMulaw   ConversionStep = "compand_mulaw"
	StepDecompandMulaw ConversionStep = "decompand_mulaw"
	StepCompandAlaw    ConversionStep = "compand_alaw"
	StepDecompandAlaw  ConversionStep = "decompand_alaw"
	StepResample       ConversionStep = "resample"
)

// TransportPlan is the resolved conversion chain and frame sizing for one
// call's audio, derived from an AudioProfile and a provider's capabilities.
type TransportPlan struct {
	Profile AudioProfile

	// IngressSteps converts one wire-format frame (caller → provider) into
	// ProviderInput format, in order.
	IngressSteps []ConversionStep

	// EgressSteps converts one ProviderOutput-format frame (provider → caller)
	// into wire format, in order.
	EgressSteps []ConversionStep

	// FrameMs is the fixed frame duration every adapter in this call must
	// honor; always 20.
	FrameMs int

	// WireFrameBytes is the byte length of exactly one FrameMs frame in
	// Profile.Wire.Encoding.
	WireFrameBytes int
}

const frameDurationMs = 20

// Plan looks up profile by name in the registry, validates it against the
// provider's declared capabilities, and derives the per-direction conversion
// chain. Returns ErrProfileNotFound if the name is unregistered, or
// *ErrProfileIncompatible if the Codec Kit has no bridge for a required
// conversion.
func Plan(profileName string, caps ProviderCapabilities) (*TransportPlan, error) {
	profile, ok := LookupProfile(profileName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, profileName)
	}

	if !caps.supports(caps.SupportedInput, profile.ProviderInput) {
		return nil, &ErrProfileIncompatible{
			Profile: profileName,
			Reason:  fmt.Sprintf("provider does not accept input format %+v", profile.ProviderInput),
		}
	}
	if !caps.supports(caps.SupportedOutput, profile.ProviderOutput) {
		return nil, &ErrProfileIncompatible{
			Profile: profileName,
			Reason:  fmt.Sprintf("provider does not emit output format %+v", profile.ProviderOutput),
		}
	}

	ingress, err := conversionChain(profile.Wire, profile.ProviderInput)
	if err != nil {
		return nil, &ErrProfileIncompatible{Profile: profileName, Reason: err.Error()}
	}
	egress, err := conversionChain(profile.ProviderOutput, profile.Wire)
	if err != nil {
		return nil, &ErrProfileIncompatible{Profile: profileName, Reason: err.Error()}
	}

	return &TransportPlan{
		Profile:        profile,
		IngressSteps:   ingress,
		EgressSteps:    egress,
		FrameMs:        frameDurationMs,
		WireFrameBytes: audiokit.FrameBytes(profile.Wire.SampleRate, frameDurationMs, profile.Wire.BytesPerSample()),
	}, nil
}

// conversionChain derives the ordered steps to go from src to dst format.
// Decoding (to PCM16) happens first, then resampling, then encoding to dst's
// compressed format if any.
func conversionChain(src, dst AudioFormat) ([]ConversionStep, error) {
	if src == dst {
		return nil, nil
	}

	var steps []ConversionStep
	rate := src.SampleRate

	switch src.Encoding {
	case EncodingMulaw:
		steps = append(steps, StepDecompandMulaw)
	case EncodingAlaw:
		steps = append(steps, StepDecompandAlaw)
	case EncodingPCM16:
		// already linear.
	}

	if rate != dst.SampleRate {
		if err := checkResamplePath(rate, dst.SampleRate); err != nil {
			return nil, err
		}
		steps = append(steps, StepResample)
	}

	switch dst.Encoding {
	case EncodingMulaw:
		steps = append(steps, StepCompandMulaw)
	case EncodingAlaw:
		steps = append(steps, StepCompandAlaw)
	case EncodingPCM16:
		// already linear.
	}

	return steps, nil
}

func checkResamplePath(srcHz, dstHz int) error {
	// Probe the Codec Kit with an empty buffer: a cheap, allocation-free way to
	// surface ErrUnsupportedRate without faking a full resampler capability table.
	_, err := audiokit.Resample(nil, srcHz, dstHz)
	if errors.Is(err, audiokit.ErrUnsupportedRate) {
		return fmt.Errorf("no resample path for %d Hz -> %d Hz", srcHz, dstHz)
	}
	return nil
}

// ProviderAck is what a provider session reports after Plan's formats were
// sent to it: the formats it will actually apply, which may differ from what
// was requested.
type ProviderAck struct {
	AppliedInput  AudioFormat
	AppliedOutput AudioFormat
}

// Negotiate compares a provider's post-handshake ProviderAck against the plan
// sent to it. A mismatch does not abort the call: per the no-caller-codec-leakage
// contract, the wire format is never renegotiated, so the engine instead logs
// a warning and continues using the provider's actual applied formats for the
// remainder of the call.
func Negotiate(plan *TransportPlan, ack ProviderAck) *TransportPlan {
	if ack.AppliedInput == plan.Profile.ProviderInput && ack.AppliedOutput == plan.Profile.ProviderOutput {
		return plan
	}

	slog.Warn("provider applied settings differ from transport plan; continuing with provider's actual formats",
		"profile", plan.Profile.Name,
		"planned_input", plan.Profile.ProviderInput,
		"applied_input", ack.AppliedInput,
		"planned_output", plan.Profile.ProviderOutput,
		"applied_output", ack.AppliedOutput,
	)

	adjusted := *plan
	adjusted.Profile.ProviderInput = ack.AppliedInput
	adjusted.Profile.ProviderOutput = ack.AppliedOutput

	if steps, err := conversionChain(adjusted.Profile.Wire, adjusted.Profile.ProviderInput); err == nil {
		adjusted.IngressSteps = steps
	}
	if steps, err := conversionChain(adjusted.Profile.ProviderOutput, adjusted.Profile.Wire); err == nil {
		adjusted.EgressSteps = steps
	}
	return &adjusted
}
