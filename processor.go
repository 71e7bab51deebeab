package gomavlib

import (
	"errors"
	"sort"

	"github.com/flightwire/gomavlib/pkg/message"
)

// ErrUnknownMessage is returned when a frame's message id is not in any
// known dialect and KnownDialects.AllowUnknown is false.
var ErrUnknownMessage = errors.New("gomavlib: message id not in any known dialect")

// CustomFrameProcessor lets a caller hook into frame processing before and
// after the built-in compat/signing stages, for concerns like traffic
// shaping, scrambling, or metrics that don't belong in the core pipeline.
//
// Custom processors run in ascending Name() order before the built-in
// stages, and descending Name() order after them, so a well-named pipeline
// of processors has a predictable, symmetric shape.
type CustomFrameProcessor interface {
	Name() string
	ProcessBefore(frame *message.Frame, incoming bool) error
	ProcessAfter(frame *message.Frame, incoming bool) error
}

// FrameProcessor is the per-Node pipeline that validates and signs every
// frame crossing the wire boundary, and dialect-checks it under CompatReject
// or whenever custom processors are attached.
type FrameProcessor struct {
	compat     *CompatProcessor
	signer     *FrameSigner
	dialects   *KnownDialects
	processors []CustomFrameProcessor
}

// FrameProcessorBuilder builds a FrameProcessor.
type FrameProcessorBuilder struct {
	p FrameProcessor
}

// NewFrameProcessorBuilder starts a builder defaulting to Minimal-only
// dialects and no signer or compat processor.
func NewFrameProcessorBuilder() *FrameProcessorBuilder {
	return &FrameProcessorBuilder{p: FrameProcessor{dialects: DefaultKnownDialects()}}
}

// Signer attaches a FrameSigner. If a CompatProcessor is already attached,
// its IgnoreSignature flag is set, since the signer now owns the v2 signed
// bit.
func (b *FrameProcessorBuilder) Signer(signer *FrameSigner) *FrameProcessorBuilder {
	b.p.signer = signer
	if b.p.compat != nil {
		c := *b.p.compat
		c.IgnoreSignature = true
		b.p.compat = &c
	}
	return b
}

// Compat attaches a CompatProcessor. If a FrameSigner is already attached,
// IgnoreSignature is forced true.
func (b *FrameProcessorBuilder) Compat(compat *CompatProcessor) *FrameProcessorBuilder {
	c := *compat
	if b.p.signer != nil {
		c.IgnoreSignature = true
	}
	b.p.compat = &c
	return b
}

// Dialects attaches the set of known dialects.
func (b *FrameProcessorBuilder) Dialects(dialects *KnownDialects) *FrameProcessorBuilder {
	b.p.dialects = dialects
	return b
}

// Processors attaches custom frame processors.
func (b *FrameProcessorBuilder) Processors(processors ...CustomFrameProcessor) *FrameProcessorBuilder {
	b.p.processors = processors
	return b
}

// Build assembles the FrameProcessor.
func (b *FrameProcessorBuilder) Build() *FrameProcessor {
	if b.p.dialects == nil {
		b.p.dialects = DefaultKnownDialects()
	}
	p := b.p
	return &p
}

// Signer returns the attached FrameSigner, or nil.
func (p *FrameProcessor) Signer() *FrameSigner { return p.signer }

// Compat returns the attached CompatProcessor, or nil.
func (p *FrameProcessor) Compat() *CompatProcessor { return p.compat }

// Dialects returns the processor's known dialects.
func (p *FrameProcessor) Dialects() *KnownDialects { return p.dialects }

// ProcessIncoming runs the full pipeline on a frame received from a peer.
func (p *FrameProcessor) ProcessIncoming(frame *message.Frame) error {
	return p.process(frame, true)
}

// ProcessOutgoing runs the full pipeline on a frame about to be sent.
func (p *FrameProcessor) ProcessOutgoing(frame *message.Frame) error {
	return p.process(frame, false)
}

// ProcessNewOutgoing runs the outgoing pipeline on a frame this node just
// originated (its own heartbeat). It differs from ProcessOutgoing only in
// the signer stage: a freshly-built frame is never already signed, so under
// a Strict outgoing strategy the normal validate-then-sign path would
// reject it outright. ProcessNewOutgoing signs it instead whenever the
// outgoing strategy is Strict, per FrameSigner.ProcessNew.
func (p *FrameProcessor) ProcessNewOutgoing(frame *message.Frame) error {
	if err := p.applyCustom(frame, false, true); err != nil {
		return err
	}

	if p.compat != nil {
		if err := p.compat.ProcessOutgoing(frame); err != nil {
			return err
		}
		if p.compat.Strategy == CompatReject {
			if err := p.dialects.ValidateFrame(frame); err != nil {
				return err
			}
		}
	}

	if p.signer != nil {
		p.signer.ProcessNew(frame)
	}

	return p.applyCustom(frame, false, false)
}

func (p *FrameProcessor) process(frame *message.Frame, incoming bool) error {
	if err := p.applyCustom(frame, incoming, true); err != nil {
		return err
	}

	if p.compat != nil {
		var err error
		if incoming {
			err = p.compat.ProcessIncoming(frame)
		} else {
			err = p.compat.ProcessOutgoing(frame)
		}
		if err != nil {
			return err
		}
		// Reject additionally validates dialect membership (spec §4.6.2);
		// Enforce/Proxy don't gate on it here, though applyCustom still
		// does whenever custom processors are attached.
		if p.compat.Strategy == CompatReject {
			if err := p.dialects.ValidateFrame(frame); err != nil {
				return err
			}
		}
	}

	if p.signer != nil {
		var err error
		if incoming {
			err = p.signer.ProcessIncoming(frame)
		} else {
			err = p.signer.ProcessOutgoing(frame)
		}
		if err != nil {
			return err
		}
	}

	return p.applyCustom(frame, incoming, false)
}

func (p *FrameProcessor) applyCustom(frame *message.Frame, incoming, before bool) error {
	if len(p.processors) == 0 {
		return nil
	}
	if err := p.dialects.ValidateFrame(frame); err != nil {
		return err
	}

	order := make([]CustomFrameProcessor, len(p.processors))
	copy(order, p.processors)
	if before {
		sort.Slice(order, func(i, j int) bool { return order[i].Name() < order[j].Name() })
	} else {
		sort.Slice(order, func(i, j int) bool { return order[i].Name() > order[j].Name() })
	}

	for _, proc := range order {
		var err error
		if before {
			err = proc.ProcessBefore(frame, incoming)
		} else {
			err = proc.ProcessAfter(frame, incoming)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
