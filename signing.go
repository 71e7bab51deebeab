package gomavlib

import (
	"errors"
	"fmt"

	"github.com/flightwire/gomavlib/pkg/message"
)

// SignStrategy controls how a FrameSigner treats a frame in one direction
// (incoming or outgoing), and how it treats frames signed with a link id
// it does not recognize.
type SignStrategy int

const (
	// SignStrategySign signs unsigned frames and validates already-signed
	// ones, rejecting only frames with an incorrect signature.
	SignStrategySign SignStrategy = iota
	// SignStrategyReSign behaves like Sign but always re-signs validated
	// frames with the main link id and key; a frame signed with an unknown
	// link id is re-signed only when UnknownLinks is Sign or ReSign.
	SignStrategyReSign
	// SignStrategyStrict rejects any frame that isn't already validly
	// signed.
	SignStrategyStrict
	// SignStrategyProxy passes frames through untouched.
	SignStrategyProxy
	// SignStrategyStrip removes any signature from a frame.
	SignStrategyStrip
)

// ErrSignature is returned when a frame fails signature validation.
var ErrSignature = errors.New("gomavlib: invalid frame signature")

// FrameSigner validates and applies MAVLink 2 message signing.
//
// A signer has one main link id / key pair used to sign outgoing frames,
// plus optionally more link/key pairs used only to validate frames signed
// by other parties. Exclude lists message ids that skip signing and
// validation entirely.
type FrameSigner struct {
	linkID       byte
	incoming     SignStrategy
	outgoing     SignStrategy
	unknownLinks SignStrategy
	links        map[byte]message.SecretKey
	lastTS       *message.UniqueMavTimestamp
	exclude      map[uint32]struct{}
}

// NewFrameSigner creates a FrameSigner with the main linkID/key and default
// strategies (Sign for both directions, Strict for unknown links).
func NewFrameSigner(linkID byte, key message.SecretKey) *FrameSigner {
	s, _ := NewFrameSignerBuilder().LinkID(linkID).Key(key).Build()
	return s
}

// FrameSignerBuilder builds a FrameSigner.
type FrameSignerBuilder struct {
	linkID       byte
	hasLinkID    bool
	key          message.SecretKey
	hasKey       bool
	incoming     SignStrategy
	outgoing     SignStrategy
	unknownLinks SignStrategy
	links        map[byte]message.SecretKey
	exclude      map[uint32]struct{}
}

// NewFrameSignerBuilder starts an empty FrameSignerBuilder.
func NewFrameSignerBuilder() *FrameSignerBuilder {
	return &FrameSignerBuilder{
		unknownLinks: SignStrategyStrict,
		links:        make(map[byte]message.SecretKey),
		exclude:      make(map[uint32]struct{}),
	}
}

// LinkID sets the main signed-link id.
func (b *FrameSignerBuilder) LinkID(id byte) *FrameSignerBuilder {
	b.linkID, b.hasLinkID = id, true
	return b
}

// Key sets the main secret key.
func (b *FrameSignerBuilder) Key(key message.SecretKey) *FrameSignerBuilder {
	b.key, b.hasKey = key, true
	return b
}

// Incoming sets the strategy applied to incoming frames. Default Sign.
func (b *FrameSignerBuilder) Incoming(strategy SignStrategy) *FrameSignerBuilder {
	b.incoming = strategy
	return b
}

// Outgoing sets the strategy applied to outgoing frames. Default Sign.
func (b *FrameSignerBuilder) Outgoing(strategy SignStrategy) *FrameSignerBuilder {
	b.outgoing = strategy
	return b
}

// UnknownLinks sets the strategy applied to frames signed with a link id
// this signer does not recognize. Default Strict.
func (b *FrameSignerBuilder) UnknownLinks(strategy SignStrategy) *FrameSignerBuilder {
	b.unknownLinks = strategy
	return b
}

// AddLink registers an additional link id / key pair, used only to
// validate frames signed by other parties. If id equals the main link id,
// this replaces the main key.
func (b *FrameSignerBuilder) AddLink(id byte, key message.SecretKey) *FrameSignerBuilder {
	b.links[id] = key
	if b.hasLinkID && b.linkID == id {
		b.key = key
	}
	return b
}

// Exclude lists message ids that skip signing and validation entirely.
func (b *FrameSignerBuilder) Exclude(messageIDs ...uint32) *FrameSignerBuilder {
	for _, id := range messageIDs {
		b.exclude[id] = struct{}{}
	}
	return b
}

// Build assembles the FrameSigner. Returns an error if LinkID or Key was
// never set.
func (b *FrameSignerBuilder) Build() (*FrameSigner, error) {
	if !b.hasLinkID || !b.hasKey {
		return nil, fmt.Errorf("gomavlib: FrameSigner requires both LinkID and Key")
	}
	links := make(map[byte]message.SecretKey, len(b.links)+1)
	for id, key := range b.links {
		links[id] = key
	}
	links[b.linkID] = b.key
	return &FrameSigner{
		linkID:       b.linkID,
		incoming:     b.incoming,
		outgoing:     b.outgoing,
		unknownLinks: b.unknownLinks,
		links:        links,
		lastTS:       message.NewUniqueMavTimestamp(),
		exclude:      b.exclude,
	}, nil
}

// LinkID returns the main link id.
func (s *FrameSigner) LinkID() byte { return s.linkID }

// Key returns the main secret key.
func (s *FrameSigner) Key() message.SecretKey { return s.links[s.linkID] }

// ProcessIncoming validates and (re-)signs frame per the incoming strategy.
func (s *FrameSigner) ProcessIncoming(frame *message.Frame) error {
	return s.processForStrategy(frame, s.incoming)
}

// ProcessOutgoing validates and (re-)signs frame per the outgoing strategy.
func (s *FrameSigner) ProcessOutgoing(frame *message.Frame) error {
	return s.processForStrategy(frame, s.outgoing)
}

// ProcessNew signs a freshly-built frame (one this node is originating,
// such as its own heartbeat) only if the outgoing strategy is Strict.
func (s *FrameSigner) ProcessNew(frame *message.Frame) {
	if s.outgoing == SignStrategyStrict {
		s.SignFrame(frame)
	}
}

func (s *FrameSigner) processForStrategy(frame *message.Frame, strategy SignStrategy) error {
	if _, excluded := s.exclude[frame.MessageID()]; excluded {
		return nil
	}
	if err := s.validateForStrategy(frame, strategy); err != nil {
		return err
	}
	s.signForStrategy(frame, strategy)
	return nil
}

func (s *FrameSigner) validateForStrategy(frame *message.Frame, strategy SignStrategy) error {
	if strategy == SignStrategyProxy {
		return nil
	}
	if strategy == SignStrategyStrict && !frame.IsSigned() {
		return ErrSignature
	}
	switch strategy {
	case SignStrategySign, SignStrategyReSign, SignStrategyStrict:
		if frame.IsSigned() && !s.HasValidSignature(frame) {
			return ErrSignature
		}
	}
	return nil
}

func (s *FrameSigner) signForStrategy(frame *message.Frame, strategy SignStrategy) {
	switch strategy {
	case SignStrategySign:
		if s.shouldSign(frame) {
			s.SignFrame(frame)
		}
	case SignStrategyReSign:
		if s.shouldReSign(frame) {
			s.SignFrame(frame)
		}
	case SignStrategyStrip:
		frame.RemoveSignature()
	}
}

func (s *FrameSigner) shouldSign(frame *message.Frame) bool {
	sig := frame.Signature()
	if sig == nil {
		return true
	}
	_, known := s.links[sig.LinkID]
	return !known && (s.unknownLinks == SignStrategySign || s.unknownLinks == SignStrategyReSign)
}

func (s *FrameSigner) shouldReSign(frame *message.Frame) bool {
	sig := frame.Signature()
	if sig == nil {
		return true
	}
	if _, known := s.links[sig.LinkID]; !known {
		return s.unknownLinks == SignStrategySign || s.unknownLinks == SignStrategyReSign
	}
	return true
}

// SignFrame signs frame in place using the main link id and key. No-op on
// MAVLink 1 frames, which carry no signature block.
func (s *FrameSigner) SignFrame(frame *message.Frame) {
	ts := s.lastTS.Next()
	mac := message.ComputeMAC(s.Key(), frame.BytesForSigning(), s.linkID, ts)
	frame.SetSignature(message.Signature{LinkID: s.linkID, Timestamp: ts, MAC: mac})
}

// HasValidSignature reports whether frame carries a signature this signer
// can verify, searching its known links by the frame's signed link id and
// falling back to the unknown-links strategy otherwise.
func (s *FrameSigner) HasValidSignature(frame *message.Frame) bool {
	sig := frame.Signature()
	if sig == nil {
		return false
	}
	if key, known := s.links[sig.LinkID]; known {
		return message.VerifyMAC(key, frame.BytesForSigning(), sig.LinkID, sig.Timestamp, sig.MAC)
	}
	switch s.unknownLinks {
	case SignStrategySign, SignStrategyReSign:
		return message.VerifyMAC(s.Key(), frame.BytesForSigning(), sig.LinkID, sig.Timestamp, sig.MAC)
	case SignStrategyStrict:
		return false
	default: // Proxy, Strip
		return true
	}
}
