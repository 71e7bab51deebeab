package message

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// FrameVersion discriminates the MAVLink wire format a Frame was encoded
// with. It is distinct from gomavlib's node-level NodeVersion, which also
// covers the "versionless" (accept either) negotiation mode.
type FrameVersion uint8

const (
	V1 FrameVersion = 1
	V2 FrameVersion = 2
)

func (v FrameVersion) String() string {
	switch v {
	case V1:
		return "v1"
	case V2:
		return "v2"
	default:
		return "unknown"
	}
}

const (
	magicV1 = 0xfe
	magicV2 = 0xfd

	headerLenV1 = 6
	headerLenV2 = 10

	// IFlagSigned marks a MAVLink 2 frame as carrying a signature block.
	IFlagSigned byte = 0x01
)

var (
	// ErrTooShort is returned when a byte slice is too small to hold a
	// frame of the claimed length.
	ErrTooShort = errors.New("gomavlib/message: frame too short")
	// ErrBadMagic is returned when the leading magic byte matches neither
	// MAVLink 1 nor MAVLink 2.
	ErrBadMagic = errors.New("gomavlib/message: bad magic byte")
	// ErrBadCRC reports a frame whose checksum does not match its payload.
	// Decode does not return it: it has no crc-extra byte to check the
	// checksum against.
	ErrBadCRC = errors.New("gomavlib/message: bad checksum")
)

// Frame is a single MAVLink packet, signed or unsigned, v1 or v2.
type Frame struct {
	version       FrameVersion
	sequence      uint8
	systemID      uint8
	componentID   uint8
	messageID     uint32
	incompatFlags byte
	compatFlags   byte
	payload       []byte
	crc           uint16
	signature     *Signature
}

// NewFrame builds an unsigned frame with the given fields.
func NewFrame(version FrameVersion, sequence, systemID, componentID uint8, messageID uint32, payload []byte) *Frame {
	return &Frame{
		version:     version,
		sequence:    sequence,
		systemID:    systemID,
		componentID: componentID,
		messageID:   messageID,
		payload:     payload,
	}
}

// Clone returns a deep copy so callers (the signer, the broadcast bus) can
// mutate their own copy without racing others.
func (f *Frame) Clone() *Frame {
	c := *f
	c.payload = append([]byte(nil), f.payload...)
	if f.signature != nil {
		sig := *f.signature
		c.signature = &sig
	}
	return &c
}

func (f *Frame) Version() FrameVersion   { return f.version }
func (f *Frame) Sequence() uint8         { return f.sequence }
func (f *Frame) SystemID() uint8         { return f.systemID }
func (f *Frame) ComponentID() uint8      { return f.componentID }
func (f *Frame) MessageID() uint32       { return f.messageID }
func (f *Frame) Payload() []byte         { return f.payload }
func (f *Frame) CRC() uint16             { return f.crc }
func (f *Frame) IncompatFlags() byte     { return f.incompatFlags }
func (f *Frame) CompatFlags() byte       { return f.compatFlags }
func (f *Frame) SetSequence(seq uint8)   { f.sequence = seq }
func (f *Frame) SetIncompatFlags(v byte) { f.incompatFlags = v }
func (f *Frame) SetCompatFlags(v byte)   { f.compatFlags = v }

// IsSigned reports whether the frame carries a signature block.
func (f *Frame) IsSigned() bool {
	return f.signature != nil
}

// Signature returns the frame's signature block, or nil if unsigned.
func (f *Frame) Signature() *Signature {
	return f.signature
}

// SetSignature attaches sig to the frame and sets the v2 signed incompat
// flag. No-op on v1 frames, which have no signature block.
func (f *Frame) SetSignature(sig Signature) {
	if f.version != V2 {
		return
	}
	f.signature = &sig
	f.incompatFlags |= IFlagSigned
}

// RemoveSignature strips any signature block and clears the signed flag.
func (f *Frame) RemoveSignature() {
	f.signature = nil
	f.incompatFlags &^= IFlagSigned
}

// bodyForCRC returns header (without magic/crc) + payload, the region the
// X.25 checksum runs over.
func (f *Frame) bodyForCRC() []byte {
	var buf []byte
	switch f.version {
	case V1:
		buf = make([]byte, 0, 5+len(f.payload))
		buf = append(buf, byte(len(f.payload)), f.sequence, f.systemID, f.componentID, byte(f.messageID))
	default:
		buf = make([]byte, 0, 9+len(f.payload))
		buf = append(buf, byte(len(f.payload)), f.incompatFlags, f.compatFlags, f.sequence, f.systemID, f.componentID)
		buf = append(buf, byte(f.messageID), byte(f.messageID>>8), byte(f.messageID>>16))
	}
	buf = append(buf, f.payload...)
	return buf
}

// ComputeCRC recomputes and stores the frame's checksum given the dialect's
// crcExtra byte for this message ID.
func (f *Frame) ComputeCRC(crcExtra byte) {
	f.crc = X25Checksum(f.bodyForCRC(), crcExtra)
}

// VerifyCRC reports whether the frame's stored checksum matches its body
// given the dialect's crcExtra byte for this message ID.
func (f *Frame) VerifyCRC(crcExtra byte) bool {
	return f.crc == X25Checksum(f.bodyForCRC(), crcExtra)
}

// Encode serializes the frame to its wire representation.
func (f *Frame) Encode() []byte {
	switch f.version {
	case V1:
		return f.encodeV1()
	default:
		return f.encodeV2()
	}
}

func (f *Frame) encodeV1() []byte {
	out := make([]byte, 0, headerLenV1+1+len(f.payload)+2)
	out = append(out, magicV1, byte(len(f.payload)), f.sequence, f.systemID, f.componentID, byte(f.messageID))
	out = append(out, f.payload...)
	out = binary.LittleEndian.AppendUint16(out, f.crc)
	return out
}

func (f *Frame) encodeV2() []byte {
	out := make([]byte, 0, headerLenV2+len(f.payload)+2+SignatureLen)
	out = append(out, magicV2, byte(len(f.payload)), f.incompatFlags, f.compatFlags, f.sequence, f.systemID, f.componentID)
	out = append(out, byte(f.messageID), byte(f.messageID>>8), byte(f.messageID>>16))
	out = append(out, f.payload...)
	out = binary.LittleEndian.AppendUint16(out, f.crc)
	if f.signature != nil {
		out = append(out, f.signature.Encode()...)
	}
	return out
}

// BytesForSigning returns the wire bytes a MAVLink 2 signature's MAC is
// computed over: magic through CRC, excluding any signature block. The
// signed incompat flag is always set in these bytes, as it is on the wire
// once the frame carries a signature, so signing an unsigned frame and
// verifying it afterwards see the same bytes.
func (f *Frame) BytesForSigning() []byte {
	out := make([]byte, 0, headerLenV2+len(f.payload)+2)
	out = append(out, magicV2, byte(len(f.payload)), f.incompatFlags|IFlagSigned, f.compatFlags, f.sequence, f.systemID, f.componentID)
	out = append(out, byte(f.messageID), byte(f.messageID>>8), byte(f.messageID>>16))
	out = append(out, f.payload...)
	out = binary.LittleEndian.AppendUint16(out, f.crc)
	return out
}

// Decode parses a single frame from the front of data, returning the frame
// and the number of bytes consumed. It does not verify the X.25 CRC against
// a dialect's crc-extra byte: Decode has no dialect context, only the bytes
// on the wire. VerifyCRC lets a caller that does have one (KnownDialects,
// reached once a message id resolves) check it explicitly; codec-level
// validation is out of scope here per spec §1, so a corrupt payload still
// surfaces as a well-formed Frame rather than a decode error.
func Decode(data []byte) (*Frame, int, error) {
	if len(data) == 0 {
		return nil, 0, ErrTooShort
	}
	switch data[0] {
	case magicV1:
		return decodeV1(data)
	case magicV2:
		return decodeV2(data)
	default:
		return nil, 0, ErrBadMagic
	}
}

func decodeV1(data []byte) (*Frame, int, error) {
	if len(data) < headerLenV1+2 {
		return nil, 0, ErrTooShort
	}
	payloadLen := int(data[1])
	total := headerLenV1 + payloadLen + 2
	if len(data) < total {
		return nil, 0, ErrTooShort
	}
	f := &Frame{
		version:     V1,
		sequence:    data[2],
		systemID:    data[3],
		componentID: data[4],
		messageID:   uint32(data[5]),
		payload:     append([]byte(nil), data[6:6+payloadLen]...),
		crc:         binary.LittleEndian.Uint16(data[6+payloadLen : total]),
	}
	return f, total, nil
}

func decodeV2(data []byte) (*Frame, int, error) {
	if len(data) < headerLenV2+2 {
		return nil, 0, ErrTooShort
	}
	payloadLen := int(data[1])
	incompat := data[2]
	total := headerLenV2 + payloadLen + 2
	if incompat&IFlagSigned != 0 {
		total += SignatureLen
	}
	if len(data) < total {
		return nil, 0, ErrTooShort
	}
	messageID := uint32(data[7]) | uint32(data[8])<<8 | uint32(data[9])<<16
	f := &Frame{
		version:       V2,
		incompatFlags: incompat,
		compatFlags:   data[3],
		sequence:      data[4],
		systemID:      data[5],
		componentID:   data[6],
		messageID:     messageID,
		payload:       append([]byte(nil), data[10:10+payloadLen]...),
	}
	crcOffset := 10 + payloadLen
	f.crc = binary.LittleEndian.Uint16(data[crcOffset : crcOffset+2])
	if incompat&IFlagSigned != 0 {
		sig, err := DecodeSignature(data[crcOffset+2 : total])
		if err != nil {
			return nil, 0, fmt.Errorf("gomavlib/message: decode signature: %w", err)
		}
		f.signature = &sig
	}
	return f, total, nil
}
