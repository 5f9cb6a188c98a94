// Package save implements the kernel's "DMSG" binary save container: a
// little-endian, versioned, tagged-chunk container. This
// package owns only the generic container framing (header, chunk framing,
// identity TLV) — it treats every chunk payload as opaque bytes. The kernel
// package owns the per-subsystem codecs that turn domain state into chunk
// payloads and back.
package save

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/dominium-sim/simkernel/infrastructure/errors"
)

// Magic is the fixed 4-byte container magic.
var Magic = [4]byte{'D', 'M', 'S', 'G'}

// Version is the container format version this build writes and reads.
// The format requires version *equality*: any other value on load is a migration
// gate, never a silent up/downgrade.
const Version uint32 = 6

// EndianSentinel is written verbatim so a loader can detect a
// byte-order mismatch between writer and reader platforms.
const EndianSentinel uint32 = 0x0000FFFE

// Header is the fixed-layout prefix of a DMSG container.
type Header struct {
	Version        uint32
	EndianSentinel uint32
	UPS            uint32
	TickIndex      uint64
	Seed           uint64
	FeatureEpoch   uint32
}

// Chunk is one tagged section of the container body.
type Chunk struct {
	Tag     [4]byte
	Version uint32
	Payload []byte
}

// Tag constants for the mandatory v6 chunk set.
var (
	TagIdentity   = [4]byte{'I', 'D', 'E', 'N'}
	TagCore       = [4]byte{'C', 'O', 'R', 'E'}
	TagOrbit      = [4]byte{'O', 'R', 'B', 'T'}
	TagSovereign  = [4]byte{'S', 'O', 'V', 'R'}
	TagMedia      = [4]byte{'M', 'E', 'D', 'I'}
	TagWeather    = [4]byte{'W', 'E', 'A', 'T'}
	TagAeroProps  = [4]byte{'A', 'E', 'R', 'P'}
	TagAeroState  = [4]byte{'A', 'E', 'R', 'S'}
	TagConstruct  = [4]byte{'C', 'N', 'S', 'T'}
	TagStations   = [4]byte{'S', 'T', 'A', 'T'}
	TagRoutes     = [4]byte{'R', 'O', 'U', 'T'}
	TagTransfers  = [4]byte{'T', 'R', 'A', 'N'}
	TagProduction = [4]byte{'P', 'R', 'O', 'D'}
	TagMacroEcon  = [4]byte{'M', 'E', 'C', 'O'}
	TagMacroEvent = [4]byte{'M', 'E', 'V', 'T'}
	TagFactions   = [4]byte{'F', 'A', 'C', 'T'}
	TagAIScheduler = [4]byte{'A', 'I', 'S', 'C'}
	TagRNG        = [4]byte{'R', 'N', 'G', ' '}
)

// MandatoryTags lists every chunk that must be present on load, in no
// particular order (presence is checked as a set).
var MandatoryTags = [][4]byte{
	TagIdentity, TagCore, TagOrbit, TagSovereign, TagMedia, TagWeather,
	TagAeroProps, TagAeroState, TagConstruct, TagStations, TagRoutes,
	TagTransfers, TagProduction, TagMacroEcon, TagMacroEvent, TagFactions,
	TagAIScheduler, TagRNG,
}

// Write serializes header, an opaque identity content-TLV blob, and chunks
// to w in DMSG wire order.
func Write(w io.Writer, header Header, contentTLV []byte, chunks []Chunk) error {
	if err := binary.Write(w, binary.LittleEndian, Magic); err != nil {
		return err
	}
	fields := []interface{}{
		header.Version, header.EndianSentinel, header.UPS,
		header.TickIndex, header.Seed, header.FeatureEpoch,
		uint32(len(contentTLV)),
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	if _, err := w.Write(contentTLV); err != nil {
		return err
	}
	for _, c := range chunks {
		if err := binary.Write(w, binary.LittleEndian, c.Tag); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, c.Version); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(c.Payload))); err != nil {
			return err
		}
		if _, err := w.Write(c.Payload); err != nil {
			return err
		}
	}
	return nil
}

// Read parses a DMSG container, validating magic, version equality, and
// endian sentinel equality. It does not validate chunk contents or
// mandatory-chunk presence — callers must run RequireMandatoryChunks (or their own
// mandatory-set check) after Read.
func Read(r io.Reader) (Header, []byte, []Chunk, error) {
	var magic [4]byte
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return Header{}, nil, nil, errors.Wrap(errors.Format, "failed to read container magic", err)
	}
	if magic != Magic {
		return Header{}, nil, nil, errors.New(errors.Format, "bad container magic")
	}

	var header Header
	var contentLen uint32
	for _, f := range []interface{}{
		&header.Version, &header.EndianSentinel, &header.UPS,
		&header.TickIndex, &header.Seed, &header.FeatureEpoch, &contentLen,
	} {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return Header{}, nil, nil, errors.Wrap(errors.Format, "failed to read container header", err)
		}
	}

	if header.Version != Version {
		return header, nil, nil, errors.New(errors.Migration, "container version mismatch").
			WithDetails("found", header.Version).WithDetails("expected", Version)
	}
	if header.EndianSentinel != EndianSentinel {
		return header, nil, nil, errors.New(errors.Format, "endian sentinel mismatch")
	}

	contentTLV := make([]byte, contentLen)
	if _, err := io.ReadFull(r, contentTLV); err != nil {
		return header, nil, nil, errors.Wrap(errors.Format, "failed to read content TLV", err)
	}

	var chunks []Chunk
	for {
		var tag [4]byte
		if err := binary.Read(r, binary.LittleEndian, &tag); err != nil {
			if err == io.EOF {
				break
			}
			return header, contentTLV, chunks, errors.Wrap(errors.Format, "failed to read chunk tag", err)
		}
		var version, size uint32
		if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
			return header, contentTLV, chunks, errors.Wrap(errors.Format, "failed to read chunk version", err)
		}
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return header, contentTLV, chunks, errors.Wrap(errors.Format, "failed to read chunk size", err)
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			return header, contentTLV, chunks, errors.Wrap(errors.Format, "failed to read chunk payload", err)
		}
		chunks = append(chunks, Chunk{Tag: tag, Version: version, Payload: payload})
	}

	return header, contentTLV, chunks, nil
}

// MaxChunkVersion is the highest per-chunk version this build understands.
// A chunk carrying a greater version needs a migration step, not a decode
// attempt.
const MaxChunkVersion uint32 = 1

// RequireMandatoryChunks fails with Format if any tag in MandatoryTags is
// absent from chunks, if any tag appears more than once, or if a chunk
// carries a tag outside the known set — an unknown chunk means the
// container was written by a build whose state this one cannot fully
// restore, so the whole load is rejected rather than silently dropped.
func RequireMandatoryChunks(chunks []Chunk) error {
	known := make(map[[4]byte]bool, len(MandatoryTags))
	for _, t := range MandatoryTags {
		known[t] = true
	}
	seen := make(map[[4]byte]int, len(chunks))
	for _, c := range chunks {
		if !known[c.Tag] {
			return errors.New(errors.Format, "unknown chunk").WithDetails("tag", string(c.Tag[:]))
		}
		seen[c.Tag]++
	}
	for _, want := range MandatoryTags {
		switch seen[want] {
		case 0:
			return errors.New(errors.Format, "missing mandatory chunk").WithDetails("tag", string(want[:]))
		case 1:
		default:
			return errors.New(errors.Format, "duplicate chunk").WithDetails("tag", string(want[:]))
		}
	}
	return nil
}

// RequireChunkVersions fails with Migration if any chunk's version is newer
// than MaxChunkVersion.
func RequireChunkVersions(chunks []Chunk) error {
	for _, c := range chunks {
		if c.Version > MaxChunkVersion {
			return errors.New(errors.Migration, "chunk version newer than supported").
				WithDetails("tag", string(c.Tag[:])).WithDetails("found", c.Version).WithDetails("supported", MaxChunkVersion)
		}
	}
	return nil
}

// Find returns the payload of the first chunk with the given tag.
func Find(chunks []Chunk, tag [4]byte) ([]byte, uint32, bool) {
	for _, c := range chunks {
		if c.Tag == tag {
			return c.Payload, c.Version, true
		}
	}
	return nil, 0, false
}

// Identity TLV tag constants.
const (
	idSchemaVersion uint32 = 1
	idInstanceID    uint32 = 2
	idRunID         uint32 = 3
	idManifestHash  uint32 = 4
	idContentHash   uint32 = 5
)

// Identity carries the save container's identity chunk contents.
type Identity struct {
	SchemaVersion uint32
	InstanceID    uuid.UUID
	RunID         uint64
	ManifestHash  []byte
	ContentHash   uint64
}

// NewInstanceID generates a fresh random instance id for a new save lineage.
func NewInstanceID() uuid.UUID { return uuid.New() }

// ManifestHash computes the blake2b-256 digest of manifest bytes — a
// distinct algorithm from the rolling FNV-1a world hash; the identity tag
// only carries opaque digest bytes, so the algorithm is this package's choice.
func ManifestHash(manifest []byte) ([]byte, error) {
	sum := blake2b.Sum256(manifest)
	return sum[:], nil
}

// EncodeIdentity serializes id as a tag/length/value stream.
func EncodeIdentity(id Identity) []byte {
	var buf bytes.Buffer
	writeTLV(&buf, idSchemaVersion, u32Bytes(id.SchemaVersion))
	writeTLV(&buf, idInstanceID, id.InstanceID[:])
	writeTLV(&buf, idRunID, u64Bytes(id.RunID))
	writeTLV(&buf, idManifestHash, id.ManifestHash)
	writeTLV(&buf, idContentHash, u64Bytes(id.ContentHash))
	return buf.Bytes()
}

// DecodeIdentity parses an identity TLV stream. Missing ContentHash or a
// schema version that does not match wantSchemaVersion fails with Format.
func DecodeIdentity(data []byte, wantSchemaVersion uint32) (Identity, error) {
	var id Identity
	var haveContentHash bool

	r := bytes.NewReader(data)
	for r.Len() > 0 {
		tag, value, err := readTLV(r)
		if err != nil {
			return Identity{}, errors.Wrap(errors.Format, "malformed identity TLV", err)
		}
		switch tag {
		case idSchemaVersion:
			id.SchemaVersion = binary.LittleEndian.Uint32(value)
		case idInstanceID:
			copy(id.InstanceID[:], value)
		case idRunID:
			id.RunID = binary.LittleEndian.Uint64(value)
		case idManifestHash:
			id.ManifestHash = append([]byte(nil), value...)
		case idContentHash:
			id.ContentHash = binary.LittleEndian.Uint64(value)
			haveContentHash = true
		}
	}

	if !haveContentHash {
		return Identity{}, errors.New(errors.Format, "identity TLV missing content hash")
	}
	if id.SchemaVersion != wantSchemaVersion {
		return Identity{}, errors.New(errors.Format, "identity schema version mismatch").
			WithDetails("found", id.SchemaVersion).WithDetails("expected", wantSchemaVersion)
	}
	return id, nil
}

func writeTLV(buf *bytes.Buffer, tag uint32, value []byte) {
	_ = binary.Write(buf, binary.LittleEndian, tag)
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(value)))
	buf.Write(value)
}

func readTLV(r *bytes.Reader) (uint32, []byte, error) {
	var tag, length uint32
	if err := binary.Read(r, binary.LittleEndian, &tag); err != nil {
		return 0, nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return 0, nil, err
	}
	value := make([]byte, length)
	if _, err := io.ReadFull(r, value); err != nil {
		return 0, nil, err
	}
	return tag, value, nil
}

func u32Bytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func u64Bytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// ErrFeatureEpochUnsupported builds the Migration error for an
// unsupported feature epoch.
func ErrFeatureEpochUnsupported(found, supported uint32) error {
	return errors.New(errors.Migration, fmt.Sprintf("feature epoch %d unsupported (runtime supports %d)", found, supported))
}
