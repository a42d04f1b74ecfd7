// Package control implements the tiny, atomically-rewritten control file
// that describes a pack's current layout (spec §4.6): chunks, offsets, GC
// generation, protected by an Adler-32 checksum and versioned V3/V4/V5
// payloads with upgrade-on-read.
package control

import (
	"fmt"
	"hash/adler32"

	"github.com/fxamacker/cbor/v2"
)

// MaxPageSize bounds a control file to one filesystem page, so a rewrite is
// a single atomic write.
const MaxPageSize = 4096

// tag is the fixed 8-byte ASCII version tag at the start of the file.
type tag [8]byte

var (
	tagV3 = tag{'I', 'R', 'M', 'N', 'C', 'T', 'L', '3'}
	tagV4 = tag{'I', 'R', 'M', 'N', 'C', 'T', 'L', '4'}
	tagV5 = tag{'I', 'R', 'M', 'N', 'C', 'T', 'L', '5'}
)

// UnknownMajorPackVersion is returned when the 8-byte version tag does not
// match any known control file version.
type UnknownMajorPackVersion struct {
	Tag string
}

func (e UnknownMajorPackVersion) Error() string {
	return fmt.Sprintf("unknown major pack version tag %q", e.Tag)
}

// ErrCorruptedControlFile is returned when a control file payload cannot be
// decoded, or when its Adler-32 checksum does not match its recorded value.
var ErrCorruptedControlFile = fmt.Errorf("corrupted control file")

// StatusKind tags the variant of Status carried by a payload.
type StatusKind uint8

const (
	// StatusNoGcYet means no GC cycle has ever run against this pack.
	StatusNoGcYet StatusKind = iota
	// StatusUsedNonMinimalIndexingStrategy flags a pack built with a
	// non-minimal indexing strategy.
	StatusUsedNonMinimalIndexingStrategy
	// StatusFromV1V2PostUpgrade marks a pack upgraded from the V1/V2 format
	// family, carrying the original entry offset.
	StatusFromV1V2PostUpgrade
	// StatusGced marks a pack that has undergone at least one GC cycle.
	StatusGced
)

// Status is the GC-relevant status carried by a control file payload.
type Status struct {
	Kind StatusKind `cbor:"k"`

	// Populated when Kind == StatusFromV1V2PostUpgrade.
	EntryOffset int64 `cbor:"eo,omitempty"`

	// Populated when Kind == StatusGced.
	SuffixStartOffset   int64 `cbor:"sso,omitempty"`
	Generation          int64 `cbor:"g,omitempty"`
	LatestGCTargetOffset int64 `cbor:"lgto,omitempty"`
	SuffixDeadBytes     int64 `cbor:"sdb,omitempty"`
}

// Payload is the V5 control file payload, the current on-disk target.
type Payload struct {
	DictEndPoff         int64  `cbor:"dep"`
	AppendableChunkPoff int64  `cbor:"acp"`
	Checksum            int64  `cbor:"cs"`
	ChunkStartIdx       int    `cbor:"csi"`
	ChunkNum            int    `cbor:"cn"`
	VolumeNum           int    `cbor:"vn"`
	Status              Status `cbor:"st"`

	// UpgradedFrom records the source major version when this payload was
	// produced by upgrading a V3 or V4 file; zero means the file was
	// natively V5.
	UpgradedFrom int `cbor:"uf,omitempty"`
}

func canonicalMode() (cbor.EncMode, error) {
	return cbor.CanonicalEncOptions().EncMode()
}

// checksumOf computes the Adler-32 checksum of p's canonical CBOR encoding
// with the Checksum field temporarily zeroed, per spec §4.6.
func checksumOf(p Payload) (int64, []byte, error) {
	p.Checksum = 0
	mode, err := canonicalMode()
	if err != nil {
		return 0, nil, fmt.Errorf("could not build cbor encoder: %w", err)
	}
	encoded, err := mode.Marshal(p)
	if err != nil {
		return 0, nil, fmt.Errorf("could not encode payload: %w", err)
	}
	return int64(adler32.Checksum(encoded)), encoded, nil
}

// Encode serialises p into the V5 on-disk byte layout: an 8-byte version
// tag followed by the checksummed CBOR payload. The checksum field is
// computed and filled in before the final encoding, so the returned bytes
// always carry a valid checksum regardless of what p.Checksum was set to.
func Encode(p Payload) ([]byte, error) {
	sum, _, err := checksumOf(p)
	if err != nil {
		return nil, err
	}
	p.Checksum = sum

	mode, err := canonicalMode()
	if err != nil {
		return nil, fmt.Errorf("could not build cbor encoder: %w", err)
	}
	body, err := mode.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("could not encode payload: %w", err)
	}

	buf := make([]byte, 0, len(tagV5)+len(body))
	buf = append(buf, tagV5[:]...)
	buf = append(buf, body...)
	if len(buf) > MaxPageSize {
		return nil, fmt.Errorf("encoded control file exceeds page size (have: %d, want: <= %d)", len(buf), MaxPageSize)
	}
	return buf, nil
}

// Decode parses raw control-file bytes into a V5 payload, upgrading V3/V4
// payloads on the fly and validating the Adler-32 checksum of whichever
// format was found on disk.
func Decode(raw []byte) (Payload, error) {
	if len(raw) < 8 {
		return Payload{}, UnknownMajorPackVersion{Tag: string(raw)}
	}
	var t tag
	copy(t[:], raw[:8])
	body := raw[8:]

	switch t {
	case tagV5:
		return decodeV5(body)
	case tagV4:
		v4, err := decodeV4(body)
		if err != nil {
			return Payload{}, err
		}
		return upgradeV4(v4), nil
	case tagV3:
		v3, err := decodeV3(body)
		if err != nil {
			return Payload{}, err
		}
		return upgradeV3(v3), nil
	default:
		return Payload{}, UnknownMajorPackVersion{Tag: string(t[:])}
	}
}

func decodeV5(body []byte) (Payload, error) {
	var p Payload
	mode, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return Payload{}, fmt.Errorf("could not build cbor decoder: %w", err)
	}
	if err := mode.Unmarshal(body, &p); err != nil {
		return Payload{}, fmt.Errorf("%w: could not decode v5 payload: %v", ErrCorruptedControlFile, err)
	}

	wantSum, _, err := checksumOf(p)
	if err != nil {
		return Payload{}, err
	}
	if wantSum != p.Checksum {
		return Payload{}, ErrCorruptedControlFile
	}
	return p, nil
}
