package control

import (
	"fmt"
	"hash/adler32"

	"github.com/fxamacker/cbor/v2"
)

// payloadV3 is the legacy V3 on-disk payload shape.
type payloadV3 struct {
	DictEndPoff   int64 `cbor:"dep"`
	SuffixEndPoff int64 `cbor:"sep"`
	Checksum      int64 `cbor:"cs"`

	// Status is either "no_gc_yet" or "gced"; when "gced", ChunkStartIdx
	// carries the chunk-start-idx, smuggled through the legacy
	// generation field per the upgrade rule in spec §4.6.
	StatusGced    bool  `cbor:"sg"`
	ChunkStartIdx int   `cbor:"csi,omitempty"`
}

// payloadV4 is the legacy V4 on-disk payload shape, which already shares
// every field in common with V5 except UpgradedFrom.
type payloadV4 struct {
	DictEndPoff         int64  `cbor:"dep"`
	AppendableChunkPoff int64  `cbor:"acp"`
	Checksum            int64  `cbor:"cs"`
	ChunkStartIdx       int    `cbor:"csi"`
	ChunkNum            int    `cbor:"cn"`
	VolumeNum           int    `cbor:"vn"`
	Status              Status `cbor:"st"`
}

func checksumOfV3(p payloadV3) (int64, error) {
	p.Checksum = 0
	mode, err := canonicalMode()
	if err != nil {
		return 0, err
	}
	encoded, err := mode.Marshal(p)
	if err != nil {
		return 0, fmt.Errorf("could not encode v3 payload: %w", err)
	}
	return int64(adler32.Checksum(encoded)), nil
}

func checksumOfV4(p payloadV4) (int64, error) {
	p.Checksum = 0
	mode, err := canonicalMode()
	if err != nil {
		return 0, err
	}
	encoded, err := mode.Marshal(p)
	if err != nil {
		return 0, fmt.Errorf("could not encode v4 payload: %w", err)
	}
	return int64(adler32.Checksum(encoded)), nil
}

func decodeV3(body []byte) (payloadV3, error) {
	var p payloadV3
	mode, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return payloadV3{}, fmt.Errorf("could not build cbor decoder: %w", err)
	}
	if err := mode.Unmarshal(body, &p); err != nil {
		return payloadV3{}, fmt.Errorf("%w: could not decode v3 payload: %v", ErrCorruptedControlFile, err)
	}
	want, err := checksumOfV3(p)
	if err != nil {
		return payloadV3{}, err
	}
	if want != p.Checksum {
		return payloadV3{}, ErrCorruptedControlFile
	}
	return p, nil
}

func decodeV4(body []byte) (payloadV4, error) {
	var p payloadV4
	mode, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return payloadV4{}, fmt.Errorf("could not build cbor decoder: %w", err)
	}
	if err := mode.Unmarshal(body, &p); err != nil {
		return payloadV4{}, fmt.Errorf("%w: could not decode v4 payload: %v", ErrCorruptedControlFile, err)
	}
	want, err := checksumOfV4(p)
	if err != nil {
		return payloadV4{}, err
	}
	if want != p.Checksum {
		return payloadV4{}, ErrCorruptedControlFile
	}
	return p, nil
}

// upgradeV3 translates a legacy V3 payload into its V5 form, per spec
// §4.6: dict_end_poff carries over, appendable_chunk_poff inherits
// suffix_end_poff, chunk_num resets to 1, and the embedded GC status is
// translated into the V5 Status shape.
func upgradeV3(v3 payloadV3) Payload {
	status := Status{Kind: StatusNoGcYet}
	if v3.StatusGced {
		status = Status{Kind: StatusGced, Generation: int64(v3.ChunkStartIdx)}
	}
	return Payload{
		DictEndPoff:         v3.DictEndPoff,
		AppendableChunkPoff: v3.SuffixEndPoff,
		ChunkNum:            1,
		Status:              status,
		UpgradedFrom:        3,
	}
}

// upgradeV4 translates a legacy V4 payload into its V5 form by copying
// every shared field across, per spec §4.6.
func upgradeV4(v4 payloadV4) Payload {
	return Payload{
		DictEndPoff:         v4.DictEndPoff,
		AppendableChunkPoff: v4.AppendableChunkPoff,
		ChunkStartIdx:       v4.ChunkStartIdx,
		ChunkNum:            v4.ChunkNum,
		VolumeNum:           v4.VolumeNum,
		Status:              v4.Status,
		UpgradedFrom:        4,
	}
}
