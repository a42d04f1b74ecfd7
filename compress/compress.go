// Copyright 2021 Optakt Labs OÜ
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

// Package compress implements the Compress layout (spec §4.5): a
// space-optimised encoding of a bin.Bin that indirects short step names
// through an external dictionary and in-pack keys through their pack
// offset, then frames the result as canonical CBOR wrapped in zstandard.
package compress

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/irmin-go/pack/bin"
	"github.com/irmin-go/pack/hash"
	"github.com/irmin-go/pack/step"
)

// minIndirectLen is the minimum binary length a step must have before it is
// considered for dictionary indirection, per spec §4.5.
const minIndirectLen = 4

// Dict is the external string<->id collaborator used to shrink repeated
// step names to a 16-bit index. The codec degrades cleanly to Direct
// encoding when Dict is nil or misses.
type Dict interface {
	Index(name []byte) (id uint16, ok bool)
	String(id uint16) (name []byte, ok bool)
}

// Offsets is the external collaborator that knows the in-pack byte offset
// of a previously-appended key, and can reverse an offset back to the hash
// and length that were appended there. The codec degrades cleanly to Direct
// hash encoding when Offsets is nil or misses.
type Offsets interface {
	OffsetOf(key hash.Key) (offset uint64, ok bool)
	Resolve(offset uint64) (h hash.Hash, length uint32, ok bool)
}

// Codec encodes and decodes bin.Bin values using canonical CBOR framing
// wrapped in a zstandard stream, mirroring the teacher's codec/zbor.Codec.
type Codec struct {
	encoder cbor.EncMode
	decoder cbor.DecMode

	compressor   *zstd.Encoder
	decompressor *zstd.Decoder
}

// Option configures a Codec at construction time.
type Option func(*zstdConfig)

type zstdConfig struct {
	dict []byte
}

// WithDictionary seeds the zstd stream with a pre-trained dictionary, the
// way the teacher's codec/zbor.Codec seeds each of its per-kind streams.
func WithDictionary(dict []byte) Option {
	return func(c *zstdConfig) {
		c.dict = dict
	}
}

// NewCodec builds a Codec. As with the teacher's codec, construction only
// fails on a programming error in the fixed option set, so callers are
// expected to treat a non-nil error as fatal at startup.
func NewCodec(opts ...Option) (*Codec, error) {
	var cfg zstdConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	encOptions := cbor.CanonicalEncOptions()
	encoder, err := encOptions.EncMode()
	if err != nil {
		return nil, fmt.Errorf("could not build cbor encoder: %w", err)
	}

	decOptions := cbor.DecOptions{ExtraReturnErrors: cbor.ExtraDecErrorUnknownField}
	decoder, err := decOptions.DecMode()
	if err != nil {
		return nil, fmt.Errorf("could not build cbor decoder: %w", err)
	}

	var encOpts []zstd.EOption
	var decOpts []zstd.DOption
	if len(cfg.dict) > 0 {
		encOpts = append(encOpts, zstd.WithEncoderDict(cfg.dict))
		decOpts = append(decOpts, zstd.WithDecoderDicts(cfg.dict))
	}

	compressor, err := zstd.NewWriter(nil, encOpts...)
	if err != nil {
		return nil, fmt.Errorf("could not build zstd compressor: %w", err)
	}
	decompressor, err := zstd.NewReader(nil, decOpts...)
	if err != nil {
		return nil, fmt.Errorf("could not build zstd decompressor: %w", err)
	}

	c := Codec{
		encoder:      encoder,
		decoder:      decoder,
		compressor:   compressor,
		decompressor: decompressor,
	}

	return &c, nil
}

// wire mirrors bin.Bin but with steps/hashes indirected through Dict and
// Offsets wherever possible. Field names are intentionally short: they are
// serialised by CBOR and every byte saved here is a byte saved on disk.
type wireName struct {
	Indirect bool   `cbor:"i"`
	ID       uint16 `cbor:"d,omitempty"`
	Direct   []byte `cbor:"s,omitempty"`
}

type wireAddress struct {
	Indirect bool   `cbor:"i"`
	Offset   uint64 `cbor:"o,omitempty"`
	Direct   []byte `cbor:"h,omitempty"`
}

type wireValue struct {
	Node bool        `cbor:"n"`
	Addr wireAddress `cbor:"a"`
	Meta bool        `cbor:"m"`
	Perm uint16      `cbor:"p,omitempty"`
}

type wireBinding struct {
	Name  wireName  `cbor:"n"`
	Value wireValue `cbor:"v"`
}

type wirePtr struct {
	Present bool        `cbor:"p"`
	Addr    wireAddress `cbor:"a"`
	Length  int         `cbor:"l,omitempty"`
}

type wireBin struct {
	Tree     bool          `cbor:"t"`
	Bindings []wireBinding `cbor:"b,omitempty"`
	Depth    int           `cbor:"d,omitempty"`
	Length   int           `cbor:"l,omitempty"`
	Entries  []wirePtr     `cbor:"e,omitempty"`
}

// VariantName returns the spec's naming for a value variant, e.g.
// "contents-id" or "node-dd-x", purely for logging/debugging purposes.
func VariantName(isNode bool, nameIndirect, addrIndirect, explicitMeta bool) string {
	prefix := "contents"
	if isNode {
		prefix = "node"
	}
	n := "d"
	if nameIndirect {
		n = "i"
	}
	a := "d"
	if addrIndirect {
		a = "i"
	}
	variant := fmt.Sprintf("%s-%s%s", prefix, n, a)
	if explicitMeta {
		variant += "-x"
	}
	return variant
}

// Encode compresses a Bin into bytes, consulting dict and offsets to shrink
// step names and hashes wherever they have a usable indirection. Either
// collaborator may be nil.
func (c *Codec) Encode(b bin.Bin, dict Dict, offsets Offsets) ([]byte, error) {
	w := wireBin{Tree: b.Kind == bin.TreeKind}

	if b.Kind == bin.TreeKind {
		w.Depth = b.Depth
		w.Length = b.Length
		w.Entries = make([]wirePtr, len(b.Entries))
		for i, ptr := range b.Entries {
			if ptr == nil {
				continue
			}
			w.Entries[i] = wirePtr{Present: true, Addr: encodeAddress(ptr.HashOf(), ptr.Key, ptr.Mode == bin.PtrKey, offsets), Length: ptr.Length}
		}
		return c.finish(w)
	}

	w.Bindings = make([]wireBinding, len(b.Values))
	for i, binding := range b.Values {
		w.Bindings[i] = wireBinding{
			Name:  encodeName(binding.Step, dict),
			Value: encodeValue(binding.Value, offsets),
		}
	}
	return c.finish(w)
}

func (c *Codec) finish(w wireBin) ([]byte, error) {
	encoded, err := c.encoder.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("could not cbor-encode bin: %w", err)
	}
	return c.compressor.EncodeAll(encoded, nil), nil
}

func encodeName(s step.Step, dict Dict) wireName {
	if dict != nil && len(s) >= minIndirectLen {
		if id, ok := dict.Index(s); ok {
			return wireName{Indirect: true, ID: id}
		}
	}
	return wireName{Direct: append([]byte(nil), s...)}
}

func encodeAddress(h hash.Hash, key hash.Key, hasKey bool, offsets Offsets) wireAddress {
	if hasKey && offsets != nil {
		if off, ok := offsets.OffsetOf(key); ok {
			return wireAddress{Indirect: true, Offset: off}
		}
	}
	direct := append([]byte(nil), h[:]...)
	return wireAddress{Direct: direct}
}

func encodeValue(v bin.Value, offsets Offsets) wireValue {
	return wireValue{
		Node: v.Kind == bin.KindNode,
		Addr: encodeAddress(v.Target.Hash(), v.Target, true, offsets),
		Meta: !v.Metadata.IsDefault(),
		Perm: v.Metadata.Permissions,
	}
}

// Decode reverses Encode, resolving indirected names and addresses through
// dict and offsets. Either collaborator may be nil, in which case any
// indirected field it would have resolved makes Decode fail with an error
// naming the binding or tree entry, since an indirected reference with no
// way to resolve it cannot be decoded. Decode's errors are plain wrapped
// errors: they are not packv.CorruptedEntry values and carry no pack offset.
func (c *Codec) Decode(data []byte, dict Dict, offsets Offsets) (bin.Bin, error) {
	raw, err := c.decompressor.DecodeAll(data, nil)
	if err != nil {
		return bin.Bin{}, fmt.Errorf("could not decompress bin: %w", err)
	}

	var w wireBin
	err = c.decoder.Unmarshal(raw, &w)
	if err != nil {
		return bin.Bin{}, fmt.Errorf("could not cbor-decode bin: %w", err)
	}

	if w.Tree {
		entries := make([]*bin.Ptr, len(w.Entries))
		for i, e := range w.Entries {
			if !e.Present {
				continue
			}
			key, err := decodeAddress(e.Addr, offsets)
			if err != nil {
				return bin.Bin{}, fmt.Errorf("could not decode tree entry %d: %w", i, err)
			}
			entries[i] = &bin.Ptr{Mode: bin.PtrKey, Key: key, Hash: key.Hash(), Length: e.Length}
		}
		return bin.Bin{Kind: bin.TreeKind, Depth: w.Depth, Length: w.Length, Entries: entries}, nil
	}

	bindings := make([]bin.Binding, len(w.Bindings))
	for i, wb := range w.Bindings {
		s, err := decodeName(wb.Name, dict)
		if err != nil {
			return bin.Bin{}, fmt.Errorf("could not decode binding %d name: %w", i, err)
		}
		value, err := decodeValue(wb.Value, offsets)
		if err != nil {
			return bin.Bin{}, fmt.Errorf("could not decode binding %d value: %w", i, err)
		}
		bindings[i] = bin.Binding{Step: s, Value: value}
	}
	return bin.Bin{Kind: bin.Values, Values: bindings}, nil
}

func decodeName(w wireName, dict Dict) (step.Step, error) {
	if !w.Indirect {
		return step.Step(w.Direct), nil
	}
	if dict == nil {
		return nil, fmt.Errorf("indirected step name but no dictionary available")
	}
	name, ok := dict.String(w.ID)
	if !ok {
		return nil, fmt.Errorf("dictionary has no entry for index %d", w.ID)
	}
	return step.Step(name), nil
}

func decodeAddress(w wireAddress, offsets Offsets) (hash.Key, error) {
	if !w.Indirect {
		h, err := hash.FromBytes(w.Direct)
		if err != nil {
			return hash.Key{}, fmt.Errorf("invalid direct hash: %w", err)
		}
		return hash.KeyOf(h), nil
	}
	if offsets == nil {
		return hash.Key{}, fmt.Errorf("indirected address but no offset resolver available")
	}
	h, length, ok := offsets.Resolve(w.Offset)
	if !ok {
		return hash.Key{}, fmt.Errorf("offset resolver has no entry for offset %d", w.Offset)
	}
	return hash.KeyOfOffset(h, w.Offset, length), nil
}

func decodeValue(w wireValue, offsets Offsets) (bin.Value, error) {
	key, err := decodeAddress(w.Addr, offsets)
	if err != nil {
		return bin.Value{}, err
	}
	meta := bin.Metadata{Permissions: w.Perm}
	if w.Node {
		return bin.Node(key), nil
	}
	return bin.Contents(key, meta), nil
}
