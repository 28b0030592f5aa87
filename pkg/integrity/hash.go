// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package integrity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ipfs/go-cid"
	mc "github.com/multiformats/go-multicodec"
	mh "github.com/multiformats/go-multihash"

	"blockwatch.cc/certreg/pkg/stx"
)

var (
	ErrUnknownScheme = errors.New("integrity: unknown serialization scheme")
	ErrTrailingData  = errors.New("integrity: trailing data after document")
)

// Scheme names a byte-exact JSON serialization convention. A data hash only
// verifies when the verifier reproduces the producer's scheme.
type Scheme string

const (
	// sorted keys, 2-space indent, numbers verbatim, no HTML escaping
	SchemeCanonical Scheme = "canonical"
	// 2-space indent, keys in document order
	SchemeLegacy Scheme = "legacy"
)

// Schemes lists the schemes a verifier tries, in order.
var Schemes = []Scheme{SchemeCanonical, SchemeLegacy}

func (s Scheme) IsValid() bool {
	return s == SchemeCanonical || s == SchemeLegacy
}

// Serialize encodes a document under scheme s.
func Serialize(d Document, s Scheme) ([]byte, error) {
	buf, err := encode(d, "")
	if err != nil {
		return nil, err
	}
	return Reserialize(buf, s)
}

// Reserialize re-encodes fetched JSON under scheme s without going through
// Go types, so unknown fields and number spelling survive.
func Reserialize(buf []byte, s Scheme) ([]byte, error) {
	switch s {
	case SchemeCanonical:
		dec := json.NewDecoder(bytes.NewReader(buf))
		dec.UseNumber()
		var v interface{}
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("integrity: %w", err)
		}
		if err := dec.Decode(&struct{}{}); err != io.EOF {
			return nil, ErrTrailingData
		}
		// maps encode with sorted keys
		return encode(v, "  ")
	case SchemeLegacy:
		var compact bytes.Buffer
		if err := json.Compact(&compact, buf); err != nil {
			return nil, fmt.Errorf("integrity: %w", err)
		}
		var out bytes.Buffer
		if err := json.Indent(&out, compact.Bytes(), "", "  "); err != nil {
			return nil, fmt.Errorf("integrity: %w", err)
		}
		return out.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownScheme, s)
	}
}

func encode(v interface{}, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("integrity: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

var prefix = cid.Prefix{
	Version:  1,
	Codec:    uint64(mc.Json),
	MhType:   mh.SHA2_256,
	MhLength: -1, // default length
}

func digest(buf []byte) stx.Hash {
	var h stx.Hash
	sum, err := mh.Sum(buf, mh.SHA2_256, -1)
	if err != nil {
		// sha2-256 is always registered
		panic(err)
	}
	dec, err := mh.Decode(sum)
	if err != nil {
		panic(err)
	}
	copy(h[:], dec.Digest)
	return h
}

// DataHash is the 32 byte commitment stored on-chain for serialized bytes.
func DataHash(buf []byte) stx.Hash {
	return digest(buf)
}

// DocumentCID content-addresses serialized bytes. Its digest equals DataHash.
func DocumentCID(buf []byte) (cid.Cid, error) {
	return prefix.Sum(buf)
}

// HashFromCID extracts the sha2-256 digest of a document CID.
func HashFromCID(c cid.Cid) (stx.Hash, error) {
	var h stx.Hash
	dec, err := mh.Decode(c.Hash())
	if err != nil {
		return h, err
	}
	if dec.Code != mh.SHA2_256 || len(dec.Digest) != len(h) {
		return h, fmt.Errorf("integrity: cid %s is not sha2-256", c)
	}
	copy(h[:], dec.Digest)
	return h, nil
}

// Match tries each scheme on fetched bytes and returns the first one whose
// hash equals the on-chain commitment, together with the computed hash.
// Without a match the canonical hash is returned, or the hash of the raw
// bytes when they are not a single JSON document.
func Match(buf []byte, onchain stx.Hash) (Scheme, stx.Hash, bool) {
	first := DataHash(buf)
	for i, s := range Schemes {
		out, err := Reserialize(buf, s)
		if err != nil {
			continue
		}
		h := DataHash(out)
		if i == 0 {
			first = h
		}
		if h == onchain {
			return s, h, true
		}
	}
	return "", first, false
}
