package bip32util

import (
	"math"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/pkg/errors"
)

var (
	// ErrPathEmpty is returned when a path string contains
	// no segments at all.
	ErrPathEmpty = errors.New("Path cannot be empty string")

	// ErrPathWildcardTail is returned when a wildcard segment
	// appears anywhere other than the final position.
	ErrPathWildcardTail = errors.New("A '*' can only be specified at the end")

	// ErrPathAlreadyMaxDepth is returned when the BIP32 key has
	// reached it's theoretical maximum depth of 255, since additional
	// derivations cannot safely be serialized in a uint8
	ErrPathAlreadyMaxDepth = errors.New("Cannot create child path, currently at max BIP32 depth")
)

const (
	hardenedSymbol    = "'"
	hardenedSymbolAlt = "h"
	wildcardSymbol    = "*"
	maxBip32Depth     = math.MaxUint8
)

// WildcardType describes the trailing wildcard of a descriptor
// derivation path, if one is present.
type WildcardType int

const (
	// WildcardNone means the path is fully specified.
	WildcardNone WildcardType = iota

	// WildcardNormal is a trailing `*` segment.
	WildcardNormal

	// WildcardHardened is a trailing `*'` or `*h` segment.
	WildcardHardened
)

// Path defines a relative BIP32 derivation path as written inside an
// output descriptor, eg `0/1'/2h`, optionally terminated by a
// wildcard segment.
type Path struct {
	Path     []uint32
	Wildcard WildcardType
}

// NewPathFromString parses a relative derivation path. Unlike
// absolute wallet paths there is no m/M prefix; every segment is a
// sequence number with an optional hardened marker, except for an
// optional wildcard in the final position.
func NewPathFromString(path string) (*Path, error) {
	if len(path) == 0 {
		return nil, ErrPathEmpty
	}

	pieces := strings.Split(path, "/")
	if len(pieces) > maxBip32Depth {
		return nil, errors.Errorf("The provided path exceeds the maximum number of allowed derivations: %d", maxBip32Depth)
	}

	p := &Path{
		Path: make([]uint32, 0, len(pieces)),
	}
	for i, segment := range pieces {
		wildcard, isWildcard := wildcardFromSegment(segment)
		if isWildcard {
			if i != len(pieces)-1 {
				return nil, ErrPathWildcardTail
			}
			p.Wildcard = wildcard
			break
		}

		sequence, err := SequenceFromSegment(segment)
		if err != nil {
			return nil, err
		}
		p.Path = append(p.Path, sequence)
	}

	return p, nil
}

// wildcardFromSegment classifies a path segment as a wildcard,
// returning false for ordinary sequence segments.
func wildcardFromSegment(segment string) (WildcardType, bool) {
	switch segment {
	case wildcardSymbol:
		return WildcardNormal, true
	case wildcardSymbol + hardenedSymbol, wildcardSymbol + hardenedSymbolAlt:
		return WildcardHardened, true
	}
	return WildcardNone, false
}

// SequenceFromSegment parses a single path segment into a BIP32
// sequence number. Hardened segments are marked by a trailing ' or h
// and have the hardened bit set in the result.
func SequenceFromSegment(segment string) (uint32, error) {
	numHardened := strings.Count(segment, hardenedSymbol) + strings.Count(segment, hardenedSymbolAlt)

	var hardened bool
	if numHardened > 1 {
		return 0, errors.Errorf("Improperly formatted BIP32 derivation (cannot contain multiple hardened markers)")
	} else if numHardened > 0 {
		if !strings.HasSuffix(segment, hardenedSymbol) && !strings.HasSuffix(segment, hardenedSymbolAlt) {
			return 0, errors.Errorf("Improperly formatted BIP32 derivation segment: %s", segment)
		}
		hardened = true
		segment = segment[:len(segment)-1]
	}

	sequence, err := strconv.ParseUint(segment, 10, 31)
	if err != nil {
		return 0, err
	}

	if hardened {
		sequence += hdkeychain.HardenedKeyStart
	}

	return uint32(sequence), nil
}

// PathSegmentFromSequence is used for serializing a sequence number
// from a Path into a string. The function returns the sequence number
// as a string, with the hardened symbol if the sequence is hardened.
func PathSegmentFromSequence(sequence uint32) string {
	if isBip32SequenceHardened(sequence) {
		return strconv.Itoa(int(sequence-hdkeychain.HardenedKeyStart)) + hardenedSymbol
	}
	return strconv.Itoa(int(sequence))
}

// isBip32SequenceHardened returns whether the provided sequence has
// the leftmost bit set.
func isBip32SequenceHardened(sequence uint32) bool {
	return sequence&hdkeychain.HardenedKeyStart != 0
}

// Depth returns the number of fixed segments in the path. The
// wildcard, if any, is not counted.
func (p *Path) Depth() int {
	return len(p.Path)
}

// HasWildcard returns whether the final segment is a wildcard.
func (p *Path) HasWildcard() bool {
	return p.Wildcard != WildcardNone
}

// HasHardened returns whether any fixed segment, or the wildcard, is
// hardened.
func (p *Path) HasHardened() bool {
	if p.Wildcard == WildcardHardened {
		return true
	}
	for _, sequence := range p.Path {
		if isBip32SequenceHardened(sequence) {
			return true
		}
	}
	return false
}

// Child attempts to append another sequence number to the path array,
// returning a new structure.
func (p *Path) Child(sequence uint32) (*Path, error) {
	newDepth := p.Depth() + 1
	if newDepth > maxBip32Depth {
		return nil, ErrPathAlreadyMaxDepth
	}

	indices := make([]uint32, 0, newDepth)
	indices = append(indices, p.Path...)
	indices = append(indices, sequence)

	return &Path{
		Path:     indices,
		Wildcard: p.Wildcard,
	}, nil
}

// String encodes the fixed segments of the Path into the descriptor
// form, eg `0/1'/2`, with the wildcard appended when present.
func (p *Path) String() string {
	steps := make([]string, 0, p.Depth()+1)
	for _, sequence := range p.Path {
		steps = append(steps, PathSegmentFromSequence(sequence))
	}
	switch p.Wildcard {
	case WildcardNormal:
		steps = append(steps, wildcardSymbol)
	case WildcardHardened:
		steps = append(steps, wildcardSymbol+hardenedSymbol)
	}

	return strings.Join(steps, "/")
}
