package descriptor

import "strings"

// checksumInputCharset orders the characters a descriptor body may
// contain. The most common unprotected characters (hex, keypaths) sit
// in the first group of 32, case errors land a multiple of 32 apart,
// and alphabetic characters share groups where possible, so that
// within-group substitutions cost a single checksum symbol.
const checksumInputCharset = "0123456789()[],'/*abcdefgh@:$%{}" +
	"IJKLMNOPQRSTUVWXYZ&+-.;<=>?!^_|~" +
	"ijklmnopqrstuvwxyzABCDEFGH`#\"\\ "

// checksumCharset is the character set for the checksum itself (same
// as bech32).
const checksumCharset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

// descriptorPolyMod evolves the 40-bit checksum state by one 5-bit
// symbol.
func descriptorPolyMod(c uint64, val int) uint64 {
	c0 := c >> 35
	c = ((c & 0x7ffffffff) << 5) ^ uint64(val)
	if c0&1 != 0 {
		c ^= 0xf5dee51989
	}
	if c0&2 != 0 {
		c ^= 0xa9fdca3312
	}
	if c0&4 != 0 {
		c ^= 0x1bab10e32d
	}
	if c0&8 != 0 {
		c ^= 0x3706b1677a
	}
	if c0&16 != 0 {
		c ^= 0x644d626ffd
	}
	return c
}

// Checksum computes the 8-character checksum over a descriptor body
// (everything before the '#'). Every character feeds its position
// within its group of 32 into the state; the group numbers are
// accumulated three at a time and fed as an extra symbol. An empty
// string is returned when the body contains a character outside the
// input charset.
func Checksum(descriptor string) string {
	c := uint64(1)
	cls := 0
	clsCount := 0
	for i := 0; i < len(descriptor); i++ {
		pos := strings.IndexByte(checksumInputCharset, descriptor[i])
		if pos < 0 {
			return ""
		}
		// Emit a symbol for the position inside the group, for every character.
		c = descriptorPolyMod(c, pos&31)
		// Accumulate the group numbers
		cls = cls*3 + (pos >> 5)
		clsCount++
		if clsCount == 3 {
			// Emit an extra symbol representing the group numbers, for every 3 characters.
			c = descriptorPolyMod(c, cls)
			cls = 0
			clsCount = 0
		}
	}
	if clsCount > 0 {
		c = descriptorPolyMod(c, cls)
	}
	// Shift further to determine the checksum.
	for j := 0; j < 8; j++ {
		c = descriptorPolyMod(c, 0)
	}
	// Prevent appending zeroes from not affecting the checksum.
	c ^= 1

	var sum [8]byte
	for j := 0; j < 8; j++ {
		sum[j] = checksumCharset[(c>>(5*(7-j)))&31]
	}
	return string(sum[:])
}
