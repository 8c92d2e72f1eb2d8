package descriptor

import (
	"testing"

	_assert "github.com/stretchr/testify/require"
)

func TestChecksumReferenceVector(t *testing.T) {
	body := "pk(0379be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798)"
	_assert.Equal(t, "axav5m0j", Checksum(body))
}

func TestChecksumIsPure(t *testing.T) {
	body := "wpkh(02c6047f9441ed7d6d3045406e95c07cd85c778e4b8cef3ca7abac09b95c709ee5)"
	first := Checksum(body)
	_assert.Len(t, first, 8)
	for i := 0; i < 10; i++ {
		_assert.Equal(t, first, Checksum(body))
	}
}

func TestChecksumInvalidCharacters(t *testing.T) {
	_assert.Equal(t, "", Checksum("pkh(\x7f)"))
	_assert.Equal(t, "", Checksum("pkh(é)"))
}

func TestChecksumVerificationOnParse(t *testing.T) {
	body := "pk(0379be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798)"

	t.Run("accepts the canonical checksum", func(t *testing.T) {
		desc, err := Parse(body+"#axav5m0j", nil)
		_assert.NoError(t, err)
		_assert.Equal(t, body+"#axav5m0j", desc.ToString(true))
	})

	t.Run("rejects a tampered checksum", func(t *testing.T) {
		_, err := Parse(body+"#axav5m0q", nil)
		_assert.Error(t, err)
		_assert.Contains(t, err.Error(), "checksum")
	})

	t.Run("rejects a short checksum", func(t *testing.T) {
		_, err := Parse(body+"#abc", nil)
		_assert.Error(t, err)
	})

	t.Run("rejects multiple checksum markers", func(t *testing.T) {
		_, err := Parse(body+"#axav#m0j", nil)
		_assert.Error(t, err)
	})
}
