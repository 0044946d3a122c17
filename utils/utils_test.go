package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashID(t *testing.T) {
	hash := HashID("patient-12345")

	assert.Len(t, hash, 16)
	assert.Equal(t, hash, HashID("patient-12345"), "hashing is deterministic")
	assert.NotEqual(t, hash, HashID("patient-12346"))
	assert.NotContains(t, hash, "patient")
}

func TestGenerateClientID(t *testing.T) {
	a, err := GenerateClientID()
	require.NoError(t, err)
	b, err := GenerateClientID()
	require.NoError(t, err)

	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)
}
