package service

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestValidatorName(t *testing.T) {
	v := NewValidator()

	name, err := v.Name("  Proposta 1 ")
	require.NoError(t, err)
	require.Equal(t, "Proposta 1", name)

	_, err = v.Name(strings.Repeat("ç", MaxNameLength))
	require.NoError(t, err)

	for _, bad := range []string{"", "   ", strings.Repeat("a", MaxNameLength+1)} {
		_, err := v.Name(bad)
		require.ErrorIs(t, err, ErrInvalidName, "%q", bad)
	}
}

func TestValidatorAddress(t *testing.T) {
	v := NewValidator()

	addr, err := v.Address("0x70997970c51812dc3a010c7d01b50e0d17dc79c8")
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"), addr)

	for _, bad := range []string{"", "0x1234", "not an address"} {
		_, err := v.Address(bad)
		require.ErrorIs(t, err, ErrInvalidAddress)
	}
}
