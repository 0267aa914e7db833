package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPortStringDefaultsWhenUnset(t *testing.T) {
	require.Equal(t, "8080", portString(0))
}

func TestPortStringUsesConfiguredPort(t *testing.T) {
	require.Equal(t, "9999", portString(9999))
}
