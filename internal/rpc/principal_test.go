package rpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrincipalSubaccount(t *testing.T) {
	// anonymous principal is the single byte 0x04
	sub, err := PrincipalSubaccount("2vxsx-fae")
	require.NoError(t, err)
	require.Len(t, sub, 32)
	assert.Equal(t, byte(1), sub[0])
	assert.Equal(t, byte(0x04), sub[1])

	_, err = PrincipalSubaccount("not a principal!")
	assert.Error(t, err)
}
