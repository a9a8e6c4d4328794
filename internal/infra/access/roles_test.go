package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutu-network/cityledger/internal/domain"
)

func TestRoles(t *testing.T) {
	r := NewRoles("mayor", "sensor-net")

	assert.True(t, r.IsAdmin("mayor"))
	assert.False(t, r.IsAdmin("sensor-net"))
	assert.True(t, r.IsOracle("sensor-net"))
	assert.False(t, r.IsOracle(""))
	assert.Equal(t, domain.Identity("mayor"), r.Holder(RoleAdmin))
}

func TestRotate(t *testing.T) {
	r := NewRoles("mayor", "sensor-net")

	require.ErrorIs(t, r.Rotate("sensor-net", RoleOracle, "x"), domain.ErrUnauthorized)
	require.ErrorIs(t, r.Rotate("mayor", RoleOracle, ""), domain.ErrInvalidArgument)
	require.ErrorIs(t, r.Rotate("mayor", Role("clerk"), "x"), domain.ErrInvalidArgument)

	require.NoError(t, r.Rotate("mayor", RoleOracle, "sensor-net-2"))
	assert.True(t, r.IsOracle("sensor-net-2"))
	assert.False(t, r.IsOracle("sensor-net"))

	require.NoError(t, r.Rotate("mayor", RoleAdmin, "deputy"))
	assert.False(t, r.IsAdmin("mayor"))
	require.ErrorIs(t, r.Rotate("mayor", RoleAdmin, "mayor"), domain.ErrUnauthorized)
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole("oracle")
	require.NoError(t, err)
	assert.Equal(t, RoleOracle, role)

	_, err = ParseRole("root")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}
