package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperatorGuard(t *testing.T) {
	guard := NewOperatorGuard("s3cret-operator")

	assert.True(t, guard.Allows("s3cret-operator"))
	assert.True(t, guard.Allows("  s3cret-operator "))
	assert.False(t, guard.Allows("s3cret-operatoR"))
	assert.False(t, guard.Allows(""))
}

func TestOperatorGuardWithoutKeyDeniesAll(t *testing.T) {
	assert.False(t, NewOperatorGuard("").Allows(""))
	assert.False(t, NewOperatorGuard("").Allows("anything"))

	var nilGuard *OperatorGuard
	assert.False(t, nilGuard.Allows("anything"))
}

func TestHashOperatorKeyIsStable(t *testing.T) {
	assert.Equal(t, HashOperatorKey("abc"), HashOperatorKey(" abc "))
	assert.Len(t, HashOperatorKey("abc"), 64)
}
