package stride

import (
	"testing"
	"time"

	"github.com/aretw0/stride/internal/config"
	"github.com/aretw0/stride/pkg/session"
	"github.com/stretchr/testify/assert"
)

func TestLockTTL_CoversRemoteBudget(t *testing.T) {
	rc := config.Default().Remote
	ttl := lockTTL(rc)

	assert.Greater(t, ttl, session.DefaultLockTTL)
	assert.GreaterOrEqual(t, ttl, time.Duration(rc.MaxRetries)*rc.ExtendedTimeout)
	assert.Equal(t, rc.Budget()+session.DefaultLockTTL, ttl)
}
