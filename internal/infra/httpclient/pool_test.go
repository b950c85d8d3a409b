package httpclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewPooledClient_SharesTransport(t *testing.T) {
	a := NewPooledClient(5 * time.Second)
	b := NewPooledClient(0)

	assert.Same(t, a.Transport, b.Transport)
	assert.Equal(t, 5*time.Second, a.Timeout)
	assert.Zero(t, b.Timeout)
}
