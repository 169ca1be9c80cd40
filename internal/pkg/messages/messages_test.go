package messages

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewMessageFrom(t *testing.T) {
	assert.Equal(t, &BatchMessage{Name: "b1"},
		NewMessageFrom(&BatchMessage{Name: "b1"}))
}
