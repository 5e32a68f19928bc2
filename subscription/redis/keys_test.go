package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPairKey(t *testing.T) {
	assert.NotEqual(t, pairKey("a:http", "//h"), pairKey("a", "http://h"))
	assert.Equal(t, pairKey("1234567890", "https://payer.example.com/notify"), pairKey("1234567890", "https://payer.example.com/notify"))
	assert.Equal(t, "subscription-pair:org:http%3A%2F%2Fa", pairKey("org", "http://a"))
}
