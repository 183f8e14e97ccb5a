package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf)
	assert.Contains(t, buf.String(), Version)
	assert.Contains(t, buf.String(), "\x1b[36m")
	assert.Contains(t, buf.String(), "IoT Sensors Data Over OPCUA")
}
