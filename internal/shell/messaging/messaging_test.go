package messaging

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeOperation_RoundTrip(t *testing.T) {
	op := InvokedOperation{
		ID:             "op-1",
		Name:           "startDeployment",
		DeploymentName: "deploy-app",
		Template:       map[string]any{"resources": []any{}},
		Parameters:     map[string]any{"location": "eastus"},
	}

	data, err := EncodeOperation(op)
	require.NoError(t, err)

	// The envelope's body is itself a JSON string, not a nested object.
	var envelope map[string]any
	require.NoError(t, json.Unmarshal(data, &envelope))
	assert.Equal(t, "op-1", envelope["id"])
	_, isString := envelope["body"].(string)
	assert.True(t, isString)

	decoded, err := DecodeOperation(data)
	require.NoError(t, err)
	assert.Equal(t, op, *decoded)
}

func TestDecodeOperation_BodyNotAString(t *testing.T) {
	data := []byte(`{"id":"op-2","body":{"id":"op-2"}}`)

	_, err := DecodeOperation(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "body is not a string")
}

func TestDecodeOperation_InvalidEnvelope(t *testing.T) {
	_, err := DecodeOperation([]byte("not json"))
	require.Error(t, err)
}

func TestDecodeOperation_InvalidBodyJSON(t *testing.T) {
	data := []byte(`{"id":"op-3","body":"not json"}`)

	_, err := DecodeOperation(data)
	require.Error(t, err)
}
