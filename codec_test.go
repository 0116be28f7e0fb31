package amqpbridge

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// TestEncodeDecodeRoundTrip covers P7: decode(encode(msg, name)) yields a
// message whose payload and application properties (augmented with
// _AMQ_VALIDATED_USER = name) equal the inputs.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	msg := NewSendableMessage("addr1", []byte{0xDE, 0xAD}, map[string]interface{}{
		"id": "u1",
	})

	raw, err := encode(msg, "O=Alice,L=London,C=GB")
	require.NoError(t, err)

	decoded, err := decode(func() []byte { return raw })
	require.NoError(t, err)

	wantProps := map[string]interface{}{
		"id":             "u1",
		ValidatedUserKey: "O=Alice,L=London,C=GB",
	}

	require.Equal(t, []byte{0xDE, 0xAD}, decoded.Data)
	if diff := cmp.Diff(wantProps, decoded.ApplicationProperties); diff != "" {
		t.Fatalf("application properties mismatch (-want +got):\n%s", diff)
	}
	require.True(t, decoded.Durable)
}

func TestEncodeDecodeRoundTripEmptyPayload(t *testing.T) {
	msg := NewSendableMessage("addr1", nil, nil)

	raw, err := encode(msg, "local")
	require.NoError(t, err)

	decoded, err := decode(func() []byte { return raw })
	require.NoError(t, err)

	require.Empty(t, decoded.Data)
	require.Equal(t, map[string]interface{}{ValidatedUserKey: "local"}, decoded.ApplicationProperties)
}
