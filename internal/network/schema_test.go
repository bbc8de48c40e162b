package network

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatorAcceptsProtocolMessages(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	for _, raw := range []string{
		`{"type":"start_level","payload":{"level":3}}`,
		`{"type":"start_level","payload":{"level":3,"seed":-42}}`,
		`{"type":"spawn_item","payload":{"shape":0}}`,
		`{"type":"item_eligible","payload":{"item":4,"x":1.5,"y":-2,"reachable":true}}`,
		`{"type":"item_click","payload":{"item":4,"reachable":false}}`,
		`{"type":"move_complete","payload":{"move":12}}`,
		`{"type":"ping"}`,
		`{"type":"ping","payload":{}}`,
	} {
		_, err := v.Decode([]byte(raw))
		assert.NoError(t, err, raw)
	}
}

func TestValidatorRejectsMalformedMessages(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	for _, raw := range []string{
		`not json`,
		`{"payload":{}}`,
		`{"type":"teleport","payload":{}}`,
		`{"type":"start_level"}`,
		`{"type":"start_level","payload":{"level":0}}`,
		`{"type":"start_level","payload":{"level":1.5}}`,
		`{"type":"item_click","payload":{"item":"4","reachable":true}}`,
		`{"type":"item_click","payload":{"item":4}}`,
		`{"type":"move_complete","payload":{"move":1,"extra":true}}`,
		`{"type":"ping","extra":1}`,
	} {
		_, err := v.Decode([]byte(raw))
		assert.ErrorIs(t, err, ErrInvalidMessage, raw)
	}
}

func TestDecodeKeepsPayload(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	msg, err := v.Decode([]byte(`{"type":"item_click","payload":{"item":9,"x":3,"y":4,"reachable":true}}`))
	require.NoError(t, err)
	assert.Equal(t, MsgTypeItemClick, msg.Type)

	var p ItemReportPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	assert.Equal(t, ItemReportPayload{Item: 9, X: 3, Y: 4, Reachable: true}, p)
}
