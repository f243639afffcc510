package kafka

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	OrderID string `json:"order_id"`
	Qty     int    `json:"qty"`
}

func TestUnwrapPayload(t *testing.T) {
	got, err := UnwrapPayload[sample](json.RawMessage(`{"order_id":"o1","qty":3}`))
	require.NoError(t, err)
	assert.Equal(t, sample{OrderID: "o1", Qty: 3}, got)

	_, err = UnwrapPayload[sample](json.RawMessage(`{"qty":"three"}`))
	assert.ErrorContains(t, err, "decode payload")
}

func TestMustMarshalPanicsOnUnsupported(t *testing.T) {
	assert.Equal(t, `{"order_id":"o1","qty":1}`, string(MustMarshal(sample{OrderID: "o1", Qty: 1})))
	assert.Panics(t, func() { MustMarshal(make(chan int)) })
}
