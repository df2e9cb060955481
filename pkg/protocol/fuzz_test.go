package protocol

import (
	"reflect"
	"testing"
)

// FuzzPhoenixRoundTrip fuzzes the Phoenix tuple parser.
func FuzzPhoenixRoundTrip(f *testing.F) {
	f.Add([]byte(`[null,"1","lv:abc","toggle_cutouts",{}]`))
	f.Add([]byte(`["1","2","lv:abc","edit",{"kind":"par","index":"0","value":"Hi <b>x</b>"}]`))
	f.Add([]byte(`["1","1","lv:abc","phx_join",null]`))
	f.Add([]byte(`[null,null,"phoenix","heartbeat",{}]`))
	f.Add([]byte(`[]`))
	f.Add([]byte(`[1,2,3,4,5]`))
	f.Add([]byte(`{"topic":"t"}`))
	f.Add([]byte(`null`))
	f.Add([]byte(``))
	f.Add([]byte(`["1","2"`))

	codec := NewPhoenixCodec()

	f.Fuzz(func(t *testing.T, data []byte) {
		msg, err := codec.Decode(data)
		if err != nil {
			return
		}
		out, err := codec.Encode(msg)
		if err != nil {
			return
		}
		msg2, err := codec.Decode(out)
		if err != nil {
			t.Errorf("failed to re-parse serialized message: %v", err)
			return
		}
		if !messagesEqual(msg, msg2) {
			t.Errorf("roundtrip mismatch: %+v != %+v", msg, msg2)
		}
	})
}

func messagesEqual(a, b *Message) bool {
	if a.Ref != b.Ref || a.JoinRef != b.JoinRef || a.Topic != b.Topic || a.Event != b.Event || a.Type != b.Type {
		return false
	}
	if len(a.Payload) != len(b.Payload) {
		return false
	}
	for k, v := range a.Payload {
		if !reflect.DeepEqual(v, b.Payload[k]) {
			return false
		}
	}
	return true
}
