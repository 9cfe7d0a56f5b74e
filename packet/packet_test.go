package packet

import (
	"bytes"
	"testing"
)

func TestReadDispatchesByKind(t *testing.T) {
	data := []byte{0xC0, 0x00} // PINGREQ
	pkt, err := Read(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if pkt.Kind() != PINGREQ {
		t.Errorf("got kind %#x, want PINGREQ", pkt.Kind())
	}
}

func TestReadUnknownKindFails(t *testing.T) {
	data := []byte{0xF0, 0x00} // AUTH, out of scope for this broker
	if _, err := Read(bytes.NewReader(data)); err == nil {
		t.Fatal("expected error reading an unsupported control type")
	}
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	original := &PUBLISH{
		FixedHeader: &FixedHeader{Kind: PUBLISH, QoS: 1},
		TopicName:   "a/b",
		PacketID:    99,
		Payload:     []byte("payload"),
	}
	var buf bytes.Buffer
	if err := Write(&buf, original); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	publish, ok := got.(*PUBLISH)
	if !ok {
		t.Fatalf("got %T, want *PUBLISH", got)
	}
	if publish.TopicName != original.TopicName || publish.PacketID != original.PacketID ||
		!bytes.Equal(publish.Payload, original.Payload) {
		t.Errorf("round trip = %+v, want %+v", publish, original)
	}
}

func TestReadTruncatedStreamFails(t *testing.T) {
	data := []byte{0x30, 0x05, 0x00, 0x01, 'a'} // declares 5 bytes, has 3
	if _, err := Read(bytes.NewReader(data)); err == nil {
		t.Fatal("expected error reading a truncated packet body")
	}
}
