package packet

import (
	"bytes"
	"testing"
)

func TestSubscribeUnpackSingleTopic(t *testing.T) {
	data := []byte{
		0x82, 0x06, // fixed header: SUBSCRIBE
		0x00, 0x01, // packet id 1
		0x00, 0x01, 'a', // topic "a"
		0x00, // requested QoS 0
	}
	buf := bytes.NewBuffer(data)
	fh, err := ReadFixedHeader(buf)
	if err != nil {
		t.Fatalf("ReadFixedHeader() error: %v", err)
	}
	s := &SUBSCRIBE{FixedHeader: fh}
	if err := s.Unpack(buf); err != nil {
		t.Fatalf("Unpack() error: %v", err)
	}
	if s.PacketID != 1 || len(s.Subscriptions) != 1 || s.Subscriptions[0].TopicFilter != "a" {
		t.Errorf("got %+v", s)
	}
}

func TestSubscribeUnpackMultipleTopics(t *testing.T) {
	data := []byte{
		0x00, 0x02,
		0x00, 0x01, 'a', 0x00,
		0x00, 0x01, 'b', 0x01,
	}
	s := &SUBSCRIBE{FixedHeader: &FixedHeader{Kind: SUBSCRIBE}}
	if err := s.Unpack(bytes.NewBuffer(data)); err != nil {
		t.Fatalf("Unpack() error: %v", err)
	}
	if len(s.Subscriptions) != 2 || s.Subscriptions[1].QoS != 1 {
		t.Errorf("got %+v", s.Subscriptions)
	}
}

func TestSubscribeFixedHeaderMustBe0x82(t *testing.T) {
	data := []byte{SUBSCRIBE << 4, 0x00} // flags 0000 instead of required 0010
	h := &FixedHeader{}
	if err := h.Unpack(bytes.NewBuffer(data)); err == nil {
		t.Fatal("expected error for SUBSCRIBE with flags != 0010")
	}
}

func TestSubackGrantedQosAndFailureSentinel(t *testing.T) {
	s := &SUBACK{
		FixedHeader: &FixedHeader{Kind: SUBACK},
		PacketID:    7,
		ReturnCodes: []byte{0x00, 0x01, SubackFailure},
	}
	var buf bytes.Buffer
	if err := s.Pack(&buf); err != nil {
		t.Fatalf("Pack() error: %v", err)
	}
	want := []byte{0x90, 0x05, 0x00, 0x07, 0x00, 0x01, 0x80}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("got % X, want % X", buf.Bytes(), want)
	}
}

func TestUnsubscribeUnpack(t *testing.T) {
	data := []byte{
		0xA2, 0x05,
		0x00, 0x01,
		0x00, 0x01, 'a',
	}
	buf := bytes.NewBuffer(data)
	fh, err := ReadFixedHeader(buf)
	if err != nil {
		t.Fatalf("ReadFixedHeader() error: %v", err)
	}
	u := &UNSUBSCRIBE{FixedHeader: fh}
	if err := u.Unpack(buf); err != nil {
		t.Fatalf("Unpack() error: %v", err)
	}
	if u.PacketID != 1 || len(u.TopicFilters) != 1 || u.TopicFilters[0] != "a" {
		t.Errorf("got %+v", u)
	}
}

func TestSubscribeRequiresAtLeastOneFilter(t *testing.T) {
	data := []byte{0x00, 0x01}
	s := &SUBSCRIBE{FixedHeader: &FixedHeader{Kind: SUBSCRIBE}}
	if err := s.Unpack(bytes.NewBuffer(data)); err == nil {
		t.Fatal("expected error for SUBSCRIBE with zero topic filters")
	}
}
