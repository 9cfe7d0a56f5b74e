package packet

import (
	"bytes"
	"testing"
)

func TestConnackPackHappyPath(t *testing.T) {
	c := &CONNACK{FixedHeader: &FixedHeader{Kind: CONNACK}, ReturnCode: ConnackAccepted}
	var buf bytes.Buffer
	if err := c.Pack(&buf); err != nil {
		t.Fatalf("Pack() error: %v", err)
	}
	want := []byte{0x20, 0x02, 0x00, 0x00}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("got % X, want % X", buf.Bytes(), want)
	}
}

func TestConnackPackRejectedProtocol(t *testing.T) {
	c := &CONNACK{FixedHeader: &FixedHeader{Kind: CONNACK}, ReturnCode: ConnackUnacceptableProtocol}
	var buf bytes.Buffer
	if err := c.Pack(&buf); err != nil {
		t.Fatalf("Pack() error: %v", err)
	}
	want := []byte{0x20, 0x02, 0x00, 0x01}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("got % X, want % X", buf.Bytes(), want)
	}
}

func TestConnackSessionPresentRoundTrip(t *testing.T) {
	c := &CONNACK{FixedHeader: &FixedHeader{Kind: CONNACK}, SessionPresent: true, ReturnCode: ConnackAccepted}
	var buf bytes.Buffer
	if err := c.Pack(&buf); err != nil {
		t.Fatalf("Pack() error: %v", err)
	}
	fh, err := ReadFixedHeader(&buf)
	if err != nil {
		t.Fatalf("ReadFixedHeader() error: %v", err)
	}
	got := &CONNACK{FixedHeader: fh}
	if err := got.Unpack(&buf); err != nil {
		t.Fatalf("Unpack() error: %v", err)
	}
	if !got.SessionPresent || got.ReturnCode != ConnackAccepted {
		t.Errorf("got %+v", got)
	}
}
