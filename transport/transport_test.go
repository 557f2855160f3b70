package transport

import (
	"bytes"
	"net"
	"testing"
	"time"
)

func TestSendSingleDatagram(t *testing.T) {
	recv, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatal(err)
	}
	defer recv.Close()

	addr := recv.LocalAddr().(*net.UDPAddr)
	tr, err := Dial("127.0.0.1", addr.Port, Unicast)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	payload := []byte("hello, replay")
	n, err := tr.Send(payload)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(payload) {
		t.Fatalf("Send returned %d, want %d", n, len(payload))
	}

	recv.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 2048)
	read, _, err := recv.ReadFromUDP(buf)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf[:read], payload) {
		t.Fatalf("received %q, want %q", buf[:read], payload)
	}
}

func TestSendFragmentsOversizedPayload(t *testing.T) {
	recv, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatal(err)
	}
	defer recv.Close()

	addr := recv.LocalAddr().(*net.UDPAddr)
	tr, err := Dial("127.0.0.1", addr.Port, Unicast)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	payload := bytes.Repeat([]byte{0xAB}, MaxDatagram+100)
	n, err := tr.Send(payload)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(payload) {
		t.Fatalf("Send returned %d, want %d", n, len(payload))
	}

	recv.SetReadDeadline(time.Now().Add(2 * time.Second))
	var received []byte
	for len(received) < len(payload) {
		buf := make([]byte, MaxDatagram+1)
		read, _, err := recv.ReadFromUDP(buf)
		if err != nil {
			t.Fatal(err)
		}
		received = append(received, buf[:read]...)
	}
	if !bytes.Equal(received, payload) {
		t.Fatal("reassembled fragments do not match original payload")
	}
}

func TestDialRejectsMismatchedMode(t *testing.T) {
	if _, err := Dial("239.1.2.3", 12345, Unicast); err == nil {
		t.Fatal("expected error dialing a multicast address in unicast mode")
	}
	if _, err := Dial("255.255.255.255", 12345, Multicast); err == nil {
		t.Fatal("expected error dialing a broadcast address in multicast mode")
	}
	if _, err := Dial("10.0.0.1", 12345, Multicast); err == nil {
		t.Fatal("expected error dialing a unicast address in multicast mode")
	}
}

func TestDialRejectsInvalidAddress(t *testing.T) {
	if _, err := Dial("not-an-ip", 12345, Unicast); err == nil {
		t.Fatal("expected error for invalid address")
	}
}

func TestDialMulticastJoinsGroup(t *testing.T) {
	tr, err := Dial("239.1.2.3", 12345, Multicast)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()
}

func TestCloseIsIdempotent(t *testing.T) {
	recv, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatal(err)
	}
	defer recv.Close()

	addr := recv.LocalAddr().(*net.UDPAddr)
	tr, err := Dial("127.0.0.1", addr.Port, Unicast)
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got %v", err)
	}
}
