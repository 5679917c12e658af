package raknet

import (
	"net"
	"testing"
	"time"
)

func TestListenerOfflineHandshakeCreatesSession(t *testing.T) {
	l, err := NewListener("127.0.0.1:0", 0xdeadbeef, DefaultTunables(), nil)
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	defer l.Close()

	opened := make(chan *Session, 1)
	l.OnOpen = func(s *Session) { opened <- s }

	go l.Serve()

	client, err := net.DialUDP("udp", nil, l.conn.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer client.Close()
	client.SetReadDeadline(time.Now().Add(2 * time.Second))

	// OPEN_CONNECTION_REQUEST_1
	req1 := NewBitStreamWriter()
	req1.WriteByte(IDOpenConnectionRequest1)
	writeMagic(req1)
	req1.WriteByte(6) // protocol version
	req1.WriteBytes(make([]byte, 100))
	client.Write(req1.Bytes())

	buf := make([]byte, 2048)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("read reply1 error: %v", err)
	}
	if buf[0] != IDOpenConnectionReply1 {
		t.Fatalf("expected OPEN_CONNECTION_REPLY_1, got %#x", buf[0])
	}
	_ = n

	// OPEN_CONNECTION_REQUEST_2
	req2 := NewBitStreamWriter()
	req2.WriteByte(IDOpenConnectionRequest2)
	writeMagic(req2)
	req2.WriteByte(4)
	req2.WriteBytes([]byte{127, 0, 0, 1})
	req2.WriteUint16(uint16(l.conn.LocalAddr().(*net.UDPAddr).Port))
	req2.WriteUint16(DefaultMTU)
	req2.WriteUint64(0x1234)
	client.Write(req2.Bytes())

	n, err = client.Read(buf)
	if err != nil {
		t.Fatalf("read reply2 error: %v", err)
	}
	if buf[0] != IDOpenConnectionReply2 {
		t.Fatalf("expected OPEN_CONNECTION_REPLY_2, got %#x", buf[0])
	}

	select {
	case s := <-opened:
		if s.GUID != 0x1234 {
			t.Fatalf("session GUID mismatch: got %x", s.GUID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for OnOpen")
	}

	if l.SessionCount() != 1 {
		t.Fatalf("expected 1 tracked session, got %d", l.SessionCount())
	}
}

func TestListenerUnconnectedPingPong(t *testing.T) {
	l, err := NewListener("127.0.0.1:0", 42, DefaultTunables(), nil)
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	defer l.Close()
	l.Motd = func() string { return "MCPE;Test Server;migration" }
	go l.Serve()

	client, err := net.DialUDP("udp", nil, l.conn.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer client.Close()
	client.SetReadDeadline(time.Now().Add(2 * time.Second))

	ping := NewBitStreamWriter()
	ping.WriteByte(IDUnconnectedPing)
	ping.WriteUint64(777)
	writeMagic(ping)
	ping.WriteUint64(99)
	client.Write(ping.Bytes())

	buf := make([]byte, 2048)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("read pong error: %v", err)
	}
	if buf[0] != IDUnconnectedPong {
		t.Fatalf("expected pong, got %#x", buf[0])
	}
	_ = n
}
