package wire

import "testing"

func TestDecodeRoundTrip(t *testing.T) {
	p := &DHTPacket{
		Type:      TypePut,
		Key:       "dungeons",
		Value:     "dragons",
		HasValue:  true,
		Tag:       7,
		TTL:       100,
		ClientAdr: "10.0.0.1:9000",
		HasSender: true,
		SenderInfo: NodeRef{Addr: "10.0.0.2:9001", FirstHash: 42},
	}
	raw := p.Encode()
	got, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != p.Type || got.Key != p.Key || got.Value != p.Value {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.SenderInfo != p.SenderInfo {
		t.Fatalf("senderInfo mismatch: got %+v want %+v", got.SenderInfo, p.SenderInfo)
	}
}

func TestDecodeRejectsMissingMagic(t *testing.T) {
	_, err := Decode([]byte("type:get\ntag:1\nttl:10\n"))
	if err == nil {
		t.Fatal("expected error for missing magic line")
	}
}

func TestDecodeRejectsUnknownField(t *testing.T) {
	raw := DHTMagic + "\ntype:get\ntag:1\nttl:10\nbogus:1\n"
	_, err := Decode([]byte(raw))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestDecodeHashRange(t *testing.T) {
	raw := DHTMagic + "\ntype:join\ntag:1\nttl:10\nhashRange:0:2147483647\n"
	p, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !p.HasHashRange || p.HashRange.Lo != 0 || p.HashRange.Hi != 2147483647 {
		t.Fatalf("unexpected hashRange: %+v", p.HashRange)
	}
}
