package modbus

import "testing"

func TestCRC16KnownVectors(t *testing.T) {
	cases := []struct {
		data []byte
		crc  uint16
	}{
		// Read holding registers request 01 03 00 00 00 0A.
		{[]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A}, 0xCDC5},
		// Read coils request 11 01 00 13 00 25.
		{[]byte{0x11, 0x01, 0x00, 0x13, 0x00, 0x25}, 0x840E},
		{[]byte{0x01, 0x04, 0x02, 0xFF, 0xFF}, 0x80B8},
	}
	for _, c := range cases {
		if got := CRC16(c.data); got != c.crc {
			t.Errorf("CRC16(% X) = 0x%04X, want 0x%04X", c.data, got, c.crc)
		}
	}
}

func TestAddCRCAppendsLowByteFirst(t *testing.T) {
	frame := AddCRC([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A})
	assertBytesEqual(t, []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A, 0xC5, 0xCD}, frame)
}

func TestValidateCRCRoundTrip(t *testing.T) {
	frame := AddCRC([]byte{0x05, 0x06, 0x00, 0x10, 0x12, 0x34})
	if !ValidateCRC(frame) {
		t.Fatalf("valid frame rejected: % X", frame)
	}
}

func TestValidateCRCDetectsCorruption(t *testing.T) {
	frame := AddCRC([]byte{0x05, 0x06, 0x00, 0x10, 0x12, 0x34})
	for i := range frame {
		corrupted := append([]byte(nil), frame...)
		corrupted[i] ^= 0x01
		if ValidateCRC(corrupted) {
			t.Errorf("bit flip at byte %d not detected", i)
		}
	}
}

func TestValidateCRCRejectsShortFrames(t *testing.T) {
	for _, frame := range [][]byte{nil, {0x01}, {0x01, 0x02}} {
		if ValidateCRC(frame) {
			t.Errorf("frame of %d bytes accepted", len(frame))
		}
	}
}
