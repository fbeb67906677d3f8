package modbus

import "testing"

func TestFrameBufferAppendAndCompact(t *testing.T) {
	var b frameBuffer
	if !b.append([]byte{1, 2, 3, 4, 5}) {
		t.Fatal("append rejected")
	}
	assertBytesEqual(t, []byte{1, 2, 3, 4, 5}, b.bytes())

	b.compact(3)
	assertBytesEqual(t, []byte{4, 5}, b.bytes())

	b.compact(10)
	if len(b.bytes()) != 0 {
		t.Errorf("expected empty buffer, got % X", b.bytes())
	}
}

func TestFrameBufferOverflowDiscardsEverything(t *testing.T) {
	var b frameBuffer
	big := make([]byte, maxPDULength-1)
	if !b.append(big) {
		t.Fatal("append of maximum payload rejected")
	}
	if b.append([]byte{1}) {
		t.Fatal("append past capacity accepted")
	}
	if len(b.bytes()) != 0 {
		t.Errorf("overflow should discard buffered bytes, %d remain", len(b.bytes()))
	}
}

func TestFrameBufferRejectsFullCapacityAppend(t *testing.T) {
	var b frameBuffer
	if b.append(make([]byte, maxPDULength)) {
		t.Fatal("append filling the buffer exactly should be rejected")
	}
}

func TestFrameBufferReset(t *testing.T) {
	var b frameBuffer
	b.append([]byte{1, 2, 3})
	b.reset()
	if len(b.bytes()) != 0 {
		t.Errorf("expected empty buffer after reset, got % X", b.bytes())
	}
}
