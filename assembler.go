package modbus

import "encoding/binary"

// assembleResult is the outcome of feeding bytes to a handle's frame
// assembler.
type assembleResult int

const (
	// assembleWaiting means no complete, accepted frame yet.
	assembleWaiting assembleResult = iota
	// assembleSuccess means a validated response PDU is in the handle's
	// PDU buffer.
	assembleSuccess
	// assembleFailure means the transaction cannot be completed (a
	// response id from the future arrived).
	assembleFailure
)

// txnDisposition classifies a received transaction id.
type txnDisposition int

const (
	txnMatch txnDisposition = iota
	txnStale
	txnFuture
)

// feed appends incoming bytes to the rolling buffer and scans it for
// complete frames, consuming stale or corrupt ones, until a frame is
// accepted, the transaction fails, or the residual is incomplete. Called on
// the engine dispatcher with h.mu held.
func (h *Handle) feed(data []byte) assembleResult {
	if h.state != StateWaitingForResponse {
		h.logf("WARNING: %d bytes received while not waiting for a response, discarding", len(data))
		h.rx.reset()
		return assembleWaiting
	}
	if !h.rx.append(data) {
		h.logf("ERROR: message longer than %d bytes, discarding buffered data", maxPDULength)
		return assembleWaiting
	}
	for {
		res, consumed := h.extractFrame()
		if res != assembleWaiting || consumed == 0 {
			return res
		}
		// A stale or CRC-failed frame was dropped; keep scanning the
		// residual for the frame we are waiting for.
	}
}

// extractFrame inspects the buffer for one complete frame and reports how
// many bytes it consumed.
func (h *Handle) extractFrame() (assembleResult, int) {
	f := h.framer
	buf := h.rx.bytes()
	if len(buf) < f.minLength(h.isCFG) {
		return assembleWaiting, 0
	}
	pduLen := f.pduLength(buf, h.isCFG)
	if pduLen > maxPDULength {
		h.logf("ERROR: declared PDU length %d exceeds %d, discarding buffered data", pduLen, maxPDULength)
		h.rx.reset()
		return assembleWaiting, 0
	}
	total := f.headerLength() + pduLen + f.footerLength()
	if len(buf) < total {
		return assembleWaiting, 0
	}

	var rxTxn uint16
	if f.matchesTransaction() {
		rxTxn = binary.BigEndian.Uint16(buf[0:2])
		switch h.matchTransaction(rxTxn) {
		case txnFuture:
			h.logf("ERROR: transaction id 0x%04x has not been requested yet (expected 0x%04x), search failed", rxTxn, h.txnID)
			h.rx.reset()
			return assembleFailure, 0
		case txnStale:
			h.logf("INFO: transaction id 0x%04x belongs to a timed out request (expected 0x%04x), frame discarded", rxTxn, h.txnID)
			h.rx.compact(total)
			return assembleWaiting, total
		}
	}

	if !f.validateFrame(buf[:total]) {
		h.logf("WARNING: CRC check failed, frame discarded")
		h.rx.compact(total)
		return assembleWaiting, total
	}

	h.pduLen = pduLen
	copy(h.pdu[:pduLen], buf[f.headerLength():f.headerLength()+pduLen])
	if f.matchesTransaction() {
		h.lastTxnID = rxTxn
	}
	h.rx.compact(total)
	return assembleSuccess, total
}

// matchTransaction classifies a received transaction id against the
// outstanding request, accounting for 16 bit wraparound. A stale id belongs
// to a request that has already timed out and is skipped; an id outside the
// superseded range has not been requested yet and fails the transaction.
// The two branches are asymmetric on purpose; the boundary behavior is
// pinned by tests rather than derived.
func (h *Handle) matchTransaction(rx uint16) txnDisposition {
	if rx == h.txnID {
		return txnMatch
	}
	if h.txnID > h.lastTxnID {
		// No wraparound pending: stale ids lie strictly between the last
		// matched id and the outstanding one.
		if rx > h.txnID || rx <= h.lastTxnID {
			return txnFuture
		}
		return txnStale
	}
	// The counter has wrapped since the last match.
	if rx >= h.lastTxnID || rx < h.txnID {
		return txnStale
	}
	return txnFuture
}
