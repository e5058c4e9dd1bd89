package telemetry

// ImageTransfer splits a raw 8-bit image into a handshake and its chunks.
// The chunk count is size/EncapsulatedChunk+1, so an image whose size is a
// multiple of the chunk gets a trailing all-zero chunk. Every chunk is
// EncapsulatedChunk bytes, zero padded.
func ImageTransfer(width, height int, pix []byte) (DataTransmissionHandshake, []EncapsulatedData) {
	size := width * height
	if size > len(pix) {
		size = len(pix)
	}
	packets := size/EncapsulatedChunk + 1
	hs := DataTransmissionHandshake{
		StreamType: ImageRaw8U,
		Size:       uint32(size),
		Width:      uint16(width),
		Height:     uint16(height),
		Packets:    uint16(packets),
		Payload:    EncapsulatedChunk,
		JpgQuality: 100,
	}
	chunks := make([]EncapsulatedData, packets)
	for i := range chunks {
		data := make([]byte, EncapsulatedChunk)
		if start := i * EncapsulatedChunk; start < size {
			copy(data, pix[start:min(start+EncapsulatedChunk, size)])
		}
		chunks[i] = EncapsulatedData{Seqnr: uint16(i), Data: data}
	}
	return hs, chunks
}

// SendImage sends an image transfer on c.
func (h *Hub) SendImage(c Channel, width, height int, pix []byte) {
	hs, chunks := ImageTransfer(width, height, pix)
	h.Send(c, hs)
	for _, chunk := range chunks {
		h.Send(c, chunk)
	}
}
