package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestEncodeWAV_Header(t *testing.T) {
	pcm := SamplesToBytes(make([]int16, 16000)) // 1 second of silence
	data, err := EncodeWAV(pcm, SampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV() error = %v", err)
	}

	if len(data) != 44+len(pcm) {
		t.Errorf("len(data) = %d, want %d", len(data), 44+len(pcm))
	}

	header, err := ReadWAVHeader(data)
	if err != nil {
		t.Fatalf("ReadWAVHeader() error = %v", err)
	}
	if header.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", header.SampleRate)
	}
	if header.NumChannels != 1 {
		t.Errorf("NumChannels = %d, want 1", header.NumChannels)
	}
	if header.BitsPerSample != 16 {
		t.Errorf("BitsPerSample = %d, want 16", header.BitsPerSample)
	}
	if header.ByteRate != 32000 {
		t.Errorf("ByteRate = %d, want 32000", header.ByteRate)
	}
	if header.BlockAlign != 2 {
		t.Errorf("BlockAlign = %d, want 2", header.BlockAlign)
	}
	if header.Subchunk2Size != uint32(len(pcm)) {
		t.Errorf("Subchunk2Size = %d, want %d", header.Subchunk2Size, len(pcm))
	}
	if header.ChunkSize != uint32(36+len(pcm)) {
		t.Errorf("ChunkSize = %d, want %d", header.ChunkSize, 36+len(pcm))
	}
}

func TestEncodeWAV_RoundTrip(t *testing.T) {
	samples := make([]int16, 4000)
	for i := range samples {
		samples[i] = int16(i%2000 - 1000)
	}
	pcm := SamplesToBytes(samples)

	data, err := EncodeWAV(pcm, SampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV() error = %v", err)
	}

	decoded, rate, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV() error = %v", err)
	}
	if rate != SampleRate {
		t.Errorf("sample rate = %d, want %d", rate, SampleRate)
	}
	if !bytes.Equal(decoded, pcm) {
		t.Error("decoded PCM does not match original")
	}
}

func TestEncodeWAV_DataChunkMatchesTotalBytes(t *testing.T) {
	// Encoding N frames must report dataChunkSize == total PCM bytes.
	var pcm []byte
	for i := 0; i < 5; i++ {
		pcm = append(pcm, make([]byte, FrameBytes)...)
	}
	data, err := EncodeWAV(pcm, SampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV() error = %v", err)
	}

	dataChunkSize := binary.LittleEndian.Uint32(data[40:44])
	if dataChunkSize != uint32(len(pcm)) {
		t.Errorf("dataChunkSize = %d, want %d", dataChunkSize, len(pcm))
	}
	sampleRate := binary.LittleEndian.Uint32(data[24:28])
	if sampleRate != 16000 {
		t.Errorf("sampleRate = %d, want 16000", sampleRate)
	}
}

func TestEncodeWAV_Errors(t *testing.T) {
	if _, err := EncodeWAV(nil, SampleRate); err == nil {
		t.Error("EncodeWAV(nil) should fail")
	}
	if _, err := EncodeWAV([]byte{1}, SampleRate); err == nil {
		t.Error("EncodeWAV with odd byte count should fail")
	}
	if _, err := EncodeWAV([]byte{1, 2}, 0); err == nil {
		t.Error("EncodeWAV with zero sample rate should fail")
	}
}

func TestWAVDuration(t *testing.T) {
	pcm := make([]byte, 2*SampleRate*BytesPerSample) // 2 seconds
	data, err := EncodeWAV(pcm, SampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV() error = %v", err)
	}
	dur, err := WAVDuration(data)
	if err != nil {
		t.Fatalf("WAVDuration() error = %v", err)
	}
	if dur != 2.0 {
		t.Errorf("duration = %v, want 2.0", dur)
	}
}

func TestDecodeWAV_RejectsGarbage(t *testing.T) {
	if _, _, err := DecodeWAV([]byte("not a wav file")); err == nil {
		t.Error("DecodeWAV should reject short garbage")
	}

	data, _ := EncodeWAV(make([]byte, 100), SampleRate)
	data[0] = 'X'
	if _, _, err := DecodeWAV(data); err == nil {
		t.Error("DecodeWAV should reject corrupted RIFF marker")
	}
}
