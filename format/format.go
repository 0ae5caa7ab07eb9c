// Package format classifies binary audio payloads by magic bytes so the
// playback layer can pick the right decode path before touching the data.
package format

import "bytes"

const (
	MP3  = "audio/mpeg"
	WAV  = "audio/wav"
	OGG  = "audio/ogg"
	WebM = "audio/webm"
	PCM  = "audio/pcm"
)

var ebmlMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}

// Detect sniffs the payload signature. Headerless buffers fall through to
// PCM — the backend's raw audio frames carry no container header, so "no
// known signature" means raw 16 kHz PCM rather than an unknown codec.
func Detect(data []byte) string {
	if len(data) >= 3 && bytes.HasPrefix(data, []byte("ID3")) {
		return MP3
	}
	if len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0 {
		return MP3
	}
	if len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")) {
		return WAV
	}
	if len(data) >= 4 && bytes.HasPrefix(data, []byte("OggS")) {
		return OGG
	}
	if len(data) >= 4 && bytes.HasPrefix(data, ebmlMagic) {
		return WebM
	}
	return PCM
}

// IsMP3 reports whether the payload looks like an MP3 stream.
func IsMP3(data []byte) bool {
	return Detect(data) == MP3
}

// Support reports which formats the playback layer can decode. Only raw PCM
// is decoded natively; the rest is advisory for the UI so it can surface why
// a payload was skipped.
func Support() map[string]bool {
	return map[string]bool{
		PCM:  true,
		WAV:  true, // PCM body after the 44-byte header
		MP3:  false,
		OGG:  false,
		WebM: false,
	}
}

// WAVHeaderSize is the canonical RIFF/WAVE header length for the PCM files
// the backend produces.
const WAVHeaderSize = 44

// StripWAV returns the PCM body of a WAV payload, or the payload unchanged
// when it carries no RIFF header.
func StripWAV(data []byte) []byte {
	if Detect(data) == WAV && len(data) > WAVHeaderSize {
		return data[WAVHeaderSize:]
	}
	return data
}
