package format

import "testing"

func wavHeader() []byte {
	buf := make([]byte, 44)
	copy(buf[0:4], "RIFF")
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	copy(buf[36:40], "data")
	return buf
}

func TestDetect(t *testing.T) {
	for _, tt := range []struct {
		name string
		data []byte
		want string
	}{
		{"id3", []byte{0x49, 0x44, 0x33, 0x04, 0x00}, MP3},
		{"mpeg_sync", []byte{0xFF, 0xFB, 0x90, 0x00}, MP3},
		{"wav", wavHeader(), WAV},
		{"ogg", []byte{0x4F, 0x67, 0x67, 0x53, 0x00}, OGG},
		{"webm", []byte{0x1A, 0x45, 0xDF, 0xA3, 0x01}, WebM},
		{"zero_heavy", make([]byte, 64), PCM},
		{"empty", nil, PCM},
		{"short", []byte{0x52}, PCM},
		{"riff_not_wave", append([]byte("RIFFxxxxAVI "), 0), PCM},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.data); got != tt.want {
				t.Errorf("Detect = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsMP3(t *testing.T) {
	if !IsMP3([]byte("ID3\x04\x00")) {
		t.Error("ID3 header should be MP3")
	}
	if IsMP3(make([]byte, 16)) {
		t.Error("zero buffer should not be MP3")
	}
}

func TestStripWAV(t *testing.T) {
	body := []byte{1, 2, 3, 4}
	payload := append(wavHeader(), body...)
	got := StripWAV(payload)
	if len(got) != len(body) {
		t.Fatalf("stripped len = %d, want %d", len(got), len(body))
	}

	raw := []byte{9, 9, 9, 9}
	if got := StripWAV(raw); len(got) != len(raw) {
		t.Errorf("raw payload should pass through, got len %d", len(got))
	}
}

func TestSupport(t *testing.T) {
	s := Support()
	if !s[PCM] {
		t.Error("PCM must be supported")
	}
	if s[MP3] {
		t.Error("MP3 decode is not native")
	}
}
