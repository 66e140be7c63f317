package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodecMatches(t *testing.T) {
	caps := RTPCapabilities{Codecs: DefaultCodecs()}

	assert.True(t, CodecMatches("audio/opus", 48000, caps))
	assert.True(t, CodecMatches("AUDIO/OPUS", 48000, caps), "mime comparison is case insensitive")
	assert.True(t, CodecMatches("video/VP8", 90000, caps))
	assert.False(t, CodecMatches("audio/opus", 44100, caps), "clock rate must match exactly")
	assert.False(t, CodecMatches("video/H264", 90000, caps))
	assert.False(t, CodecMatches("audio/opus", 48000, RTPCapabilities{}))
}
