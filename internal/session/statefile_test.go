package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStatefile = `<?xml version="1.0" encoding="UTF-8"?>
<Session version="7003" name="Mix" sample-rate="44100" end-is-free="0">
  <ProgramVersion created-with="Ardour 8.4.0" modified-with="Ardour 8.6.0"/>
  <Config>
    <Option name="audio-search-path" value=""/>
    <Option name="native-file-data-format" value="FormatFloat"/>
  </Config>
  <Sources>
    <Source name="never parsed"
`

func TestDecodeHeader_ReadsFields(t *testing.T) {
	h, err := DecodeHeader(strings.NewReader(sampleStatefile))
	require.NoError(t, err, "Decoding should stop before the truncated Sources element.")
	assert.Equal(t, 7003, h.Version)
	assert.Equal(t, 44100, h.SampleRate)
	assert.Equal(t, "FormatFloat", h.SampleFormat)
	assert.Equal(t, "Ardour 8.4.0", h.CreatedWith)
	assert.Equal(t, "Ardour 8.6.0", h.ModifiedWith)
}

func TestDecodeHeader_OldVersionAndMissingRate(t *testing.T) {
	h, err := DecodeHeader(strings.NewReader(`<Session version="2.0.0" name="Old"><Config/></Session>`))
	require.NoError(t, err)
	assert.Equal(t, 2000, h.Version)
	assert.Equal(t, 0, h.SampleRate, "A missing rate is unknown.")
}

func TestDecodeHeader_RejectsOtherDocuments(t *testing.T) {
	_, err := DecodeHeader(strings.NewReader(`<Template name="x"/>`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotStatefile))

	_, err = DecodeHeader(strings.NewReader(`<Session sample-rate="fast"/>`))
	assert.Error(t, err)

	_, err = DecodeHeader(strings.NewReader(``))
	assert.Error(t, err)
}

func TestReadHeader_MissingFile(t *testing.T) {
	_, err := ReadHeader(filepath.Join(t.TempDir(), "none.ardour"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
