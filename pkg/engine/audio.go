package engine

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	gaaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
)

// silenceThreshold is the peak-magnitude floor below which a sample is
// considered silence for leading/trailing trim purposes.
const silenceThreshold = 0.01

// Additional samples go-mp3 produces beyond what the LAME header accounts
// for; see pkg/analysis/audio.go in the teacher repo, measured the same way.
const goMP3DecoderDelay = 924
const defaultEncoderDelay = 576

// LoadFile decodes path into a SampleBuffer at 44,100 Hz stereo, trims
// leading/trailing silence, and derives the mono and int16 stereo views.
// Supported formats: WAV, MP3, FLAC. OGG is recognized but unsupported: no
// Vorbis/OGG container decoder exists anywhere in the example corpus this
// engine was grounded on, so it fails fast instead of guessing at one.
func LoadFile(path string) (*SampleBuffer, error) {
	ext := strings.ToLower(filepath.Ext(path))

	var stereo [][2]float32
	var sampleRate int
	var err error

	switch ext {
	case ".mp3":
		stereo, sampleRate, err = loadMP3Stereo(path)
	case ".wav":
		stereo, sampleRate, err = loadWAVStereo(path)
	case ".flac":
		stereo, sampleRate, err = loadFLACStereo(path)
	case ".ogg":
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("ogg/vorbis decoding is not supported by this build")}
	default:
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("unsupported audio format: %s", ext)}
	}
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	stereo = trimSilence(stereo)
	if sampleRate != 44100 {
		stereo = resampleStereo(stereo, sampleRate, 44100)
		sampleRate = 44100
	}

	buf := &SampleBuffer{
		Stereo:     stereo,
		Mono:       make([]float32, len(stereo)),
		SampleRate: sampleRate,
	}
	for i, s := range stereo {
		buf.Mono[i] = (s[0] + s[1]) / 2.0
	}
	buf.DurationSec = float64(len(stereo)) / float64(sampleRate)
	buf.StereoPCM16 = encodeStereoPCM16(stereo)

	return buf, nil
}

// encodeStereoPCM16 packs stereo float samples into little-endian int16
// stereo bytes, 4 bytes per frame, matching the byte layout Beat index
// pairs address.
func encodeStereoPCM16(stereo [][2]float32) []byte {
	out := make([]byte, len(stereo)*4)
	for i, s := range stereo {
		l := clampInt16(s[0])
		r := clampInt16(s[1])
		binary.LittleEndian.PutUint16(out[i*4:], uint16(l))
		binary.LittleEndian.PutUint16(out[i*4+2:], uint16(r))
	}
	return out
}

func clampInt16(f float32) int16 {
	v := f * 32768.0
	if v > 32767 {
		v = 32767
	}
	if v < -32768 {
		v = -32768
	}
	return int16(v)
}

// trimSilence removes leading/trailing stereo frames whose peak magnitude
// stays below silenceThreshold, matching the behavior common DSP loaders
// (librosa's `effects.trim`, Mixxx's waveform loader) apply before analysis.
func trimSilence(stereo [][2]float32) [][2]float32 {
	n := len(stereo)
	start := 0
	for start < n && peak(stereo[start]) < silenceThreshold {
		start++
	}
	end := n
	for end > start && peak(stereo[end-1]) < silenceThreshold {
		end--
	}
	return stereo[start:end]
}

func peak(s [2]float32) float32 {
	a, b := s[0], s[1]
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	if a > b {
		return a
	}
	return b
}

// resampleStereo linearly resamples stereo audio between sample rates; the
// engine pipeline is specified against a fixed 44.1kHz grid (spec.md §3).
func resampleStereo(stereo [][2]float32, srcRate, dstRate int) [][2]float32 {
	if srcRate == dstRate || len(stereo) == 0 {
		return stereo
	}
	ratio := float64(srcRate) / float64(dstRate)
	newLen := int(float64(len(stereo)) / ratio)
	out := make([][2]float32, newLen)
	for i := 0; i < newLen; i++ {
		srcIdx := float64(i) * ratio
		idx := int(srcIdx)
		frac := float32(srcIdx - float64(idx))
		if idx+1 < len(stereo) {
			out[i][0] = stereo[idx][0]*(1-frac) + stereo[idx+1][0]*frac
			out[i][1] = stereo[idx][1]*(1-frac) + stereo[idx+1][1]*frac
		} else {
			out[i] = stereo[idx]
		}
	}
	return out
}

// loadMP3Stereo decodes path via go-mp3, applying the LAME encoder delay
// plus decoder delay compensation, and returns stereo float samples.
func loadMP3Stereo(path string) ([][2]float32, int, error) {
	totalDelay := readMP3Delay(path)

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, 0, fmt.Errorf("create mp3 decoder: %w", err)
	}
	sampleRate := decoder.SampleRate()

	pcmData, err := io.ReadAll(decoder)
	if err != nil {
		return nil, 0, fmt.Errorf("decode mp3: %w", err)
	}

	numFrames := len(pcmData) / 4
	stereo := make([][2]float32, numFrames)
	for i := range numFrames {
		offset := i * 4
		left := int16(binary.LittleEndian.Uint16(pcmData[offset:]))
		right := int16(binary.LittleEndian.Uint16(pcmData[offset+2:]))
		stereo[i] = [2]float32{float32(left) / 32768.0, float32(right) / 32768.0}
	}

	if len(stereo) > totalDelay {
		stereo = stereo[totalDelay:]
	}

	return stereo, sampleRate, nil
}

func readMP3Delay(path string) int {
	return readLAMEEncoderDelay(path) + goMP3DecoderDelay
}

func readLAMEEncoderDelay(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return defaultEncoderDelay
	}
	defer f.Close()

	buf := make([]byte, 4096)
	n, err := f.Read(buf)
	if err != nil || n < 200 {
		return defaultEncoderDelay
	}
	buf = buf[:n]

	lameIdx := bytes.Index(buf, []byte("LAME"))
	if lameIdx == -1 {
		return defaultEncoderDelay
	}

	delayOffset := lameIdx + 21
	if delayOffset+3 > len(buf) {
		return defaultEncoderDelay
	}

	b := buf[delayOffset : delayOffset+3]
	delay := (int(b[0]) << 4) | (int(b[1]) >> 4)
	if delay < 0 || delay > 4096 {
		return defaultEncoderDelay
	}
	return delay
}

// loadWAVStereo decodes path via go-audio/wav, upmixing mono to stereo if
// necessary.
func loadWAVStereo(path string) ([][2]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("not a valid wav file")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode wav: %w", err)
	}

	return pcmBufferToStereo(buf), int(dec.SampleRate), nil
}

func pcmBufferToStereo(buf *gaaudio.IntBuffer) [][2]float32 {
	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	maxVal := float32(int(1) << (uint(buf.SourceBitDepth) - 1))
	if buf.SourceBitDepth == 0 {
		maxVal = 32768.0
	}

	numFrames := len(buf.Data) / channels
	stereo := make([][2]float32, numFrames)
	for i := 0; i < numFrames; i++ {
		l := float32(buf.Data[i*channels]) / maxVal
		r := l
		if channels > 1 {
			r = float32(buf.Data[i*channels+1]) / maxVal
		}
		stereo[i] = [2]float32{l, r}
	}
	return stereo
}

// loadFLACStereo decodes path via mewkiz/flac, upmixing mono to stereo.
func loadFLACStereo(path string) ([][2]float32, int, error) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("parse flac: %w", err)
	}
	defer stream.Close()

	sampleRate := int(stream.Info.SampleRate)
	channels := int(stream.Info.NChannels)
	bitsPerSample := int(stream.Info.BitsPerSample)
	maxVal := float64(int64(1) << uint(bitsPerSample-1))

	var stereo [][2]float32
	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("decode flac frame: %w", err)
		}
		numSamples := len(frame.Subframes[0].Samples)
		for i := 0; i < numSamples; i++ {
			l := float32(float64(frame.Subframes[0].Samples[i]) / maxVal)
			r := l
			if channels > 1 {
				r = float32(float64(frame.Subframes[1].Samples[i]) / maxVal)
			}
			stereo = append(stereo, [2]float32{l, r})
		}
	}

	return stereo, sampleRate, nil
}

// rms computes root-mean-square amplitude of a mono slice; used by
// FeatureExtractor's amplitude envelope (silence trimming uses peak instead).
func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
