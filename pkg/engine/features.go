package engine

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// Features holds the beat-synchronous feature matrices consumed by
// RecurrenceGraph, per spec.md §4.3.
type Features struct {
	Chroma    [][]float64 // [n_beats][cqtBinsPerOctave*cqtOctaves], dB relative to max
	MFCC      [][]float64 // [n_beats][numMFCC]
	Amplitude []float64   // [n_beats]
	Tempo     float64     // beats per minute
}

const (
	featureHopSize   = 441 // 10ms at 44100Hz, matches the teacher's STFT hop convention
	cqtBinsPerOctave = 36
	cqtOctaves       = 7
	cqtMinFreq       = 32.70 // C1
	mfccFFTSize      = 2048
	mfccNumMelBins   = 40
	mfccNumCoeffs    = 13
)

// ExtractFeatures computes CQT chroma, MFCC, RMS amplitude over mono, then
// beat-synchronizes each against downbeats via median aggregation (spec.md
// §4.3's sync(X, btz, median)).
func ExtractFeatures(buf *SampleBuffer, downbeats []Downbeat) (*Features, error) {
	chromaFrames := computeCQTChroma(buf.Mono, buf.SampleRate, featureHopSize)
	mfccFrames := computeMFCC(buf.Mono, buf.SampleRate, featureHopSize)
	rmsFrames := computeFrameRMS(buf.Mono, featureHopSize)

	btz := beatsToFrames(downbeats, buf.SampleRate, featureHopSize)

	return &Features{
		Chroma:    syncMedian(chromaFrames, btz),
		MFCC:      syncMedian(mfccFrames, btz),
		Amplitude: syncMedian1D(rmsFrames, btz),
		Tempo:     estimateTempo(downbeats),
	}, nil
}

// beatsToFrames converts beat times to hop-indexed frame boundaries.
func beatsToFrames(downbeats []Downbeat, sampleRate, hopSize int) []int {
	btz := make([]int, len(downbeats))
	for i, d := range downbeats {
		btz[i] = int(d.TimeSec * float64(sampleRate) / float64(hopSize))
	}
	return btz
}

// syncMedian aggregates frames [nFrames][nBands] between successive
// boundaries in btz via per-band median, producing one row per beat.
func syncMedian(frames [][]float64, btz []int) [][]float64 {
	if len(frames) == 0 || len(btz) == 0 {
		return nil
	}
	nBands := len(frames[0])
	out := make([][]float64, len(btz))
	for i := range btz {
		start := btz[i]
		end := len(frames)
		if i+1 < len(btz) {
			end = btz[i+1]
		}
		if start < 0 {
			start = 0
		}
		if end > len(frames) {
			end = len(frames)
		}
		row := make([]float64, nBands)
		if start >= end {
			if start < len(frames) {
				copy(row, frames[start])
			}
			out[i] = row
			continue
		}
		col := make([]float64, 0, end-start)
		for b := 0; b < nBands; b++ {
			col = col[:0]
			for f := start; f < end; f++ {
				col = append(col, frames[f][b])
			}
			row[b] = median(col)
		}
		out[i] = row
	}
	return out
}

// syncMedian1D is syncMedian specialized to scalar-per-frame sequences.
func syncMedian1D(frames []float64, btz []int) []float64 {
	if len(frames) == 0 || len(btz) == 0 {
		return nil
	}
	out := make([]float64, len(btz))
	for i := range btz {
		start := btz[i]
		end := len(frames)
		if i+1 < len(btz) {
			end = btz[i+1]
		}
		if start < 0 {
			start = 0
		}
		if end > len(frames) {
			end = len(frames)
		}
		if start >= end {
			if start < len(frames) {
				out[i] = frames[start]
			}
			continue
		}
		out[i] = median(append([]float64(nil), frames[start:end]...))
	}
	return out
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sort.Float64s(xs)
	mid := len(xs) / 2
	if len(xs)%2 == 0 {
		return (xs[mid-1] + xs[mid]) / 2
	}
	return xs[mid]
}

// computeFrameRMS computes RMS amplitude over non-overlapping hop-sized
// frames.
func computeFrameRMS(mono []float32, hopSize int) []float64 {
	n := len(mono) / hopSize
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = rms(mono[i*hopSize : (i+1)*hopSize])
	}
	return out
}

// computeCQTChroma projects each hop-sized frame onto a constant-Q filter
// bank (36 bins/octave over 7 octaves from C1) and converts to dB relative
// to the per-frame max, per spec.md §4.3. The full 252-bin matrix is kept
// all the way through beat-sync and into RecurrenceGraph — matching the
// original's `C = librosa.amplitude_to_db(np.abs(cqt), ...)` fed at full
// width into `librosa.segment.recurrence_matrix`, not folded to a 12-bin
// pitch-class chroma. Grounded in the teacher's gonum/dsp/fourier FFT usage
// (analyzer/stft.go) generalized from a fixed-size STFT into a per-bin
// constant-Q kernel correlation — no CQT implementation exists anywhere in
// the example corpus, so this follows the textbook direct-kernel
// definition rather than an FFT-based fast CQT.
func computeCQTChroma(mono []float32, sampleRate, hopSize int) [][]float64 {
	nBins := cqtBinsPerOctave * cqtOctaves
	q := 1.0 / (math.Pow(2, 1.0/float64(cqtBinsPerOctave)) - 1.0)

	type kernel struct {
		freq   float64
		length int
	}
	kernels := make([]kernel, nBins)
	for b := 0; b < nBins; b++ {
		freq := cqtMinFreq * math.Pow(2, float64(b)/float64(cqtBinsPerOctave))
		length := int(math.Ceil(q * float64(sampleRate) / freq))
		if length < 2 {
			length = 2
		}
		kernels[b] = kernel{freq: freq, length: length}
	}

	nFrames := len(mono) / hopSize
	chroma := make([][]float64, nFrames)

	for f := 0; f < nFrames; f++ {
		center := f * hopSize
		mags := make([]float64, nBins)
		maxV := 0.0
		for b := 0; b < nBins; b++ {
			k := kernels[b]
			half := k.length / 2
			start := center - half
			re, im := 0.0, 0.0
			for n := 0; n < k.length; n++ {
				idx := start + n
				if idx < 0 || idx >= len(mono) {
					continue
				}
				wv := hannAt(n, k.length)
				phase := 2 * math.Pi * k.freq * float64(n) / float64(sampleRate)
				s := float64(mono[idx]) * wv
				re += s * math.Cos(phase)
				im -= s * math.Sin(phase)
			}
			mag := math.Sqrt(re*re + im*im)
			mags[b] = mag
			if mag > maxV {
				maxV = mag
			}
		}
		row := make([]float64, nBins)
		for i, v := range mags {
			row[i] = amplitudeToDB(v, maxV)
		}
		chroma[f] = row
	}
	return chroma
}

// hannAt evaluates a length-n Hann window at sample index i without
// allocating a full window slice per kernel.
func hannAt(i, n int) float64 {
	if n <= 1 {
		return 1
	}
	return 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
}

func amplitudeToDB(v, ref float64) float64 {
	const floor = 1e-10
	if ref < floor {
		ref = floor
	}
	if v < floor {
		v = floor
	}
	db := 20 * math.Log10(v/ref)
	if db < -80 {
		db = -80
	}
	return db
}

// computeMFCC computes a standard mel-filterbank + log + DCT-II MFCC
// pipeline on top of the teacher's gonum/dsp/fourier STFT primitive.
func computeMFCC(mono []float32, sampleRate, hopSize int) [][]float64 {
	samples := make([]float64, len(mono))
	for i, s := range mono {
		samples[i] = float64(s)
	}

	win := window.Hann(make([]float64, mfccFFTSize))
	fft := fourier.NewFFT(mfccFFTSize)
	numBins := mfccFFTSize/2 + 1

	melFB := melFilterbank(sampleRate, mfccFFTSize, mfccNumMelBins)

	nFrames := (len(samples) - mfccFFTSize) / hopSize
	if nFrames < 0 {
		nFrames = 0
	}

	out := make([][]float64, nFrames)
	frame := make([]float64, mfccFFTSize)
	for i := 0; i < nFrames; i++ {
		start := i * hopSize
		for j := 0; j < mfccFFTSize; j++ {
			if start+j < len(samples) {
				frame[j] = samples[start+j] * win[j]
			} else {
				frame[j] = 0
			}
		}
		coeffs := fft.Coefficients(nil, frame)

		power := make([]float64, numBins)
		for j := 0; j < numBins; j++ {
			re, im := real(coeffs[j]), imag(coeffs[j])
			power[j] = re*re + im*im
		}

		melEnergies := make([]float64, mfccNumMelBins)
		for m := 0; m < mfccNumMelBins; m++ {
			var sum float64
			for j, w := range melFB[m] {
				sum += w * power[j]
			}
			melEnergies[m] = math.Log(sum + 1e-10)
		}

		out[i] = dctII(melEnergies, mfccNumCoeffs)
	}
	return out
}

// melFilterbank builds a triangular mel filterbank of nMels filters over
// numBins FFT bins.
func melFilterbank(sampleRate, fftSize, nMels int) [][]float64 {
	numBins := fftSize/2 + 1
	hzToMel := func(hz float64) float64 { return 2595 * math.Log10(1+hz/700) }
	melToHz := func(mel float64) float64 { return 700 * (math.Pow(10, mel/2595) - 1) }

	lowMel := hzToMel(0)
	highMel := hzToMel(float64(sampleRate) / 2)

	points := make([]float64, nMels+2)
	for i := range points {
		points[i] = lowMel + (highMel-lowMel)*float64(i)/float64(nMels+1)
	}
	binPoints := make([]int, nMels+2)
	for i, p := range points {
		hz := melToHz(p)
		binPoints[i] = int(math.Floor((float64(fftSize) + 1) * hz / float64(sampleRate)))
	}

	fb := make([][]float64, nMels)
	for m := 0; m < nMels; m++ {
		fb[m] = make([]float64, numBins)
		left, center, right := binPoints[m], binPoints[m+1], binPoints[m+2]
		for k := left; k < center && k < numBins; k++ {
			if center > left {
				fb[m][k] = float64(k-left) / float64(center-left)
			}
		}
		for k := center; k < right && k < numBins; k++ {
			if right > center {
				fb[m][k] = float64(right-k) / float64(right-center)
			}
		}
	}
	return fb
}

// dctII computes the first numCoeffs coefficients of a type-II DCT; no
// gonum package implements DCT, so this follows the standard cosine-sum
// definition directly.
func dctII(x []float64, numCoeffs int) []float64 {
	n := len(x)
	out := make([]float64, numCoeffs)
	for k := 0; k < numCoeffs; k++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += x[i] * math.Cos(math.Pi/float64(n)*(float64(i)+0.5)*float64(k))
		}
		out[k] = sum
	}
	return out
}

// estimateTempo derives BPM from the median interval between consecutive
// downbeat entries (one beat apart), ignoring intervals outside 0.2s-2.0s,
// then halves or doubles the result into the 60-180 BPM range.
func estimateTempo(downbeats []Downbeat) float64 {
	if len(downbeats) < 2 {
		return 0
	}
	intervals := make([]float64, 0, len(downbeats)-1)
	for i := 1; i < len(downbeats); i++ {
		iv := downbeats[i].TimeSec - downbeats[i-1].TimeSec
		if iv > 0.2 && iv < 2.0 {
			intervals = append(intervals, iv)
		}
	}
	if len(intervals) == 0 {
		return 0
	}
	m := median(append([]float64(nil), intervals...))
	if m <= 0 {
		return 0
	}
	bpm := 60.0 / m
	for bpm < 60 {
		bpm *= 2
	}
	for bpm > 180 {
		bpm /= 2
	}
	return math.Round(bpm*100) / 100
}
