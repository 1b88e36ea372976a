package speech

import (
	"bytes"
	"fmt"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

const (
	flacBlockSize     = 4096
	flacBitsPerSample = 16
)

// encodeFLAC encodes mono s16 samples as a FLAC stream of verbatim frames.
func encodeFLAC(samples []int16, sampleRate int) ([]byte, error) {
	var buf bytes.Buffer
	info := &meta.StreamInfo{
		BlockSizeMin:  flacBlockSize,
		BlockSizeMax:  flacBlockSize,
		SampleRate:    uint32(sampleRate),
		NChannels:     1,
		BitsPerSample: flacBitsPerSample,
		NSamples:      uint64(len(samples)),
	}
	enc, err := flac.NewEncoder(&buf, info)
	if err != nil {
		return nil, fmt.Errorf("creating flac encoder: %w", err)
	}
	enc.EnablePredictionAnalysis(true)

	for start := 0; start < len(samples); start += flacBlockSize {
		end := min(start+flacBlockSize, len(samples))
		block := samples[start:end]

		samples32 := make([]int32, len(block))
		for i, s := range block {
			samples32[i] = int32(s)
		}

		f := &frame.Frame{
			Header: frame.Header{
				BlockSize:     uint16(len(block)),
				SampleRate:    uint32(sampleRate),
				Channels:      frame.ChannelsMono,
				BitsPerSample: flacBitsPerSample,
			},
			Subframes: []*frame.Subframe{{
				SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
				Samples:   samples32,
				NSamples:  len(block),
			}},
		}
		if err := enc.WriteFrame(f); err != nil {
			return nil, fmt.Errorf("writing flac frame: %w", err)
		}
	}

	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("closing flac encoder: %w", err)
	}
	return buf.Bytes(), nil
}
