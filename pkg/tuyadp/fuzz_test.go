// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tuyadp

import (
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// randomRecords builds 0-4 records with random DPs and payloads
func randomRecords(rng *rand.Rand) []RawFrame {
	n := rng.Intn(5)
	records := make([]RawFrame, 0, n)
	for i := 0; i < n; i++ {
		data := make([]byte, rng.Intn(9))
		rng.Read(data)
		records = append(records, RawFrame{
			DP:   DataPointID(rng.Intn(30)),
			Type: DataType(rng.Intn(6)),
			Data: data,
		})
	}
	return records
}

func TestFuzz_RandomFramesRoundTrip(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		cmd := Command(rng.Intn(4))
		seq := uint16(rng.Intn(0x10000))
		records := randomRecords(rng)

		encoded, err := EncodeFrameFromValues(cmd, seq, records)
		if err != nil {
			t.Fatalf("round %d: encode failed: %v", i, err)
		}

		frames, err := NewDecoder().Decode(encoded)
		if err != nil {
			t.Fatalf("round %d: decode failed: %v", i, err)
		}
		if len(frames) != 1 {
			t.Fatalf("round %d: expected 1 frame, got %d", i, len(frames))
		}
		if frames[0].Seq() != seq || len(frames[0].Records()) != len(records) {
			t.Fatalf("round %d: frame mismatch", i)
		}

		// Every record must decode without panicking
		for _, r := range frames[0].Records() {
			_, _ = Decode(r)
			_ = FormatRecord(r)
		}
	}
}

func TestFuzz_RandomBytesNoPanic(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()
	d := NewDecoder()
	stats := NewStatistics()

	for i := 0; i < rounds; i++ {
		buf := make([]byte, rng.Intn(64))
		rng.Read(buf)
		if rng.Intn(2) == 0 && len(buf) > 0 {
			buf[0] = StartByte
		}
		for _, b := range buf {
			f, err := d.DecodeByte(b)
			if err != nil || f != nil {
				stats.Update(f, err)
			}
		}
	}
	t.Logf("frames=%d errors=%d", stats.Snapshot().TotalFrames, stats.Snapshot().Errors())
}
