package cache

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"time"
)

// ValidationResult is the outcome of a content-validation hook invocation.
type ValidationResult struct {
	IsValid     bool
	HashTime    time.Duration
	CompareTime time.Duration
	ContentSize int
}

// Validator checks bytes against an expected key (content hash).
type Validator interface {
	Validate(data []byte, expectedKey string) ValidationResult
}

// MD5Validator is the default Validator: expectedKey is compared against
// the hex MD5 of data, the content-key digest the CDN manifests carry.
type MD5Validator struct{}

func (MD5Validator) Validate(data []byte, expectedKey string) ValidationResult {
	hashStart := time.Now()
	sum := md5.Sum(data)
	hashTime := time.Since(hashStart)

	compareStart := time.Now()
	valid := hex.EncodeToString(sum[:]) == expectedKey
	compareTime := time.Since(compareStart)

	return ValidationResult{
		IsValid:     valid,
		HashTime:    hashTime,
		CompareTime: compareTime,
		ContentSize: len(data),
	}
}

// BatchCompareContent compares each (a, b) pair byte-for-byte and returns
// one verdict per pair, in order.
func BatchCompareContent(pairs [][2][]byte) []bool {
	out := make([]bool, len(pairs))
	for i, p := range pairs {
		out[i] = bytes.Equal(p[0], p[1])
	}
	return out
}

// ValidationStats is the running content-validation snapshot.
type ValidationStats struct {
	Total      int64
	Successful int64
	Failed     int64
	Skipped    int64
	Bytes      int64
	TotalTime  time.Duration
}

func (s ValidationStats) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Successful) / float64(s.Total)
}

func (s ValidationStats) AvgTimeMS() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.TotalTime.Milliseconds()) / float64(s.Total)
}

func (s ValidationStats) ThroughputBytesPerSec() float64 {
	if s.TotalTime <= 0 {
		return 0
	}
	return float64(s.Bytes) / s.TotalTime.Seconds()
}
