package dirstate

import (
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// DefaultBlockSize is the fixed block size used by the sync protocol.
const DefaultBlockSize uint64 = 128 << 10

// Counter keys of a raw per-item download progress record.
const (
	CounterPulling             = "Pulling"
	CounterPulled              = "Pulled"
	CounterTotal               = "Total"
	CounterCopiedFromOrigin    = "CopiedFromOrigin"
	CounterCopiedFromElsewhere = "CopiedFromElsewhere"
	CounterReused              = "Reused"
	CounterBytesDone           = "BytesDone"
	CounterBytesTotal          = "BytesTotal"
)

// ProgressCounters is a raw progress record as decoded from the event stream.
type ProgressCounters map[string]any

// SizeFormatter renders a byte count for display.
type SizeFormatter func(bytes uint64) string

// HumanizeSize formats sizes with binary units, e.g. "1.5 MiB".
func HumanizeSize(bytes uint64) string {
	return humanize.IBytes(bytes)
}

// DownloadProgress is the immutable progress of one item being pulled.
type DownloadProgress struct {
	RelativePath              string `json:"relativePath" yaml:"relativePath"`
	AbsolutePath              string `json:"absolutePath" yaml:"absolutePath"`
	BlocksPulling             uint64 `json:"blocksPulling" yaml:"blocksPulling"`
	BlocksPulled              uint64 `json:"blocksPulled" yaml:"blocksPulled"`
	BlocksTotal               uint64 `json:"blocksTotal" yaml:"blocksTotal"`
	BlocksCopiedFromOrigin    uint64 `json:"blocksCopiedFromOrigin" yaml:"blocksCopiedFromOrigin"`
	BlocksCopiedFromElsewhere uint64 `json:"blocksCopiedFromElsewhere" yaml:"blocksCopiedFromElsewhere"`
	BlocksReused              uint64 `json:"blocksReused" yaml:"blocksReused"`
	BytesDone                 uint64 `json:"bytesDone" yaml:"bytesDone"`
	BytesTotal                uint64 `json:"bytesTotal" yaml:"bytesTotal"`
	Percentage                int    `json:"percentage" yaml:"percentage"`
	Label                     string `json:"label" yaml:"label"`
}

// ProgressBuilder builds DownloadProgress values with a given block size and
// size formatter.
type ProgressBuilder struct {
	BlockSize  uint64
	FormatSize SizeFormatter
}

// NewProgressBuilder returns a builder using the protocol block size and
// binary unit formatting.
func NewProgressBuilder() *ProgressBuilder {
	return &ProgressBuilder{
		BlockSize:  DefaultBlockSize,
		FormatSize: HumanizeSize,
	}
}

// BuildProgress builds a DownloadProgress with the default builder.
func BuildProgress(dirPath, relativePath string, counters ProgressCounters) DownloadProgress {
	return NewProgressBuilder().Build(dirPath, relativePath, counters)
}

// Build computes the progress of relativePath inside dirPath from raw counters.
// Missing or malformed counters are treated as zero.
func (b *ProgressBuilder) Build(dirPath, relativePath string, counters ProgressCounters) DownloadProgress {
	p := DownloadProgress{
		RelativePath:              relativePath,
		AbsolutePath:              dirPath + "/" + strings.ReplaceAll(relativePath, `\`, "/"),
		BlocksPulling:             counters.get(CounterPulling),
		BlocksPulled:              counters.get(CounterPulled),
		BlocksTotal:               counters.get(CounterTotal),
		BlocksCopiedFromOrigin:    counters.get(CounterCopiedFromOrigin),
		BlocksCopiedFromElsewhere: counters.get(CounterCopiedFromElsewhere),
		BlocksReused:              counters.get(CounterReused),
		BytesDone:                 counters.get(CounterBytesDone),
		BytesTotal:                counters.get(CounterBytesTotal),
	}
	p.Percentage = percentOf(p.BlocksPulled, p.BlocksTotal)
	p.Label = b.label(p.BlocksPulled, p.BlocksTotal, p.Percentage)
	return p
}

func (b *ProgressBuilder) label(pulled, total uint64, percentage int) string {
	blockSize := b.BlockSize
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}
	format := b.FormatSize
	if format == nil {
		format = HumanizeSize
	}
	return fmt.Sprintf("%s / %s - %d %%", format(blocksToBytes(pulled, blockSize)), format(blocksToBytes(total, blockSize)), percentage)
}

// blocksToBytes multiplies, saturating at math.MaxUint64.
func blocksToBytes(blocks, blockSize uint64) uint64 {
	hi, lo := bits.Mul64(blocks, blockSize)
	if hi != 0 {
		return math.MaxUint64
	}
	return lo
}

// percentOf returns floor(done*100/total) clamped to 0..100, or 0 unless both
// are positive. The product is computed in 128 bits.
func percentOf(done, total uint64) int {
	if done == 0 || total == 0 {
		return 0
	}
	if done >= total {
		return 100
	}
	// done < total keeps hi below total, as bits.Div64 requires
	hi, lo := bits.Mul64(done, 100)
	pct, _ := bits.Div64(hi, lo, total)
	return int(pct)
}

func (c ProgressCounters) get(key string) uint64 {
	v, ok := c[key]
	if !ok {
		return 0
	}
	return toCount(v)
}

// toCount converts a decoded JSON value to a non-negative integer, truncating
// fractions. Anything unparseable or negative becomes 0.
func toCount(v any) uint64 {
	switch n := v.(type) {
	case float64:
		if n <= 0 || math.IsNaN(n) {
			return 0
		}
		if n >= math.MaxUint64 {
			return math.MaxUint64
		}
		return uint64(n)
	case float32:
		return toCount(float64(n))
	case int:
		return nonNegative(int64(n))
	case int32:
		return nonNegative(int64(n))
	case int64:
		return nonNegative(n)
	case uint:
		return uint64(n)
	case uint32:
		return uint64(n)
	case uint64:
		return n
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0
		}
		return nonNegative(i)
	case interface{ Int64() (int64, error) }:
		i, err := n.Int64()
		if err != nil {
			return 0
		}
		return nonNegative(i)
	default:
		return 0
	}
}

func nonNegative(i int64) uint64 {
	if i < 0 {
		return 0
	}
	return uint64(i)
}

// DownloadSummary aggregates the in-flight downloads of one directory.
type DownloadSummary struct {
	Items        int    `json:"items" yaml:"items"`
	BlocksPulled uint64 `json:"blocksPulled" yaml:"blocksPulled"`
	BlocksTotal  uint64 `json:"blocksTotal" yaml:"blocksTotal"`
	BytesDone    uint64 `json:"bytesDone" yaml:"bytesDone"`
	BytesTotal   uint64 `json:"bytesTotal" yaml:"bytesTotal"`
	Percentage   int    `json:"percentage" yaml:"percentage"`
	Label        string `json:"label" yaml:"label"`
}

// Summarize aggregates a set of item progresses.
func (b *ProgressBuilder) Summarize(items []DownloadProgress) DownloadSummary {
	s := DownloadSummary{Items: len(items)}
	if len(items) == 0 {
		return s
	}
	for _, p := range items {
		s.BlocksPulled += p.BlocksPulled
		s.BlocksTotal += p.BlocksTotal
		s.BytesDone += p.BytesDone
		s.BytesTotal += p.BytesTotal
	}
	s.Percentage = percentOf(s.BlocksPulled, s.BlocksTotal)
	s.Label = b.label(s.BlocksPulled, s.BlocksTotal, s.Percentage)
	return s
}
