// Package transfer moves clipboard items larger than one data-channel message
// as a start message followed by indexed chunks.
package transfer

import (
	"time"

	"github.com/immxrtalbeast/firext/internal/domain"
)

const (
	DefaultChunkSize       = 16 << 10
	DefaultInlineThreshold = 16 << 10
	DefaultHighWaterMark   = 256 << 10
	DefaultPaceDelay       = 10 * time.Millisecond

	// MaxChunks bounds the record a start message may allocate.
	MaxChunks = 1 << 16
	// MaxOpenTransfers bounds the unfinished transfers one peer may hold.
	MaxOpenTransfers = 8
)

// Channel is the part of a transport the sender needs.
type Channel interface {
	Send(data []byte) error
	BufferedAmount() uint64
}

type Options struct {
	ChunkSize       int
	InlineThreshold int
	HighWaterMark   uint64
	PaceDelay       time.Duration
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.InlineThreshold <= 0 {
		o.InlineThreshold = DefaultInlineThreshold
	}
	if o.HighWaterMark == 0 {
		o.HighWaterMark = DefaultHighWaterMark
	}
	if o.PaceDelay <= 0 {
		o.PaceDelay = DefaultPaceDelay
	}
	return o
}

// Item is an image or file about to be sent.
type Item struct {
	Kind domain.ItemKind
	ID   string
	Data []byte
	Meta *domain.FileMeta
}

func ImageItem(img domain.Image) Item {
	return Item{Kind: domain.KindImage, ID: img.ID, Data: img.Data}
}

func FileItem(f domain.File) Item {
	meta := f.Meta()
	return Item{Kind: domain.KindFile, ID: f.ID, Data: f.Data, Meta: &meta}
}

// ChunkCount returns how many chunks size bytes split into.
func ChunkCount(size, chunkSize int) int {
	if size <= 0 {
		return 1
	}
	return (size + chunkSize - 1) / chunkSize
}
