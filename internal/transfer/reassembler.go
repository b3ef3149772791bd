package transfer

import (
	"fmt"

	"github.com/immxrtalbeast/firext/internal/domain"
	"github.com/immxrtalbeast/firext/internal/protocol"
)

type incoming struct {
	itemID   string
	kind     domain.ItemKind
	meta     *domain.FileMeta
	chunks   [][]byte
	received int
}

// Reassembler rebuilds chunked transfers from one remote peer. It is not safe
// for concurrent use.
type Reassembler struct {
	transfers map[string]*incoming
}

func NewReassembler() *Reassembler {
	return &Reassembler{transfers: make(map[string]*incoming)}
}

// Start opens a transfer record. Repeating an identical start is a no-op.
func (r *Reassembler) Start(m protocol.Message) error {
	if m.TotalChunks <= 0 || m.TotalChunks > MaxChunks {
		return malformed("start for %s has totalChunks=%d", m.FileID, m.TotalChunks)
	}
	if existing, ok := r.transfers[m.FileID]; ok {
		if existing.itemID != m.ItemID || existing.kind != m.Kind || len(existing.chunks) != m.TotalChunks {
			return malformed("conflicting start for %s", m.FileID)
		}
		return nil
	}
	if len(r.transfers) >= MaxOpenTransfers {
		return malformed("start for %s exceeds %d open transfers", m.FileID, MaxOpenTransfers)
	}

	r.transfers[m.FileID] = &incoming{
		itemID: m.ItemID,
		kind:   m.Kind,
		meta:   m.Meta,
		chunks: make([][]byte, m.TotalChunks),
	}
	return nil
}

// Chunk stores one chunk. When it completes the transfer the whole item is
// returned as an add message. Chunks for unknown transfers and repeats of a
// filled slot are ignored.
func (r *Reassembler) Chunk(m protocol.Message) (*protocol.Message, error) {
	in, ok := r.transfers[m.FileID]
	if !ok {
		return nil, nil
	}
	if m.Index < 0 || m.Index >= len(in.chunks) {
		return nil, malformed("chunk %d out of range for %s", m.Index, m.FileID)
	}
	if in.chunks[m.Index] != nil {
		return nil, nil
	}

	data := m.Data
	if data == nil {
		data = []byte{}
	}
	in.chunks[m.Index] = data
	in.received++
	if in.received < len(in.chunks) {
		return nil, nil
	}

	delete(r.transfers, m.FileID)
	msg := in.assemble()
	return &msg, nil
}

// Pending returns the number of unfinished transfers.
func (r *Reassembler) Pending() int {
	return len(r.transfers)
}

// Reset discards every unfinished transfer.
func (r *Reassembler) Reset() {
	clear(r.transfers)
}

func (in *incoming) assemble() protocol.Message {
	size := 0
	for _, c := range in.chunks {
		size += len(c)
	}
	data := make([]byte, 0, size)
	for _, c := range in.chunks {
		data = append(data, c...)
	}

	if in.kind == domain.KindImage {
		return protocol.AddImage(domain.Image{ID: in.itemID, Data: data})
	}

	f := domain.File{ID: in.itemID, Data: data, Size: int64(len(data))}
	if in.meta != nil {
		f.Name = in.meta.Name
		f.MimeType = in.meta.MimeType
		if in.meta.Size > 0 {
			f.Size = in.meta.Size
		}
	}
	return protocol.AddFile(f)
}

func malformed(format string, args ...any) error {
	return domain.WrapError("transfer.reassemble", domain.ErrMalformedMessage, fmt.Errorf(format, args...))
}
