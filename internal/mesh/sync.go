package mesh

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/firext/internal/domain"
	"github.com/immxrtalbeast/firext/internal/protocol"
	"github.com/immxrtalbeast/firext/internal/transfer"
	"github.com/immxrtalbeast/firext/lib/logger/sl"
)

// SetText replaces the clipboard text and sends it to every peer.
func (c *Coordinator) SetText(text string) {
	if c.state.SetText(text) {
		c.post(broadcastEvent{msg: protocol.Text(text)})
	}
}

// AddImage stores data as a new image and sends it to every peer.
func (c *Coordinator) AddImage(data []byte) domain.Image {
	img := domain.Image{ID: uuid.NewString(), Data: data}
	if c.state.AddImage(img) {
		c.post(broadcastItemEvent{item: transfer.ImageItem(img)})
	}
	return img
}

// AddFile stores a new file and sends it to every peer.
func (c *Coordinator) AddFile(name, mimeType string, data []byte) domain.File {
	f := domain.File{
		ID:       uuid.NewString(),
		Name:     name,
		MimeType: mimeType,
		Size:     int64(len(data)),
		Data:     data,
	}
	if c.state.AddFile(f) {
		c.post(broadcastItemEvent{item: transfer.FileItem(f)})
	}
	return f
}

func (c *Coordinator) RemoveImage(id string) bool {
	if !c.state.RemoveImage(id) {
		return false
	}
	c.post(broadcastEvent{msg: protocol.RemoveImage(id)})
	return true
}

func (c *Coordinator) RemoveFile(id string) bool {
	if !c.state.RemoveFile(id) {
		return false
	}
	c.post(broadcastEvent{msg: protocol.RemoveFile(id)})
	return true
}

func (c *Coordinator) Clear() {
	c.state.Clear()
	c.post(broadcastEvent{msg: protocol.Clear()})
}

func (c *Coordinator) broadcast(msg protocol.Message) {
	for _, p := range c.connected() {
		c.send(p, msg)
	}
}

func (c *Coordinator) send(p *peerConn, msg protocol.Message) {
	data, err := c.codec.Encode(msg)
	if err != nil {
		c.log.Error("failed to encode message", slog.String("type", string(msg.Type)), sl.Err(err))
		return
	}
	if err := p.transport.Send(data); err != nil {
		c.log.Warn("failed to send message",
			slog.String("remote_id", p.remoteID),
			slog.String("type", string(msg.Type)),
			sl.Err(err),
		)
	}
}

// sendItem sends small items in place and streams large ones from their own
// goroutine under the peer's context.
func (c *Coordinator) sendItem(p *peerConn, item transfer.Item) {
	if c.sender.Inline(item) {
		if err := c.sender.Send(p.ctx, p.transport, item); err != nil {
			c.log.Warn("failed to send item", slog.String("remote_id", p.remoteID), sl.Err(err))
		}
		return
	}

	c.senders.Add(1)
	go func() {
		defer c.senders.Done()
		p.streamMu.Lock()
		defer p.streamMu.Unlock()
		if err := c.sender.Send(p.ctx, p.transport, item); err != nil {
			c.log.Info("transfer aborted",
				slog.String("remote_id", p.remoteID),
				slog.String("item_id", item.ID),
				sl.Err(err),
			)
		}
	}()
}

// sendFullSync answers a sync request. Text and the items that fit the inline
// budget travel in the fullSync itself. The rest follow as add operations so
// no single message outgrows the channel. An empty clipboard sends nothing.
func (c *Coordinator) sendFullSync(p *peerConn) {
	snap := c.state.Snapshot()
	if snap.IsEmpty() {
		return
	}
	packed, rest := packSnapshot(snap, c.sender.Options().InlineThreshold)

	c.send(p, protocol.FullSync(packed))
	for _, item := range rest {
		c.sendItem(p, item)
	}
	c.log.Debug("sent full sync",
		slog.String("remote_id", p.remoteID),
		slog.Int("packed", len(packed.Images)+len(packed.Files)),
		slog.Int("streamed", len(rest)),
	)
}

func packSnapshot(snap domain.Snapshot, budget int) (domain.Snapshot, []transfer.Item) {
	packed := domain.Snapshot{
		Text:   snap.Text,
		Images: []domain.Image{},
		Files:  []domain.File{},
	}
	var rest []transfer.Item

	used := 0
	for _, img := range snap.Images {
		if used+len(img.Data) <= budget {
			used += len(img.Data)
			packed.Images = append(packed.Images, img)
			continue
		}
		rest = append(rest, transfer.ImageItem(img))
	}
	for _, f := range snap.Files {
		if used+len(f.Data) <= budget {
			used += len(f.Data)
			packed.Files = append(packed.Files, f)
			continue
		}
		rest = append(rest, transfer.FileItem(f))
	}
	return packed, rest
}
