package transfer

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/firext/internal/domain"
	"github.com/immxrtalbeast/firext/internal/protocol"
)

type Sender struct {
	codec *protocol.Codec
	opts  Options
	log   *slog.Logger
}

func NewSender(codec *protocol.Codec, opts Options, log *slog.Logger) *Sender {
	if log == nil {
		log = slog.Default()
	}
	return &Sender{codec: codec, opts: opts.withDefaults(), log: log}
}

func (s *Sender) Options() Options {
	return s.opts
}

// Inline reports whether item fits in a single message.
func (s *Sender) Inline(item Item) bool {
	return len(item.Data) <= s.opts.InlineThreshold
}

// Send delivers item over ch, inline when it is small enough and as a chunked
// transfer otherwise. A failed send or a cancelled ctx aborts the transfer.
func (s *Sender) Send(ctx context.Context, ch Channel, item Item) error {
	const op = "transfer.send"

	if s.Inline(item) {
		return s.sendMessage(op, ch, inlineMessage(item))
	}

	fileID := uuid.NewString()
	total := ChunkCount(len(item.Data), s.opts.ChunkSize)
	log := s.log.With(
		slog.String("op", op),
		slog.String("file_id", fileID),
		slog.String("item_id", item.ID),
		slog.Int("chunks", total),
	)

	if err := s.sendMessage(op, ch, protocol.Start(fileID, total, item.Kind, item.ID, item.Meta)); err != nil {
		return err
	}

	for i := 0; i < total; i++ {
		if err := s.waitForWindow(ctx, ch); err != nil {
			log.Debug("transfer aborted", slog.Int("index", i))
			return domain.NewError(op, err, "waiting for buffer")
		}

		start := i * s.opts.ChunkSize
		end := min(start+s.opts.ChunkSize, len(item.Data))
		if err := s.sendMessage(op, ch, protocol.Chunk(fileID, i, item.Data[start:end])); err != nil {
			log.Debug("transfer aborted", slog.Int("index", i))
			return err
		}
	}

	log.Debug("transfer sent")
	return nil
}

func (s *Sender) waitForWindow(ctx context.Context, ch Channel) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ch.BufferedAmount() <= s.opts.HighWaterMark {
		return nil
	}

	timer := time.NewTimer(s.opts.PaceDelay)
	defer timer.Stop()
	for ch.BufferedAmount() > s.opts.HighWaterMark {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			timer.Reset(s.opts.PaceDelay)
		}
	}
	return nil
}

func (s *Sender) sendMessage(op string, ch Channel, m protocol.Message) error {
	data, err := s.codec.Encode(m)
	if err != nil {
		return domain.NewError(op, err, "encoding "+string(m.Type))
	}
	if err := ch.Send(data); err != nil {
		return domain.NewError(op, err, "sending "+string(m.Type))
	}
	return nil
}

func inlineMessage(item Item) protocol.Message {
	if item.Kind == domain.KindImage {
		return protocol.AddImage(domain.Image{ID: item.ID, Data: item.Data})
	}
	f := domain.File{ID: item.ID, Data: item.Data}
	if item.Meta != nil {
		f.Name = item.Meta.Name
		f.MimeType = item.Meta.MimeType
		f.Size = item.Meta.Size
	}
	return protocol.AddFile(f)
}
