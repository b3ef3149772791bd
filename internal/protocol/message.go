package protocol

import (
	"fmt"

	"github.com/immxrtalbeast/firext/internal/domain"
)

type Type string

const (
	TypeText        Type = "text"
	TypeAddImage    Type = "addImage"
	TypeRemoveImage Type = "removeImage"
	TypeAddFile     Type = "addFile"
	TypeRemoveFile  Type = "removeFile"
	TypeClear       Type = "clear"
	TypeSyncRequest Type = "syncRequest"
	TypeFullSync    Type = "fullSync"
	TypeStart       Type = "start"
	TypeChunk       Type = "chunk"
)

// Message is every data-channel message. Only the fields relevant to Type are
// set.
type Message struct {
	Type Type `json:"type" msgpack:"type"`

	Text  string           `json:"text,omitempty" msgpack:"text,omitempty"`
	Empty bool             `json:"empty,omitempty" msgpack:"empty,omitempty"`
	ID    string           `json:"id,omitempty" msgpack:"id,omitempty"`
	Image *domain.Image    `json:"image,omitempty" msgpack:"image,omitempty"`
	File  *domain.File     `json:"file,omitempty" msgpack:"file,omitempty"`
	State *domain.Snapshot `json:"state,omitempty" msgpack:"state,omitempty"`

	FileID      string           `json:"fileId,omitempty" msgpack:"fileId,omitempty"`
	TotalChunks int              `json:"totalChunks,omitempty" msgpack:"totalChunks,omitempty"`
	Kind        domain.ItemKind  `json:"kind,omitempty" msgpack:"kind,omitempty"`
	ItemID      string           `json:"itemId,omitempty" msgpack:"itemId,omitempty"`
	Meta        *domain.FileMeta `json:"meta,omitempty" msgpack:"meta,omitempty"`
	Index       int              `json:"index,omitempty" msgpack:"index,omitempty"`
	Data        []byte           `json:"data,omitempty" msgpack:"data,omitempty"`
}

func Text(text string) Message {
	return Message{Type: TypeText, Text: text}
}

func AddImage(img domain.Image) Message {
	return Message{Type: TypeAddImage, Image: &img}
}

func RemoveImage(id string) Message {
	return Message{Type: TypeRemoveImage, ID: id}
}

func AddFile(f domain.File) Message {
	return Message{Type: TypeAddFile, File: &f}
}

func RemoveFile(id string) Message {
	return Message{Type: TypeRemoveFile, ID: id}
}

func Clear() Message {
	return Message{Type: TypeClear}
}

// SyncRequest asks the remote side for its clipboard. empty tells it whether
// the requester holds anything worth keeping.
func SyncRequest(empty bool) Message {
	return Message{Type: TypeSyncRequest, Empty: empty}
}

func FullSync(snap domain.Snapshot) Message {
	return Message{Type: TypeFullSync, State: &snap}
}

func Start(fileID string, totalChunks int, kind domain.ItemKind, itemID string, meta *domain.FileMeta) Message {
	return Message{
		Type:        TypeStart,
		FileID:      fileID,
		TotalChunks: totalChunks,
		Kind:        kind,
		ItemID:      itemID,
		Meta:        meta,
	}
}

func Chunk(fileID string, index int, data []byte) Message {
	return Message{Type: TypeChunk, FileID: fileID, Index: index, Data: data}
}

// Validate checks that the fields required by m.Type are present.
func (m Message) Validate() error {
	switch m.Type {
	case TypeText, TypeClear, TypeSyncRequest:
	case TypeAddImage:
		if m.Image == nil || m.Image.ID == "" {
			return fmt.Errorf("addImage message missing image id")
		}
	case TypeAddFile:
		if m.File == nil || m.File.ID == "" {
			return fmt.Errorf("addFile message missing file id")
		}
	case TypeRemoveImage, TypeRemoveFile:
		if m.ID == "" {
			return fmt.Errorf("%s message missing id", m.Type)
		}
	case TypeFullSync:
		if m.State == nil {
			return fmt.Errorf("fullSync message missing state")
		}
	case TypeStart:
		if m.FileID == "" || m.ItemID == "" {
			return fmt.Errorf("start message missing fileId/itemId")
		}
		if m.TotalChunks <= 0 {
			return fmt.Errorf("start message has totalChunks=%d", m.TotalChunks)
		}
		switch m.Kind {
		case domain.KindImage:
		case domain.KindFile:
			if m.Meta == nil {
				return fmt.Errorf("start message for file missing meta")
			}
		default:
			return fmt.Errorf("start message has kind=%q", m.Kind)
		}
	case TypeChunk:
		if m.FileID == "" {
			return fmt.Errorf("chunk message missing fileId")
		}
		if m.Index < 0 {
			return fmt.Errorf("chunk message has index=%d", m.Index)
		}
	default:
		return fmt.Errorf("unknown message type %q", m.Type)
	}
	return nil
}
