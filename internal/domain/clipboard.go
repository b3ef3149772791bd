package domain

type ItemKind string

const (
	KindImage ItemKind = "image"
	KindFile  ItemKind = "file"
)

type Image struct {
	ID   string `json:"id" msgpack:"id"`
	Data []byte `json:"data" msgpack:"data"`
}

type File struct {
	ID       string `json:"id" msgpack:"id"`
	Name     string `json:"name" msgpack:"name"`
	MimeType string `json:"mimeType" msgpack:"mimeType"`
	Size     int64  `json:"size" msgpack:"size"`
	Data     []byte `json:"data" msgpack:"data"`
}

// FileMeta is the descriptive part of a File sent ahead of its chunks.
type FileMeta struct {
	Name     string `json:"name" msgpack:"name"`
	MimeType string `json:"mimeType" msgpack:"mimeType"`
	Size     int64  `json:"size" msgpack:"size"`
}

func (f File) Meta() FileMeta {
	return FileMeta{Name: f.Name, MimeType: f.MimeType, Size: f.Size}
}

// Snapshot is an immutable copy of the clipboard.
type Snapshot struct {
	Text   string  `json:"text" msgpack:"text"`
	Images []Image `json:"images" msgpack:"images"`
	Files  []File  `json:"files" msgpack:"files"`
}

func (s Snapshot) IsEmpty() bool {
	return s.Text == "" && len(s.Images) == 0 && len(s.Files) == 0
}
