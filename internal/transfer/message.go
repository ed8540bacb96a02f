package transfer

// Kind identifies a transfer message on the wire.
type Kind string

// Wire names of the three transfer messages.
const (
	KindMetadata = Kind("file-metadata")
	KindChunk    = Kind("file-chunk")
	KindComplete = Kind("file-transfer-complete")
)

// Message is one of FileMetadata, FileChunk or TransferComplete.
type Message interface {
	Kind() Kind
}

// FileMetadata describes the file about to be streamed. It is always the first message.
type FileMetadata struct {
	Name     string `msgpack:"name"`
	Size     uint64 `msgpack:"size"`
	MimeType string `msgpack:"type"`
}

// FileChunk carries the bytes [Offset, Offset+len(Data)) of the file.
type FileChunk struct {
	Data   []byte `msgpack:"chunk"`
	Offset uint64 `msgpack:"offset"`
}

// TransferComplete is sent once, after the last chunk.
type TransferComplete struct{}

func (FileMetadata) Kind() Kind     { return KindMetadata }
func (FileChunk) Kind() Kind        { return KindChunk }
func (TransferComplete) Kind() Kind { return KindComplete }
