package mesh

import (
	"encoding/json"

	"github.com/immxrtalbeast/firext/internal/domain"
	"github.com/immxrtalbeast/firext/internal/protocol"
	"github.com/immxrtalbeast/firext/internal/transfer"
)

// event is anything the dispatch loop consumes.
type event interface{}

type pollEvent struct {
	res *domain.PollResult
	err error
}

type signalEvent struct {
	peer     *peerConn
	fragment json.RawMessage
}

type connectEvent struct {
	peer *peerConn
}

type dataEvent struct {
	peer *peerConn
	data []byte
}

type closeEvent struct {
	peer *peerConn
}

type errorEvent struct {
	peer *peerConn
	err  error
}

// broadcastEvent carries a local edit to every connected peer.
type broadcastEvent struct {
	msg protocol.Message
}

type broadcastItemEvent struct {
	item transfer.Item
}
