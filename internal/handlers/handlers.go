package handlers

import (
	"github.com/404minds/gt06-receiver/internal/protocols/gt06"
	"github.com/404minds/gt06-receiver/internal/store"
)

// NewTcpHandler wires decoded positions into dataStore and, when feed is not nil, the live feed.
func NewTcpHandler(decoder *gt06.Decoder, dataStore store.Store, feed *LiveFeed) *TcpHandler {
	return &TcpHandler{
		decoder:   decoder,
		dataStore: dataStore,
		feed:      feed,
	}
}
