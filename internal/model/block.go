package model

import "time"

// Attribute is one key/value pair of a chain event.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Event is a typed chain event. Attribute order is preserved and keys may repeat.
type Event struct {
	Type       string      `json:"type"`
	Attributes []Attribute `json:"attributes"`
}

// Tx is one transaction result inside a block.
type Tx struct {
	Index  int     `json:"index"`
	Hash   string  `json:"hash"`
	Code   uint32  `json:"code"`
	Events []Event `json:"events"`
}

// Block joins a height's header with its execution results.
// BeginEvents and EndEvents hold block-level events outside any tx.
type Block struct {
	Height      int64     `json:"height"`
	Time        time.Time `json:"time"`
	Txs         []Tx      `json:"txs"`
	BeginEvents []Event   `json:"begin_events,omitempty"`
	EndEvents   []Event   `json:"end_events,omitempty"`
}
