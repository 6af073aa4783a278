package chain

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ammScope/internal/model"
)

// ErrMissingHeader is returned when a block document carries no header.
var ErrMissingHeader = errors.New("block header missing")

type blockDoc struct {
	Block *struct {
		Header *struct {
			Height string    `json:"height"`
			Time   time.Time `json:"time"`
		} `json:"header"`
		Data struct {
			Txs []string `json:"txs"`
		} `json:"data"`
	} `json:"block"`
}

type txResultDoc struct {
	Code   uint32        `json:"code"`
	Events []model.Event `json:"events"`
}

type resultsDoc struct {
	Height      string        `json:"height"`
	TxsResult   []txResultDoc `json:"txs_results"`
	TxResult    []txResultDoc `json:"tx_results"`
	BeginEvents []model.Event `json:"begin_block_events"`
	EndEvents   []model.Event `json:"end_block_events"`
	Finalize    []model.Event `json:"finalize_block_events"`
}

const (
	modeKey   = "mode"
	modeBegin = "BeginBlock"
	modeEnd   = "EndBlock"
)

// splitFinalize sorts finalize_block_events into begin and end events by their
// mode attribute, which is dropped. Events without a mode come from finalize
// itself and run after the txs, so they join the end events.
func splitFinalize(evs []model.Event) (begin, end []model.Event) {
	for _, ev := range evs {
		mode := ""
		attrs := make([]model.Attribute, 0, len(ev.Attributes))
		for _, attr := range ev.Attributes {
			if attr.Key == modeKey && (attr.Value == modeBegin || attr.Value == modeEnd) {
				mode = attr.Value
				continue
			}
			attrs = append(attrs, attr)
		}
		out := model.Event{Type: ev.Type, Attributes: attrs}
		if mode == modeBegin {
			begin = append(begin, out)
		} else {
			end = append(end, out)
		}
	}
	return begin, end
}

// Unwrap strips JSON-RPC style envelopes ({"result": ...}) until the payload is reached.
func Unwrap(raw json.RawMessage) json.RawMessage {
	for i := 0; i < 4; i++ {
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			return trimmed
		}
		var env map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return trimmed
		}
		inner, ok := env["result"]
		if !ok || len(env) > 3 {
			return trimmed
		}
		if _, isBlock := env["block"]; isBlock {
			return trimmed
		}
		raw = inner
	}
	return raw
}

// ParseLatestHeight reads sync_info.latest_block_height from a status document.
func ParseLatestHeight(raw json.RawMessage) (int64, error) {
	var doc struct {
		SyncInfo struct {
			LatestBlockHeight string `json:"latest_block_height"`
		} `json:"sync_info"`
	}
	if err := json.Unmarshal(Unwrap(raw), &doc); err != nil {
		return 0, fmt.Errorf("parse status: %w", err)
	}
	height, err := strconv.ParseInt(doc.SyncInfo.LatestBlockHeight, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse latest height %q: %w", doc.SyncInfo.LatestBlockHeight, err)
	}
	return height, nil
}

// ParseBlock joins a block document with its results document.
// Transactions are paired with results by position. Block-level events are
// read from begin/end_block_events or, on newer nodes, finalize_block_events.
func ParseBlock(blockRaw, resultsRaw json.RawMessage) (model.Block, error) {
	var bd blockDoc
	if err := json.Unmarshal(Unwrap(blockRaw), &bd); err != nil {
		return model.Block{}, fmt.Errorf("parse block: %w", err)
	}
	if bd.Block == nil || bd.Block.Header == nil {
		return model.Block{}, ErrMissingHeader
	}
	height, err := strconv.ParseInt(bd.Block.Header.Height, 10, 64)
	if err != nil {
		return model.Block{}, fmt.Errorf("parse block height %q: %w", bd.Block.Header.Height, err)
	}

	var rd resultsDoc
	if len(bytes.TrimSpace(resultsRaw)) > 0 {
		if err := json.Unmarshal(Unwrap(resultsRaw), &rd); err != nil {
			return model.Block{}, fmt.Errorf("parse block results: %w", err)
		}
	}
	results := rd.TxsResult
	if len(results) == 0 {
		results = rd.TxResult
	}

	begin, end := splitFinalize(rd.Finalize)
	block := model.Block{
		Height:      height,
		Time:        bd.Block.Header.Time.UTC(),
		Txs:         make([]model.Tx, 0, len(results)),
		BeginEvents: append(rd.BeginEvents, begin...),
		EndEvents:   append(rd.EndEvents, end...),
	}
	for i, res := range results {
		tx := model.Tx{Index: i, Code: res.Code, Events: res.Events}
		if i < len(bd.Block.Data.Txs) {
			tx.Hash = TxHash(bd.Block.Data.Txs[i])
		}
		block.Txs = append(block.Txs, tx)
	}
	return block, nil
}

// TxHash returns the uppercase hex SHA-256 of a base64 encoded transaction.
func TxHash(encoded string) string {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
