package model

// Position locates an action on chain.
type Position struct {
	Height   int64 `json:"height"`
	TxIndex  int   `json:"tx_index"`
	MsgIndex int   `json:"msg_index"`
}

// Compare orders positions by height, then tx index, then message index.
// It returns -1, 0 or 1.
func (p Position) Compare(o Position) int {
	switch {
	case p.Height != o.Height:
		return cmp(p.Height, o.Height)
	case p.TxIndex != o.TxIndex:
		return cmp(int64(p.TxIndex), int64(o.TxIndex))
	}
	return cmp(int64(p.MsgIndex), int64(o.MsgIndex))
}

// Less reports whether p comes strictly before o.
func (p Position) Less(o Position) bool {
	return p.Compare(o) < 0
}

func cmp(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
