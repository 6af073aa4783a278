// Package events turns a block's transaction results into typed AMM actions.
package events

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"ammScope/internal/amount"
	"ammScope/internal/model"
)

// Kind is the contract action an extracted event represents.
type Kind string

const (
	KindCreatePair Kind = "create_pair"
	KindSwap       Kind = "swap"
	KindProvide    Kind = "provide_liquidity"
	KindWithdraw   Kind = "withdraw_liquidity"
)

// DefaultPairType is used when a create_pair event names no pair type.
const DefaultPairType = "xyk"

// Config carries the contract addresses the extractor filters on.
type Config struct {
	Factory     string
	Router      string
	NativeDenom string
}

// Action is one typed AMM action. Fields not relevant to Kind are empty, and
// malformed amounts are empty rather than errors.
type Action struct {
	Kind     Kind
	Contract string
	Height   int64
	Time     time.Time
	TxHash   string
	TxIndex  int
	MsgIndex int
	Signer   string
	IsRouter bool

	// create_pair
	Pool       string
	BaseDenom  string
	QuoteDenom string
	PairType   string

	// swap
	OfferDenom   string
	OfferAmount  string
	AskDenom     string
	ReturnAmount string

	// swap and liquidity
	Reserves ReserveEncoding
	Share    string
}

// Position returns the chain position of the action.
func (a Action) Position() model.Position {
	return model.Position{Height: a.Height, TxIndex: a.TxIndex, MsgIndex: a.MsgIndex}
}

// PoolAddress is the pair contract the action refers to.
func (a Action) PoolAddress() string {
	if a.Kind == KindCreatePair {
		return a.Pool
	}
	return a.Contract
}

// Denoms lists the non-empty denoms the action mentions.
func (a Action) Denoms() []string {
	candidates := []string{a.BaseDenom, a.QuoteDenom, a.OfferDenom, a.AskDenom}
	for _, leg := range a.Reserves.Resolve() {
		candidates = append(candidates, leg.Denom)
	}
	out := candidates[:0]
	for _, d := range candidates {
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

// Result collects everything extracted from one block.
type Result struct {
	Actions []Action
	// Pools are pair addresses referenced by swap and liquidity actions, first seen first.
	Pools []string
	// Denoms are deduplicated denoms for metadata enrichment.
	Denoms []string
	// Signers maps tx hash to message index to signing address.
	Signers map[string]map[int]string
}

// Extractor classifies block events. It performs no I/O.
type Extractor struct {
	cfg    Config
	logger *zap.Logger
}

func NewExtractor(cfg Config, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{cfg: cfg, logger: logger}
}

// Walk streams the block's actions in chain order. It stops at the first error fn returns.
func (e *Extractor) Walk(block model.Block, fn func(Action) error) error {
	for _, tx := range block.Txs {
		if tx.Code != 0 {
			continue
		}
		for _, action := range e.extractTx(block, tx, SignerMap(tx.Events)) {
			if err := fn(action); err != nil {
				return err
			}
		}
	}
	return nil
}

// Extract collects all actions of a block together with its pool and denom sets.
func (e *Extractor) Extract(block model.Block) Result {
	res := Result{Signers: make(map[string]map[int]string)}
	poolSeen := make(map[string]struct{})
	denomSeen := make(map[string]struct{})

	for _, tx := range block.Txs {
		if tx.Code != 0 {
			continue
		}
		signers := SignerMap(tx.Events)
		if len(signers) > 0 {
			res.Signers[tx.Hash] = signers
		}
		for _, action := range e.extractTx(block, tx, signers) {
			res.Actions = append(res.Actions, action)
			if action.Kind != KindCreatePair {
				if _, ok := poolSeen[action.Contract]; !ok {
					poolSeen[action.Contract] = struct{}{}
					res.Pools = append(res.Pools, action.Contract)
				}
			}
			for _, denom := range action.Denoms() {
				if _, ok := denomSeen[denom]; !ok {
					denomSeen[denom] = struct{}{}
					res.Denoms = append(res.Denoms, denom)
				}
			}
		}
	}
	return res
}

// SignerMap maps message index to sender using `message` events. Events without
// msg_index are numbered by the `action` attribute that opens each message.
func SignerMap(evs []model.Event) map[int]string {
	out := make(map[int]string)
	cur := -1
	for _, ev := range evs {
		if ev.Type != "message" {
			continue
		}
		a := Attrs(ev.Attributes)
		idx, ok := a.Int(keyMsgIndex)
		if !ok {
			if a.has(keyAction) || cur < 0 {
				cur++
			}
			idx = cur
		}
		sender := a.Value(keySender)
		if sender == "" {
			continue
		}
		if _, exists := out[idx]; !exists {
			out[idx] = sender
		}
	}
	return out
}

type found struct {
	kind Kind
	seg  Attrs
}

// anyMsg marks router executions that carry no msg_index.
const anyMsg = -1

func (e *Extractor) extractTx(block model.Block, tx model.Tx, signers map[int]string) []Action {
	var (
		registers       []string
		lastInstantiate string
		routerMsgs      = make(map[int]bool)
		hits            []found
	)

	for _, ev := range tx.Events {
		switch {
		case ev.Type == "instantiate":
			for _, seg := range segments(ev) {
				if v := seg.Value(keyContract); v != "" {
					lastInstantiate = v
				}
			}
		case ev.Type == "execute":
			if e.cfg.Router == "" {
				continue
			}
			for _, seg := range segments(ev) {
				if seg.Value(keyContract) != e.cfg.Router {
					continue
				}
				idx, ok := seg.Int(keyMsgIndex)
				if !ok {
					idx = anyMsg
				}
				routerMsgs[idx] = true
			}
		case isContractEvent(ev.Type):
			for _, seg := range segments(ev) {
				switch act := Kind(actionOf(ev.Type, seg)); act {
				case "register":
					if v := seg.Value("pair_contract_addr"); v != "" {
						registers = append(registers, v)
					}
				case KindCreatePair, KindSwap, KindProvide, KindWithdraw:
					hits = append(hits, found{kind: act, seg: seg})
				}
			}
		}
	}

	ordinals := make(map[Kind]int)
	creates := 0
	var out []Action
	for _, hit := range hits {
		ordinal := ordinals[hit.kind]
		ordinals[hit.kind]++

		base := Action{
			Kind:     hit.kind,
			Contract: hit.seg.Value(keyContract),
			Height:   block.Height,
			Time:     block.Time,
			TxHash:   tx.Hash,
			TxIndex:  tx.Index,
			MsgIndex: ordinal,
		}
		if idx, ok := hit.seg.Int(keyMsgIndex); ok {
			base.MsgIndex = idx
		}

		switch hit.kind {
		case KindCreatePair:
			if e.cfg.Factory == "" || base.Contract != e.cfg.Factory {
				continue
			}
			pairAddr := lastInstantiate
			if creates < len(registers) {
				pairAddr = registers[creates]
			}
			creates++
			action, ok := e.createPair(base, hit.seg, pairAddr, signers)
			if !ok {
				continue
			}
			out = append(out, action)
		case KindSwap:
			if base.Contract == "" {
				e.logger.Debug("swap without pair address", zap.Int64("height", block.Height), zap.String("tx", tx.Hash))
				continue
			}
			out = append(out, e.swap(base, hit.seg, signers, routerMsgs))
		case KindProvide, KindWithdraw:
			if base.Contract == "" {
				continue
			}
			out = append(out, e.liquidity(base, hit.seg, signers))
		}
	}
	return out
}

func (e *Extractor) createPair(a Action, seg Attrs, pairAddr string, signers map[int]string) (Action, bool) {
	if pairAddr == "" {
		e.logger.Warn("create_pair without resolvable pair address",
			zap.Int64("height", a.Height), zap.String("tx", a.TxHash), zap.Int("msg_index", a.MsgIndex))
		return Action{}, false
	}

	first, second := splitPair(seg.Value("pair"))
	if first == "" || second == "" {
		first = seg.Value("asset1", "asset1_denom")
		second = seg.Value("asset2", "asset2_denom")
	}
	if first == "" || second == "" {
		e.logger.Warn("create_pair without asset denoms",
			zap.Int64("height", a.Height), zap.String("tx", a.TxHash), zap.String("pool", pairAddr))
		return Action{}, false
	}

	a.Pool = pairAddr
	a.BaseDenom, a.QuoteDenom = first, second
	if first == e.cfg.NativeDenom && second != e.cfg.NativeDenom {
		a.BaseDenom, a.QuoteDenom = second, first
	}
	a.PairType = seg.Value("pair_type")
	if a.PairType == "" {
		a.PairType = DefaultPairType
	}
	a.Signer = seg.Value(keySender)
	if a.Signer == "" {
		a.Signer = signers[a.MsgIndex]
	}
	return a, true
}

func (e *Extractor) swap(a Action, seg Attrs, signers map[int]string, routerMsgs map[int]bool) Action {
	a.OfferDenom = seg.Value("offer_asset", "offer_asset_denom")
	a.OfferAmount = amount.Clean(seg.Value("offer_amount", "offer_asset_amount"))
	a.AskDenom = seg.Value("ask_asset", "ask_asset_denom")
	a.ReturnAmount = amount.Clean(seg.Value("return_amount", "ask_asset_amount"))
	a.Reserves = readReserves(seg, "reserves")

	sender := seg.Value(keySender)
	if e.cfg.Router != "" {
		a.IsRouter = sender == e.cfg.Router || routerMsgs[a.MsgIndex] || routerMsgs[anyMsg]
	}
	a.Signer = sender
	if sender == "" || a.IsRouter {
		if s := signers[a.MsgIndex]; s != "" {
			a.Signer = s
		}
	}
	return a
}

func (e *Extractor) liquidity(a Action, seg Attrs, signers map[int]string) Action {
	packed := []string{"assets"}
	if a.Kind == KindWithdraw {
		packed = append(packed, "refund_assets")
	}
	a.Reserves = readReserves(seg, packed...)
	a.Share = amount.Clean(seg.Value("share", "withdrawn_share"))
	a.Signer = seg.Value(keySender)
	if a.Signer == "" {
		a.Signer = signers[a.MsgIndex]
	}
	return a
}

func splitPair(pair string) (string, string) {
	parts := strings.Split(pair, "-")
	if len(parts) != 2 {
		return "", ""
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}
