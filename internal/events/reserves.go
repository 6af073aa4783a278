package events

import (
	"strings"

	"ammScope/internal/amount"
)

// Leg is one (denom, raw amount) pair. Empty Amount means unknown.
type Leg struct {
	Denom  string
	Amount string
}

// ReserveKind tags how reserves were encoded on an event.
type ReserveKind int

const (
	ReservesAbsent ReserveKind = iota
	ReservesExplicit
	ReservesPacked
)

func (k ReserveKind) String() string {
	switch k {
	case ReservesExplicit:
		return "explicit"
	case ReservesPacked:
		return "packed"
	default:
		return "absent"
	}
}

// ReserveEncoding is the reserve pair as found on the event.
// Explicit may be partial; Packed, when set alongside, fills its gaps.
type ReserveEncoding struct {
	Kind     ReserveKind
	Explicit [2]Leg
	Packed   string
}

// Resolve turns the encoding into two legs. Explicit fields take precedence
// and the packed string is consulted only for fields they leave empty.
func (e ReserveEncoding) Resolve() [2]Leg {
	switch e.Kind {
	case ReservesAbsent:
		return [2]Leg{}
	case ReservesPacked:
		return ParsePacked(e.Packed)
	}

	legs := e.Explicit
	if e.Packed == "" {
		return legs
	}
	packed := ParsePacked(e.Packed)
	for i := range legs {
		if legs[i].Denom == "" {
			legs[i].Denom = packed[i].Denom
		}
		if legs[i].Amount == "" {
			legs[i].Amount = packed[i].Amount
		}
	}
	return legs
}

// readReserves classifies the reserve attributes of a segment.
func readReserves(a Attrs, packedKeys ...string) ReserveEncoding {
	var enc ReserveEncoding
	explicit := false
	for i, n := range []string{"1", "2"} {
		denom := a.Value("reserve_asset"+n+"_denom", "asset"+n+"_denom")
		raw, ok := a.Get("reserve_asset"+n+"_amount", "asset"+n+"_amount")
		if denom != "" || ok {
			explicit = true
		}
		enc.Explicit[i] = Leg{Denom: denom, Amount: amount.Clean(raw)}
	}
	enc.Packed = a.Value(packedKeys...)

	switch {
	case explicit:
		enc.Kind = ReservesExplicit
	case enc.Packed != "":
		enc.Kind = ReservesPacked
	default:
		enc.Kind = ReservesAbsent
	}
	return enc
}

// ParsePacked reads the first two entries of a packed asset list.
// Entries are comma separated and either "denom:amount" or coin form "123denom".
// Malformed amounts come back empty.
func ParsePacked(s string) [2]Leg {
	var legs [2]Leg
	n := 0
	for _, part := range strings.Split(s, ",") {
		if n == len(legs) {
			break
		}
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		legs[n] = parseEntry(part)
		n++
	}
	return legs
}

func parseEntry(entry string) Leg {
	if idx := strings.LastIndex(entry, ":"); idx >= 0 {
		return Leg{
			Denom:  strings.TrimSpace(entry[:idx]),
			Amount: amount.Clean(entry[idx+1:]),
		}
	}
	i := 0
	for i < len(entry) && entry[i] >= '0' && entry[i] <= '9' {
		i++
	}
	if i == 0 {
		return Leg{Denom: entry}
	}
	return Leg{Denom: strings.TrimSpace(entry[i:]), Amount: entry[:i]}
}
