package ondisk

import (
	"errors"
	"slices"
	"time"

	"go.trai.ch/quarry/internal/core/domain"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the file header.
const (
	headerBuildVersion protowire.Number = 1
	headerSessionID    protowire.Number = 2
	headerCreatedAt    protowire.Number = 3
	headerNodeCount    protowire.Number = 4
)

// Field numbers of the body.
const (
	bodyKind       protowire.Number = 1
	bodyNode       protowire.Number = 2
	bodyResult     protowire.Number = 3
	bodyDiagnostic protowire.Number = 4
)

const (
	nodeKind     protowire.Number = 1
	nodeHashLo   protowire.Number = 2
	nodeHashHi   protowire.Number = 3
	nodeFPLo     protowire.Number = 4
	nodeFPHi     protowire.Number = 5
	nodeEdges    protowire.Number = 6
	nodeKey      protowire.Number = 7
	nodeVolatile protowire.Number = 8
	entryIndex   protowire.Number = 1
	entryPayload protowire.Number = 2
	diagLevel    protowire.Number = 1
	diagMessage  protowire.Number = 2
	diagSpan     protowire.Number = 3
	diagNote     protowire.Number = 4
	spanFile     protowire.Number = 1
	spanLine     protowire.Number = 2
	spanCol      protowire.Number = 3
	noteMessage  protowire.Number = 1
	noteSpan     protowire.Number = 2
)

type header struct {
	BuildVersion string
	SessionID    string
	CreatedAt    time.Time
	Nodes        uint64
}

func appendHeader(b []byte, h header) []byte {
	b = appendString(b, headerBuildVersion, h.BuildVersion)
	b = appendString(b, headerSessionID, h.SessionID)
	if !h.CreatedAt.IsZero() {
		b = protowire.AppendTag(b, headerCreatedAt, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(h.CreatedAt.UnixNano())) //nolint:gosec // Bit pattern round-trips
	}
	b = protowire.AppendTag(b, headerNodeCount, protowire.VarintType)
	return protowire.AppendVarint(b, h.Nodes)
}

func parseHeader(b []byte) (header, error) {
	var h header
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte, n uint64) error {
		switch {
		case num == headerBuildVersion && typ == protowire.BytesType:
			h.BuildVersion = string(v)
		case num == headerSessionID && typ == protowire.BytesType:
			h.SessionID = string(v)
		case num == headerCreatedAt && typ == protowire.VarintType:
			h.CreatedAt = time.Unix(0, int64(n)).UTC() //nolint:gosec // Written from UnixNano
		case num == headerNodeCount && typ == protowire.VarintType:
			h.Nodes = n
		}
		return nil
	})
	return h, err
}

// encodeBody writes kind names once and refers to them by position from every node.
func encodeBody(g *domain.SerializedGraph) []byte {
	kinds := make(map[string]uint64)
	var b []byte
	for i := range g.Nodes {
		name := g.Nodes[i].Kind
		if _, ok := kinds[name]; ok {
			continue
		}
		kinds[name] = uint64(len(kinds))
		b = appendString(b, bodyKind, name)
	}

	var msg []byte
	for i := range g.Nodes {
		msg = appendNode(msg[:0], &g.Nodes[i], kinds[g.Nodes[i].Kind])
		b = protowire.AppendTag(b, bodyNode, protowire.BytesType)
		b = protowire.AppendBytes(b, msg)
	}

	for _, idx := range sortedIndices(g.Results) {
		msg = protowire.AppendTag(msg[:0], entryIndex, protowire.VarintType)
		msg = protowire.AppendVarint(msg, uint64(idx))
		msg = protowire.AppendTag(msg, entryPayload, protowire.BytesType)
		msg = protowire.AppendBytes(msg, g.Results[idx])
		b = protowire.AppendTag(b, bodyResult, protowire.BytesType)
		b = protowire.AppendBytes(b, msg)
	}

	for _, idx := range sortedIndices(g.Diagnostics) {
		for _, d := range g.Diagnostics[idx] {
			msg = protowire.AppendTag(msg[:0], entryIndex, protowire.VarintType)
			msg = protowire.AppendVarint(msg, uint64(idx))
			msg = protowire.AppendTag(msg, entryPayload, protowire.BytesType)
			msg = protowire.AppendBytes(msg, appendDiagnostic(nil, d))
			b = protowire.AppendTag(b, bodyDiagnostic, protowire.BytesType)
			b = protowire.AppendBytes(b, msg)
		}
	}
	return b
}

func appendNode(b []byte, n *domain.SerializedNode, kind uint64) []byte {
	b = protowire.AppendTag(b, nodeKind, protowire.VarintType)
	b = protowire.AppendVarint(b, kind)
	b = appendFixed(b, nodeHashLo, n.Hash.Lo)
	b = appendFixed(b, nodeHashHi, n.Hash.Hi)
	b = appendFixed(b, nodeFPLo, n.Fingerprint.Lo)
	b = appendFixed(b, nodeFPHi, n.Fingerprint.Hi)
	if len(n.Edges) > 0 {
		var packed []byte
		for _, e := range n.Edges {
			packed = protowire.AppendVarint(packed, uint64(e))
		}
		b = protowire.AppendTag(b, nodeEdges, protowire.BytesType)
		b = protowire.AppendBytes(b, packed)
	}
	if len(n.Key) > 0 {
		b = protowire.AppendTag(b, nodeKey, protowire.BytesType)
		b = protowire.AppendBytes(b, n.Key)
	}
	if n.Volatile {
		b = protowire.AppendTag(b, nodeVolatile, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	return b
}

func appendDiagnostic(b []byte, d domain.Diagnostic) []byte {
	b = protowire.AppendTag(b, diagLevel, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.Level))
	b = appendString(b, diagMessage, d.Message)
	if !d.Span.IsZero() {
		b = protowire.AppendTag(b, diagSpan, protowire.BytesType)
		b = protowire.AppendBytes(b, appendSpan(nil, d.Span))
	}
	for _, n := range d.Notes {
		note := appendString(nil, noteMessage, n.Message)
		if !n.Span.IsZero() {
			note = protowire.AppendTag(note, noteSpan, protowire.BytesType)
			note = protowire.AppendBytes(note, appendSpan(nil, n.Span))
		}
		b = protowire.AppendTag(b, diagNote, protowire.BytesType)
		b = protowire.AppendBytes(b, note)
	}
	return b
}

func appendSpan(b []byte, s domain.Span) []byte {
	b = appendString(b, spanFile, s.File)
	b = protowire.AppendTag(b, spanLine, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.Line)) //nolint:gosec // Lines are positive
	b = protowire.AppendTag(b, spanCol, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(s.Col)) //nolint:gosec // Columns are positive
}

func decodeBody(b []byte, expectNodes uint64) (*domain.SerializedGraph, error) {
	g := domain.NewSerializedGraph()
	if expectNodes > 0 && expectNodes <= uint64(len(b)) {
		g.Nodes = make([]domain.SerializedNode, 0, expectNodes)
	}
	var kinds []string
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case bodyKind:
			kinds = append(kinds, string(v))
		case bodyNode:
			n, err := parseNode(v, kinds)
			if err != nil {
				return err
			}
			g.Nodes = append(g.Nodes, n)
		case bodyResult:
			idx, payload, err := parseEntry(v)
			if err != nil {
				return err
			}
			g.Results[idx] = payload
		case bodyDiagnostic:
			idx, payload, err := parseEntry(v)
			if err != nil {
				return err
			}
			d, err := parseDiagnostic(payload)
			if err != nil {
				return err
			}
			g.Diagnostics[idx] = append(g.Diagnostics[idx], d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

func parseNode(b []byte, kinds []string) (domain.SerializedNode, error) {
	var n domain.SerializedNode
	err := walk(b, func(num protowire.Number, _ protowire.Type, v []byte, x uint64) error {
		switch num {
		case nodeKind:
			if x >= uint64(len(kinds)) {
				return errKindOutOfRange
			}
			n.Kind = kinds[x]
		case nodeHashLo:
			n.Hash.Lo = x
		case nodeHashHi:
			n.Hash.Hi = x
		case nodeFPLo:
			n.Fingerprint.Lo = x
		case nodeFPHi:
			n.Fingerprint.Hi = x
		case nodeEdges:
			for len(v) > 0 {
				e, m := protowire.ConsumeVarint(v)
				if m < 0 {
					return protowire.ParseError(m)
				}
				n.Edges = append(n.Edges, domain.SerializedIndex(e)) //nolint:gosec // Range checked by Validate
				v = v[m:]
			}
		case nodeKey:
			n.Key = append([]byte(nil), v...)
		case nodeVolatile:
			n.Volatile = x != 0
		}
		return nil
	})
	return n, err
}

func parseEntry(b []byte) (domain.SerializedIndex, []byte, error) {
	var idx domain.SerializedIndex
	var payload []byte
	err := walk(b, func(num protowire.Number, _ protowire.Type, v []byte, x uint64) error {
		switch num {
		case entryIndex:
			idx = domain.SerializedIndex(x) //nolint:gosec // Range checked by Validate
		case entryPayload:
			payload = append([]byte(nil), v...)
		}
		return nil
	})
	return idx, payload, err
}

func parseDiagnostic(b []byte) (domain.Diagnostic, error) {
	var d domain.Diagnostic
	err := walk(b, func(num protowire.Number, _ protowire.Type, v []byte, x uint64) error {
		switch num {
		case diagLevel:
			d.Level = domain.DiagLevel(x) //nolint:gosec // Written from a DiagLevel
		case diagMessage:
			d.Message = string(v)
		case diagSpan:
			s, err := parseSpan(v)
			if err != nil {
				return err
			}
			d.Span = s
		case diagNote:
			var note domain.SubDiagnostic
			err := walk(v, func(num protowire.Number, _ protowire.Type, v []byte, _ uint64) error {
				switch num {
				case noteMessage:
					note.Message = string(v)
				case noteSpan:
					s, err := parseSpan(v)
					if err != nil {
						return err
					}
					note.Span = s
				}
				return nil
			})
			if err != nil {
				return err
			}
			d.Notes = append(d.Notes, note)
		}
		return nil
	})
	return d, err
}

func parseSpan(b []byte) (domain.Span, error) {
	var s domain.Span
	err := walk(b, func(num protowire.Number, _ protowire.Type, v []byte, x uint64) error {
		switch num {
		case spanFile:
			s.File = string(v)
		case spanLine:
			s.Line = int(x) //nolint:gosec // Written from an int
		case spanCol:
			s.Col = int(x) //nolint:gosec // Written from an int
		}
		return nil
	})
	return s, err
}

// walk calls fn for every field of a message. Varint and fixed64 values arrive in x,
// length-delimited values in v.
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		var v []byte
		var x uint64
		switch typ {
		case protowire.VarintType:
			x, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			x, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			v, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		if err := fn(num, typ, v, x); err != nil {
			return err
		}
	}
	return nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendFixed(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, v)
}

var errKindOutOfRange = errors.New("node refers to an unknown kind")

func sortedIndices[V any](m map[domain.SerializedIndex]V) []domain.SerializedIndex {
	out := make([]domain.SerializedIndex, 0, len(m))
	for idx := range m {
		out = append(out, idx)
	}
	slices.Sort(out)
	return out
}
