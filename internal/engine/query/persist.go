package query

import (
	"time"

	"go.trai.ch/quarry/internal/core/domain"
	"go.trai.ch/zerr"
)

// EncodeResult counts what EncodeQueryResults wrote.
type EncodeResult struct {
	Nodes int
	// Fresh counts results computed and encoded this session.
	Fresh int
	// CarriedOver counts results copied verbatim from the previous session.
	CarriedOver int
	// Failed counts results that could not be encoded. Their nodes are kept, so later
	// sessions can still mark them green and recompute the value.
	Failed      int
	Diagnostics int
}

// EncodeQueryResults builds the graph the next session starts from. Only results computed
// this session are encoded; reused results keep the bytes they were loaded from.
// It must be called after every Run returned.
func (e *Engine) EncodeQueryResults() (*domain.SerializedGraph, EncodeResult, error) {
	if n := e.Stats().Active; n > 0 {
		return nil, EncodeResult{}, zerr.With(zerr.Wrap(domain.ErrEncodeFailed, "encode query results"),
			"active", n)
	}

	fresh := make(map[domain.DepNodeIndex][]byte)
	var res EncodeResult
	for _, st := range e.states {
		encoded, failed := st.encodeFresh(fresh)
		res.Fresh += encoded
		res.Failed += failed
	}
	if res.Failed > 0 {
		e.logger.Warn("some query results could not be encoded and will be recomputed")
	}

	g, snap := e.graph.Snapshot(fresh)
	g.SessionID = e.sessionID
	g.BuildVersion = e.buildVersion
	g.CreatedAt = time.Now().UTC()

	res.Nodes = snap.Nodes
	res.CarriedOver = snap.CarriedOver
	res.Diagnostics = snap.Diagnostics
	return g, res, nil
}
