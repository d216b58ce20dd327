package models

import "fmt"

// QueryType is the classified intent of a retrieval query. It determines
// which layers are consulted first.
type QueryType string

// Query types. Factual is the default and triggers hybrid multi-source search.
const (
	QueryTemporal    QueryType = "temporal"
	QueryRelational  QueryType = "relational"
	QueryPlanning    QueryType = "planning"
	QueryProcedural  QueryType = "procedural"
	QueryProspective QueryType = "prospective"
	QueryMeta        QueryType = "meta"
	QueryFactual     QueryType = "factual"
)

// AllQueryTypes lists every query type in a fixed order.
var AllQueryTypes = []QueryType{
	QueryTemporal,
	QueryRelational,
	QueryPlanning,
	QueryProcedural,
	QueryProspective,
	QueryMeta,
	QueryFactual,
}

// Turn is one prior conversation turn supplied as classification context.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RetrievalQuery is a retrieval request against the memory layers.
type RetrievalQuery struct {
	Text string `json:"text"`
	// Context carries optional session hints (session id, current task,
	// phase, recent events). Adapters may use it for filtering; the meta
	// layer reads a "domain" entry for expertise lookup.
	Context map[string]interface{} `json:"context,omitempty"`
	K       int                    `json:"k,omitempty"`
	// Fields projects result content down to the named fields.
	Fields  []string `json:"fields,omitempty"`
	History []Turn   `json:"conversation_history,omitempty"`
}

// Validate checks the query and normalizes K.
// Returns an error if the text is empty; K is defaulted and capped.
func (q *RetrievalQuery) Validate(defaultK, maxK int) error {
	if q.Text == "" {
		return fmt.Errorf("query text cannot be empty")
	}
	if q.K <= 0 {
		q.K = defaultK
	}
	if q.K > maxK {
		q.K = maxK
	}
	return nil
}
