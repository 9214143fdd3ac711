package job

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/teranos/entres/errors"
	"github.com/teranos/entres/resolution"
	"github.com/teranos/entres/resolution/clause"
	"github.com/teranos/entres/resolution/model"
)

// Termination says why a job stopped
type Termination string

const (
	TerminationEmptyFrontier Termination = "empty frontier"
	TerminationMaxHops       Termination = "max hops"
	TerminationTimeBudget    Termination = "time budget"

	TerminationCancelled  Termination = "cancelled"
	TerminationValidation Termination = "validation"
	TerminationNotFound   Termination = "not found"
	TerminationBackend    Termination = "backend"
	TerminationInternal   Termination = "internal"
)

// failureReason maps a terminal error onto a termination reason
func failureReason(err error) Termination {
	switch errors.Classify(err) {
	case errors.TypeCancelled:
		return TerminationCancelled
	case errors.TypeValidation:
		return TerminationValidation
	case errors.TypeNotFound:
		return TerminationNotFound
	case errors.TypeBackend, errors.TypeTimeout:
		return TerminationBackend
	default:
		return TerminationInternal
	}
}

// Hit is a resolved document
type Hit struct {
	Index       string
	ID          string
	Hop         int
	Query       int
	Score       float64
	Version     int64
	SeqNo       int64
	PrimaryTerm int64
	Source      map[string]any
	Attributes  *model.ValueSet // values harvested from the document
	Explanation *Explanation    // nil unless explanations were requested

	via *via
}

// QueryRecord is one executed query
type QueryRecord struct {
	Hop        int
	Query      int
	Collection string
	Request    resolution.SearchRequest
	Response   *resolution.SearchResponse
	Took       time.Duration
	Err        error
}

// Result is the terminal snapshot of a job
type Result struct {
	JobID       string
	EntityType  string
	Took        time.Duration
	Hops        int
	Termination Termination
	Failed      bool
	Hits        []*Hit
	Attributes  *model.ValueSet // every value known at the end, seeds first
	Queries     []QueryRecord
	Warnings    []string
	Err         error

	opts           Options
	attributeOrder []string
}

// member and object keep JSON keys in insertion order
type member struct {
	key   string
	value any
}

type object []member

func (o object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(m.key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(m.value)
		if err != nil {
			return nil, errors.Wrapf(err, "encode %q", m.key)
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON renders the result with the job's include flags
func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.document())
}

// Marshal renders the result, indented when the job asked for pretty output
func (r *Result) Marshal() ([]byte, error) {
	data, err := json.Marshal(r.document())
	if err != nil {
		return nil, errors.NewInternalError("serialize result: %v", err)
	}
	if !r.opts.Pretty {
		return data, nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return nil, errors.NewInternalError("indent result: %v", err)
	}
	return buf.Bytes(), nil
}

func (r *Result) document() object {
	o := r.opts
	doc := object{
		{"took", r.Took.Milliseconds()},
		{"hops", r.Hops},
		{"termination", string(r.Termination)},
		{"failed", r.Failed},
	}

	if o.IncludeHits {
		hits := make([]object, 0, len(r.Hits))
		for _, h := range r.Hits {
			hits = append(hits, r.hitDocument(h))
		}
		doc = append(doc, member{"hits", object{{"total", len(r.Hits)}, {"hits", hits}}})
	}
	if o.IncludeAttributes && r.Attributes != nil {
		doc = append(doc, member{"attributes", r.attributesDocument(r.Attributes)})
	}
	if o.IncludeQueries {
		queries := make([]object, 0, len(r.Queries))
		for _, q := range r.Queries {
			queries = append(queries, r.queryDocument(q))
		}
		doc = append(doc, member{"queries", queries})
	}
	if len(r.Warnings) > 0 {
		doc = append(doc, member{"warnings", r.Warnings})
	}
	if o.Profile {
		doc = append(doc, member{"profile", r.profileDocument()})
	}
	if r.Err != nil {
		doc = append(doc, member{"error", r.errorDocument(r.Err)})
	}
	return doc
}

func (r *Result) hitDocument(h *Hit) object {
	o := r.opts
	doc := object{
		{"_index", h.Index},
		{"_hop", h.Hop},
		{"_query", h.Query},
		{"_id", h.ID},
	}
	if o.IncludeScore {
		doc = append(doc, member{"_score", h.Score})
	}
	if o.IncludeVersion {
		doc = append(doc, member{"_version", h.Version})
	}
	if o.IncludeSeqNoPrimaryTerm {
		doc = append(doc, member{"_seq_no", h.SeqNo}, member{"_primary_term", h.PrimaryTerm})
	}
	if o.IncludeAttributes && h.Attributes != nil {
		doc = append(doc, member{"_attributes", r.attributesDocument(h.Attributes)})
	}
	if o.IncludeExplanation && h.Explanation != nil {
		doc = append(doc, member{"_explanation", explanationDocument(h.Explanation)})
	}
	if o.IncludeSource {
		doc = append(doc, member{"_source", h.Source})
	}
	return doc
}

// attributesDocument lists values per attribute in model order
func (r *Result) attributesDocument(set *model.ValueSet) object {
	doc := object{}
	for _, attr := range r.attributeOrder {
		values := set.Values(attr)
		if len(values) == 0 {
			continue
		}
		raws := make([]any, len(values))
		for i, v := range values {
			raws[i] = v.Raw()
		}
		doc = append(doc, member{attr, raws})
	}
	return doc
}

func explanationDocument(e *Explanation) object {
	resolvers := object{}
	for _, rm := range e.Resolvers {
		resolvers = append(resolvers, member{rm.Name, object{{"attributes", rm.Attributes}}})
	}

	matches := make([]object, 0, len(e.Matches))
	for _, m := range e.Matches {
		params := m.MatcherParams
		if params == nil {
			params = model.Params{}
		}
		matches = append(matches, object{
			{"attribute", m.Attribute},
			{"target_field", m.Field},
			{"target_value", m.FieldValue},
			{"input_value", m.InputValue},
			{"input_matcher", m.Matcher},
			{"input_matcher_params", params},
		})
	}

	chain := make([]object, 0, len(e.Chain))
	for _, l := range e.Chain {
		link := object{{"_index", l.Index}, {"_id", l.ID}, {"_hop", l.Hop}}
		if l.Resolver != "" {
			link = append(link, member{"resolver", l.Resolver})
		}
		if l.Attribute != "" {
			link = append(link, member{"attribute", l.Attribute}, member{"value", l.Value})
		}
		if l.Seed != "" {
			link = append(link, member{"seed", l.Seed})
		}
		chain = append(chain, link)
	}

	return object{{"resolvers", resolvers}, {"matches", matches}, {"chain", chain}}
}

func (r *Result) queryDocument(q QueryRecord) object {
	request := object{
		{"query", q.Request.Query},
		{"size", q.Request.Size},
	}
	if q.Request.Timeout > 0 {
		request = append(request, member{"timeout", q.Request.Timeout.String()})
	}
	if q.Request.Options != (resolution.SearchOptions{}) {
		request = append(request, member{"options", q.Request.Options})
	}

	search := object{{"request", request}}
	if q.Response != nil {
		hits := make([]object, 0, len(q.Response.Documents))
		for _, d := range q.Response.Documents {
			hits = append(hits, object{{"_index", d.Collection}, {"_id", d.ID}, {"_score", d.Score}})
		}
		search = append(search, member{"response", object{
			{"took", q.Response.Took.Milliseconds()},
			{"timed_out", q.Response.TimedOut},
			{"hits", object{{"total", len(q.Response.Documents)}, {"hits", hits}}},
		}})
	}

	doc := object{
		{"_hop", q.Hop},
		{"_query", q.Query},
		{"_index", q.Collection},
		{"search", search},
	}
	if q.Err != nil {
		doc = append(doc, member{"error", r.errorDocument(q.Err)})
	}
	return doc
}

func (r *Result) profileDocument() []object {
	profiles := []object{}
	for _, q := range r.Queries {
		if q.Response == nil || q.Response.Profile == nil {
			continue
		}
		profiles = append(profiles, object{
			{"_hop", q.Hop},
			{"_query", q.Query},
			{"_index", q.Collection},
			{"profile", q.Response.Profile},
		})
	}
	return profiles
}

func (r *Result) errorDocument(err error) object {
	t := errors.Classify(err)
	by := "entres"
	if t == errors.TypeBackend || t == errors.TypeTimeout {
		by = "backend"
	}
	doc := object{
		{"by", by},
		{"type", string(t)},
		{"reason", err.Error()},
	}
	if r.opts.IncludeErrorTrace {
		doc = append(doc, member{"stack_trace", fmt.Sprintf("%+v", err)})
	}
	return doc
}

// Explain renders a clause for logs and error messages
func Explain(c clause.Clause) string {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Sprintf("%+v", c)
	}
	return string(data)
}
