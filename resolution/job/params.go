package job

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/teranos/entres/errors"
)

// ApplyParams overrides o with request parameters using the resolution API
// names (_explanation, max_hops, search.preference, ...). A parameter given
// without a value is true. Parameters the job does not know are ignored, except
// under "search." where an unknown name is a mistake.
func (o *Options) ApplyParams(params url.Values) error {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		values := params[name]
		if len(values) == 0 {
			continue
		}
		if err := o.applyParam(name, values[len(values)-1]); err != nil {
			return errors.WrapInvalidRequest(err, "param "+strconv.Quote(name))
		}
	}
	return o.Validate()
}

func (o *Options) applyParam(name, raw string) error {
	var err error
	switch name {
	case "_attributes":
		o.IncludeAttributes, err = parseBool(raw)
	case "_explanation":
		o.IncludeExplanation, err = parseBool(raw)
	case "_score":
		o.IncludeScore, err = parseBool(raw)
	case "_seq_no_primary_term":
		o.IncludeSeqNoPrimaryTerm, err = parseBool(raw)
	case "_source":
		o.IncludeSource, err = parseBool(raw)
	case "_version":
		o.IncludeVersion, err = parseBool(raw)
	case "error_trace":
		o.IncludeErrorTrace, err = parseBool(raw)
	case "hits":
		o.IncludeHits, err = parseBool(raw)
	case "queries":
		o.IncludeQueries, err = parseBool(raw)
	case "profile":
		o.Profile, err = parseBool(raw)
		o.Search.Profile = o.Profile
	case "pretty":
		o.Pretty, err = parseBool(raw)
	case "allow_partial_results":
		o.AllowPartialResults, err = parseBool(raw)
	case "max_hops":
		o.MaxHops, err = strconv.Atoi(raw)
	case "max_docs_per_query":
		o.MaxDocsPerQuery, err = strconv.Atoi(raw)
	case "max_clauses_per_query":
		o.MaxClausesPerQuery, err = strconv.Atoi(raw)
	case "max_query_failures":
		o.MaxQueryFailures, err = strconv.Atoi(raw)
	case "concurrency":
		o.Concurrency, err = strconv.Atoi(raw)
	case "max_time_per_query":
		o.MaxTimePerQuery, err = time.ParseDuration(raw)
	case "max_time_per_job":
		o.MaxTimePerJob, err = time.ParseDuration(raw)
	default:
		if strings.HasPrefix(name, "search.") {
			return o.applySearchParam(strings.TrimPrefix(name, "search."), raw)
		}
	}
	return err
}

func (o *Options) applySearchParam(name, raw string) error {
	s := &o.Search
	switch name {
	case "allow_partial_search_results":
		return setBoolPtr(&s.AllowPartialSearchResults, raw)
	case "batched_reduce_size":
		return setIntPtr(&s.BatchedReduceSize, raw)
	case "max_concurrent_shard_requests":
		return setIntPtr(&s.MaxConcurrentShardRequests, raw)
	case "pre_filter_shard_size":
		return setIntPtr(&s.PreFilterShardSize, raw)
	case "preference":
		s.Preference = raw
		return nil
	case "request_cache":
		return setBoolPtr(&s.RequestCache, raw)
	}
	return errors.Newf("unknown search parameter %q", name)
}

func parseBool(raw string) (bool, error) {
	if raw == "" {
		return true, nil
	}
	return strconv.ParseBool(raw)
}

func setBoolPtr(dst **bool, raw string) error {
	b, err := parseBool(raw)
	if err != nil {
		return err
	}
	*dst = &b
	return nil
}

func setIntPtr(dst **int, raw string) error {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return err
	}
	*dst = &n
	return nil
}
