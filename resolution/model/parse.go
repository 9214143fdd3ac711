package model

import (
	"bytes"
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teranos/entres/errors"
)

// Member is one key of a JSON object, in document order
type Member struct {
	Key   string
	Value json.RawMessage
}

// DecodeObject splits a JSON object into its members without losing key order.
// Duplicate keys are rejected.
func DecodeObject(data []byte) ([]Member, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, errors.WrapInvalidRequest(err, "malformed JSON")
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.NewInvalidRequestError("expected a JSON object")
	}

	var members []Member
	seen := map[string]bool{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, errors.WrapInvalidRequest(err, "malformed JSON")
		}
		key := tok.(string)
		if seen[key] {
			return nil, errors.NewInvalidRequestError("duplicate key %q", key)
		}
		seen[key] = true

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, errors.WrapInvalidRequest(err, "malformed JSON")
		}
		members = append(members, Member{Key: key, Value: raw})
	}
	if _, err := dec.Token(); err != nil {
		return nil, errors.WrapInvalidRequest(err, "malformed JSON")
	}
	if dec.More() {
		return nil, errors.NewInvalidRequestError("unexpected data after JSON object")
	}
	return members, nil
}

// DecodeStrict decodes data into v, rejecting unknown fields
func DecodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.WrapInvalidRequest(err, "malformed JSON")
	}
	return nil
}

type attributeDoc struct {
	Type   string `json:"type"`
	Params Params `json:"params"`
}

type resolverDoc struct {
	Attributes json.RawMessage `json:"attributes"`
}

type matcherDoc struct {
	Type   string `json:"type"`
	Params Params `json:"params"`
}

type indexDoc struct {
	Fields json.RawMessage `json:"fields"`
}

type fieldDoc struct {
	Attribute string `json:"attribute"`
	Matcher   string `json:"matcher"`
}

// Parse parses and validates a JSON entity model
func Parse(data []byte) (*Model, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.NewInvalidRequestError("entity model is empty")
	}
	sections, err := DecodeObject(data)
	if err != nil {
		return nil, errors.Wrap(err, "entity model")
	}

	m := &Model{
		attributes: map[string]*Attribute{},
		resolvers:  map[string]*Resolver{},
		matchers:   map[string]*MatcherDef{},
		indices:    map[string]*Index{},
	}

	raw := map[string]json.RawMessage{}
	for _, s := range sections {
		switch s.Key {
		case "attributes", "resolvers", "matchers", "indices":
			raw[s.Key] = s.Value
		default:
			return nil, errors.NewInvalidRequestError("entity model has unknown section %q", s.Key)
		}
	}

	// Attributes and matchers first: resolvers and indices refer to them
	if err := m.parseAttributes(raw["attributes"]); err != nil {
		return nil, err
	}
	if err := m.parseMatchers(raw["matchers"]); err != nil {
		return nil, err
	}
	if err := m.parseResolvers(raw["resolvers"]); err != nil {
		return nil, err
	}
	if err := m.parseIndices(raw["indices"]); err != nil {
		return nil, err
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, data); err != nil {
		return nil, errors.WrapInvalidRequest(err, "entity model")
	}
	m.source = compact.Bytes()
	return m, nil
}

func members(section string, data json.RawMessage, required bool) ([]Member, error) {
	if len(data) == 0 || string(data) == "null" {
		if required {
			return nil, errors.NewInvalidRequestError("entity model is missing %q", section)
		}
		return nil, nil
	}
	ms, err := DecodeObject(data)
	if err != nil {
		return nil, errors.Wrapf(err, "entity model %q", section)
	}
	if required && len(ms) == 0 {
		return nil, errors.NewInvalidRequestError("entity model %q is empty", section)
	}
	for _, mem := range ms {
		if strings.TrimSpace(mem.Key) == "" {
			return nil, errors.NewInvalidRequestError("entity model %q has an empty name", section)
		}
	}
	return ms, nil
}

func (m *Model) parseAttributes(data json.RawMessage) error {
	ms, err := members("attributes", data, true)
	if err != nil {
		return err
	}
	for _, mem := range ms {
		var doc attributeDoc
		if err := DecodeStrict(mem.Value, &doc); err != nil {
			return errors.Wrapf(err, "attribute %q", mem.Key)
		}
		t := AttributeType(doc.Type)
		if doc.Type == "" {
			t = TypeString
		}
		if _, ok := registry[t]; !ok {
			return errors.NewInvalidRequestError("attribute %q has unknown type %q", mem.Key, doc.Type)
		}
		a := &Attribute{Name: mem.Key, Type: t, Params: doc.Params}
		m.Attributes = append(m.Attributes, a)
		m.attributes[a.Name] = a
	}
	return nil
}

func (m *Model) parseMatchers(data json.RawMessage) error {
	ms, err := members("matchers", data, true)
	if err != nil {
		return err
	}
	for _, mem := range ms {
		var doc matcherDoc
		if err := DecodeStrict(mem.Value, &doc); err != nil {
			return errors.Wrapf(err, "matcher %q", mem.Key)
		}
		if !isKnownKind(doc.Type) {
			return errors.NewInvalidRequestError("matcher %q has unknown type %q", mem.Key, doc.Type)
		}
		d := &MatcherDef{Name: mem.Key, Kind: doc.Type, Params: doc.Params}
		m.Matchers = append(m.Matchers, d)
		m.matchers[d.Name] = d
	}
	return nil
}

func (m *Model) parseResolvers(data json.RawMessage) error {
	ms, err := members("resolvers", data, true)
	if err != nil {
		return err
	}
	for _, mem := range ms {
		var doc resolverDoc
		if err := DecodeStrict(mem.Value, &doc); err != nil {
			return errors.Wrapf(err, "resolver %q", mem.Key)
		}
		sets, err := parseResolverSets(doc.Attributes)
		if err != nil {
			return errors.Wrapf(err, "resolver %q", mem.Key)
		}
		for _, set := range sets {
			for _, name := range set {
				if _, ok := m.attributes[name]; !ok {
					return errors.NewInvalidRequestError("resolver %q refers to unknown attribute %q", mem.Key, name)
				}
			}
		}
		r := &Resolver{Name: mem.Key, Sets: sets}
		m.Resolvers = append(m.Resolvers, r)
		m.resolvers[r.Name] = r
	}
	return nil
}

// parseResolverSets accepts ["a","b"] (one set) or [["a","b"],["c"]] (alternatives)
func parseResolverSets(data json.RawMessage) ([][]string, error) {
	if len(data) == 0 {
		return nil, errors.NewInvalidRequestError("\"attributes\" is required")
	}
	var flat []string
	if err := json.Unmarshal(data, &flat); err == nil {
		set, err := checkSet(flat)
		if err != nil {
			return nil, err
		}
		return [][]string{set}, nil
	}
	var nested [][]string
	if err := json.Unmarshal(data, &nested); err != nil {
		return nil, errors.NewInvalidRequestError("\"attributes\" must be a list of names or a list of lists of names")
	}
	if len(nested) == 0 {
		return nil, errors.NewInvalidRequestError("\"attributes\" is empty")
	}
	for i, set := range nested {
		checked, err := checkSet(set)
		if err != nil {
			return nil, err
		}
		nested[i] = checked
	}
	return nested, nil
}

func checkSet(set []string) ([]string, error) {
	if len(set) == 0 {
		return nil, errors.NewInvalidRequestError("\"attributes\" has an empty set")
	}
	seen := map[string]bool{}
	for _, name := range set {
		if seen[name] {
			return nil, errors.NewInvalidRequestError("attribute %q appears twice in one set", name)
		}
		seen[name] = true
	}
	return set, nil
}

func (m *Model) parseIndices(data json.RawMessage) error {
	ms, err := members("indices", data, true)
	if err != nil {
		return err
	}
	for _, mem := range ms {
		var doc indexDoc
		if err := DecodeStrict(mem.Value, &doc); err != nil {
			return errors.Wrapf(err, "index %q", mem.Key)
		}
		fields, err := members("indices."+mem.Key+".fields", doc.Fields, true)
		if err != nil {
			return err
		}

		ix := &Index{Name: mem.Key}
		for _, fm := range fields {
			f, err := m.compileField(mem.Key, fm)
			if err != nil {
				return err
			}
			ix.Fields = append(ix.Fields, f)
		}
		m.Indices = append(m.Indices, ix)
		m.indices[ix.Name] = ix
	}
	return nil
}

func (m *Model) compileField(index string, mem Member) (*Field, error) {
	var doc fieldDoc
	if err := DecodeStrict(mem.Value, &doc); err != nil {
		return nil, errors.Wrapf(err, "index %q field %q", index, mem.Key)
	}
	for _, seg := range strings.Split(mem.Key, ".") {
		if seg == "" {
			return nil, errors.NewInvalidRequestError("index %q has malformed field path %q", index, mem.Key)
		}
	}

	attr, ok := m.attributes[doc.Attribute]
	if !ok {
		return nil, errors.NewInvalidRequestError("index %q field %q refers to unknown attribute %q", index, mem.Key, doc.Attribute)
	}
	def, ok := m.matchers[doc.Matcher]
	if !ok {
		return nil, errors.NewInvalidRequestError("index %q field %q refers to unknown matcher %q", index, mem.Key, doc.Matcher)
	}
	compiled, err := LookupMatcher(attr.Type, def.Kind)
	if err != nil {
		return nil, errors.Wrapf(err, "index %q field %q", index, mem.Key)
	}
	return &Field{Path: mem.Key, Attribute: attr, Matcher: def, compiled: compiled}, nil
}

// ParseYAML parses a YAML entity model. Mapping order is preserved.
func ParseYAML(data []byte) (*Model, error) {
	js, err := YAMLToJSON(data)
	if err != nil {
		return nil, err
	}
	return Parse(js)
}

// YAMLToJSON converts a YAML document to JSON, keeping mapping key order
func YAMLToJSON(data []byte) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.WrapInvalidRequest(err, "malformed YAML")
	}
	if doc.Kind == 0 {
		return nil, errors.NewInvalidRequestError("YAML document is empty")
	}
	var buf bytes.Buffer
	if err := writeYAMLNode(&buf, &doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeYAMLNode(buf *bytes.Buffer, n *yaml.Node) error {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			buf.WriteString("null")
			return nil
		}
		return writeYAMLNode(buf, n.Content[0])

	case yaml.AliasNode:
		return writeYAMLNode(buf, n.Alias)

	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(n.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(n.Content[i].Value)
			if err != nil {
				return errors.WrapInvalidRequest(err, "YAML key")
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeYAMLNode(buf, n.Content[i+1]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil

	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, c := range n.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeYAMLNode(buf, c); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil

	default:
		var v any
		if err := n.Decode(&v); err != nil {
			return errors.WrapInvalidRequest(err, "YAML value")
		}
		out, err := json.Marshal(v)
		if err != nil {
			return errors.WrapInvalidRequest(err, "YAML value")
		}
		buf.Write(out)
		return nil
	}
}
