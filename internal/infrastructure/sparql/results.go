package sparql

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/cayleygraph/quad"
)

// ResultsContentType is the media type of SPARQL JSON results.
const ResultsContentType = "application/sparql-results+json"

// Row is one solution: variable name to bound value. Unbound variables are absent.
type Row map[string]quad.Value

// IRI returns the IRI bound to name.
func (r Row) IRI(name string) (quad.IRI, bool) {
	v, ok := r[name].(quad.IRI)
	return v, ok
}

// Text returns the lexical form of the value bound to name.
func (r Row) Text(name string) string {
	return Lexical(r[name])
}

// Lang returns the language tag of a literal bound to name.
func (r Row) Lang(name string) string {
	if v, ok := r[name].(quad.LangString); ok {
		return v.Lang
	}
	return ""
}

// Lexical returns the lexical form of v without N-Triples quoting.
func Lexical(v quad.Value) string {
	switch v := v.(type) {
	case nil:
		return ""
	case quad.IRI:
		return string(v)
	case quad.BNode:
		return string(v)
	case quad.String:
		return string(v)
	case quad.LangString:
		return string(v.Value)
	case quad.TypedString:
		return string(v.Value)
	default:
		return v.String()
	}
}

type jsonBinding struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Lang     string `json:"xml:lang,omitempty"`
	Datatype string `json:"datatype,omitempty"`
}

type jsonResults struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results *struct {
		Bindings []map[string]jsonBinding `json:"bindings"`
	} `json:"results,omitempty"`
	Boolean *bool `json:"boolean,omitempty"`
}

// DecodeResults parses a SELECT result document.
func DecodeResults(r io.Reader) ([]Row, error) {
	var doc jsonResults
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode sparql results: %w", err)
	}
	if doc.Results == nil {
		return nil, fmt.Errorf("decode sparql results: missing results member")
	}

	rows := make([]Row, 0, len(doc.Results.Bindings))
	for _, binding := range doc.Results.Bindings {
		row := make(Row, len(binding))
		for name, b := range binding {
			v, err := b.value()
			if err != nil {
				return nil, err
			}
			row[name] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// DecodeBoolean parses an ASK result document.
func DecodeBoolean(r io.Reader) (bool, error) {
	var doc jsonResults
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return false, fmt.Errorf("decode sparql boolean: %w", err)
	}
	if doc.Boolean == nil {
		return false, fmt.Errorf("decode sparql boolean: missing boolean member")
	}
	return *doc.Boolean, nil
}

func (b jsonBinding) value() (quad.Value, error) {
	switch b.Type {
	case "uri":
		return quad.IRI(b.Value), nil
	case "bnode":
		return quad.BNode(b.Value), nil
	case "literal", "typed-literal":
		switch {
		case b.Lang != "":
			return quad.LangString{Value: quad.String(b.Value), Lang: b.Lang}, nil
		case b.Datatype != "":
			return quad.TypedString{Value: quad.String(b.Value), Type: quad.IRI(b.Datatype)}, nil
		default:
			return quad.String(b.Value), nil
		}
	default:
		return nil, fmt.Errorf("decode sparql results: unsupported term type %q", b.Type)
	}
}

// EncodeResults writes rows as a SELECT result document.
func EncodeResults(w io.Writer, vars []string, rows []Row) error {
	var doc jsonResults
	doc.Head.Vars = vars
	doc.Results = &struct {
		Bindings []map[string]jsonBinding `json:"bindings"`
	}{Bindings: make([]map[string]jsonBinding, 0, len(rows))}

	for _, row := range rows {
		binding := make(map[string]jsonBinding, len(row))
		for name, v := range row {
			binding[name] = encodeValue(v)
		}
		doc.Results.Bindings = append(doc.Results.Bindings, binding)
	}
	return json.NewEncoder(w).Encode(doc)
}

// EncodeBoolean writes an ASK result document.
func EncodeBoolean(w io.Writer, value bool) error {
	var doc jsonResults
	doc.Boolean = &value
	return json.NewEncoder(w).Encode(doc)
}

func encodeValue(v quad.Value) jsonBinding {
	switch v := v.(type) {
	case quad.IRI:
		return jsonBinding{Type: "uri", Value: string(v)}
	case quad.BNode:
		return jsonBinding{Type: "bnode", Value: string(v)}
	case quad.LangString:
		return jsonBinding{Type: "literal", Value: string(v.Value), Lang: v.Lang}
	case quad.TypedString:
		return jsonBinding{Type: "literal", Value: string(v.Value), Datatype: string(v.Type)}
	default:
		return jsonBinding{Type: "literal", Value: Lexical(v)}
	}
}
