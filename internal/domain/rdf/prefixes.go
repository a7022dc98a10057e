package rdf

import (
	"strings"

	"github.com/cayleygraph/quad/voc"
	"github.com/cayleygraph/quad/voc/owl"
	rdfvoc "github.com/cayleygraph/quad/voc/rdf"
	"github.com/cayleygraph/quad/voc/rdfs"
	"github.com/cayleygraph/quad/voc/xsd"
)

// Well-known vocabulary terms in expanded form.
const (
	RDFType             = rdfvoc.NS + "type"
	RDFSSubClassOf      = rdfs.NS + "subClassOf"
	RDFSLabel           = rdfs.NS + "label"
	RDFSDomain          = rdfs.NS + "domain"
	RDFSRange           = rdfs.NS + "range"
	OWLClass            = owl.NS + "Class"
	OWLDatatypeProperty = owl.NS + "DatatypeProperty"
	OWLObjectProperty   = owl.NS + "ObjectProperty"
)

// Prefixes is a namespace registry used to expand and compact URIs. Each
// instance owns its namespaces; nothing is registered globally.
type Prefixes struct {
	ns *voc.Namespaces
}

// NewPrefixes returns a registry holding rdf, rdfs, owl and xsd plus the given
// prefix to namespace mappings. Prefix keys may omit the trailing colon.
func NewPrefixes(extra map[string]string) *Prefixes {
	p := &Prefixes{ns: &voc.Namespaces{Safe: true}}
	p.ns.Register(voc.Namespace{Full: rdfvoc.NS, Prefix: rdfvoc.Prefix})
	p.ns.Register(voc.Namespace{Full: rdfs.NS, Prefix: rdfs.Prefix})
	p.ns.Register(voc.Namespace{Full: owl.NS, Prefix: owl.Prefix})
	p.ns.Register(voc.Namespace{Full: xsd.NS, Prefix: xsd.Prefix})
	for prefix, full := range extra {
		p.Register(prefix, full)
	}
	return p
}

// Register adds or replaces a prefix mapping.
func (p *Prefixes) Register(prefix, full string) {
	prefix = strings.TrimSpace(prefix)
	if !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	p.ns.Register(voc.Namespace{Full: strings.TrimSpace(full), Prefix: prefix})
}

// List returns the registered namespaces.
func (p *Prefixes) List() []voc.Namespace {
	return p.ns.List()
}

// Normalize converts raw request input into its canonical expanded form.
// Applying Normalize to the string form of its own result yields the same URI.
func (p *Prefixes) Normalize(raw string) (URI, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimSuffix(strings.TrimPrefix(trimmed, "<"), ">")
	expanded := p.ns.FullIRI(trimmed)
	if err := validateAbsolute(raw, expanded); err != nil {
		return URI{}, err
	}
	return URI{value: expanded}, nil
}

// MustNormalize is Normalize for trusted constants; it panics on error.
func (p *Prefixes) MustNormalize(raw string) URI {
	u, err := p.Normalize(raw)
	if err != nil {
		panic(err)
	}
	return u
}

// Short returns the prefixed form of u when a registered namespace matches,
// otherwise the expanded form.
func (p *Prefixes) Short(u URI) string {
	return p.ns.ShortIRI(u.value)
}
