package ontology

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"opensilex-backend/internal/domain/rdf"
)

func sampleTree(p *rdf.Prefixes) *ClassTree {
	root := p.MustNormalize("ex:Entity")
	device := p.MustNormalize("ex:Device")
	return &ClassTree{Roots: []*ClassNode{{
		URI:    root,
		Labels: map[string]string{"en": "Entity", "": "entity"},
		Children: []*ClassNode{
			{URI: device, Parent: &root, Children: []*ClassNode{
				{URI: p.MustNormalize("ex:Sensor"), Parent: &device},
			}},
			{URI: p.MustNormalize("ex:Plant"), Parent: &root},
		},
	}}}
}

func TestClassTree(t *testing.T) {
	p := rdf.NewPrefixes(map[string]string{"ex": "http://example.org/"})
	tree := sampleTree(p)

	assert.Equal(t, 4, tree.Size())
	assert.NotNil(t, tree.Find(p.MustNormalize("ex:Sensor")))
	assert.Nil(t, tree.Find(p.MustNormalize("ex:Missing")))

	stripped := tree.WithoutRoot()
	assert.Len(t, stripped.Roots, 2)
	assert.Equal(t, 3, stripped.Size())
	assert.Len(t, tree.Roots, 1, "original tree untouched")

	assert.Equal(t, "Entity", tree.Roots[0].Label("en"))
	assert.Equal(t, "entity", tree.Roots[0].Label("fr"))
}

func TestPropertyList_OfKind(t *testing.T) {
	p := rdf.NewPrefixes(map[string]string{"ex": "http://example.org/"})
	list := PropertyList{Properties: []Property{
		{URI: p.MustNormalize("ex:name"), Kind: DataProperty},
		{URI: p.MustNormalize("ex:hasPart"), Kind: ObjectProperty},
		{URI: p.MustNormalize("ex:weight"), Kind: DataProperty},
	}}

	assert.Len(t, list.OfKind(DataProperty), 2)
	assert.Len(t, list.OfKind(ObjectProperty), 1)
}
