package rdf

// Class is an RDF type marker with its home graph and the properties fetched
// for its instances.
type Class struct {
	URI    URI
	Graph  Graph
	Fields []URI
}
