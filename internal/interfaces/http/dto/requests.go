// Package dto holds the request and response bodies of the HTTP API.
package dto

import "time"

// ResolveRequest asks which candidate URIs exist as instances.
type ResolveRequest struct {
	URIs []string `json:"uris" validate:"required,min=1,max=10000,dive,rdfuri"`
	// Strategy is any, graphs or classes. Empty means any.
	Strategy string `json:"strategy" validate:"omitempty,oneof=any graphs classes"`
	// Graphs maps a type to the graph its instances live in.
	Graphs  map[string]string `json:"graphs" validate:"omitempty,dive,keys,rdfuri,endkeys,rdfuri"`
	Classes []ClassRequest    `json:"classes" validate:"omitempty,dive"`
	// Label names the candidate set in errors about unknown URIs.
	Label string `json:"label" validate:"max=200"`
}

type ClassRequest struct {
	URI    string   `json:"uri" validate:"required,rdfuri"`
	Graph  string   `json:"graph" validate:"omitempty,rdfuri"`
	Fields []string `json:"fields" validate:"omitempty,dive,rdfuri"`
}

type MatchResponse struct {
	URI    string            `json:"uri"`
	Type   string            `json:"type"`
	Graph  string            `json:"graph,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

type ResolveResponse struct {
	Strategy string          `json:"strategy"`
	Known    []MatchResponse `json:"known"`
	Unknown  []string        `json:"unknown"`
}

type ClassNodeResponse struct {
	URI      string               `json:"uri"`
	Labels   map[string]string    `json:"labels,omitempty"`
	Parent   string               `json:"parent,omitempty"`
	Children []*ClassNodeResponse `json:"children,omitempty"`
}

type ClassTreeResponse struct {
	Roots []*ClassNodeResponse `json:"roots"`
	Size  int                  `json:"size"`
}

type PropertyResponse struct {
	URI    string            `json:"uri"`
	Domain string            `json:"domain"`
	Range  string            `json:"range,omitempty"`
	Labels map[string]string `json:"labels,omitempty"`
}

type PropertiesResponse struct {
	Domain           string             `json:"domain"`
	DataProperties   []PropertyResponse `json:"data_properties"`
	ObjectProperties []PropertyResponse `json:"object_properties"`
}

type InvalidateResponse struct {
	Scope string `json:"scope"`
}

type CacheTableStats struct {
	Entries int     `json:"entries"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Expired int64   `json:"expired"`
	Dropped int64   `json:"dropped"`
	HitRate float64 `json:"hit_rate"`
}

type CacheStatsResponse struct {
	TTL         string          `json:"ttl"`
	Classes     CacheTableStats `json:"classes"`
	Properties  CacheTableStats `json:"properties"`
	Populations int64           `json:"populations"`
	Failures    int64           `json:"failures"`
}

// RegisterResourceRequest registers a resource in both stores.
type RegisterResourceRequest struct {
	URI      string         `json:"uri" validate:"required,rdfuri"`
	Type     string         `json:"type" validate:"required,rdfuri"`
	Graph    string         `json:"graph" validate:"required,rdfuri"`
	Label    string         `json:"label" validate:"max=500"`
	Metadata map[string]any `json:"metadata"`
}

type ResourceResponse struct {
	URI       string         `json:"uri"`
	Type      string         `json:"type"`
	Graph     string         `json:"graph"`
	Label     string         `json:"label,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}
