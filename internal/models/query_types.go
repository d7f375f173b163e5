// internal/models/query_types.go
package models

// QueryType names an attribute lookup served by the query-postgresql worker.
type QueryType string

const (
	QueryTypeFirmProfile   QueryType = "firm_profile"
	QueryTypeFirmProfiles  QueryType = "firm_profiles"
	QueryTypeFirmFunds     QueryType = "firm_funds"
	QueryTypeFirmNarrative QueryType = "firm_narrative"
)
