package graph

import (
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"simp-tracker/backend/internal/simps"
)

func getInt64FromRecord(record *neo4j.Record, key string) int64 {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return 0
	}
	if i, ok := val.(int64); ok {
		return i
	}
	if i, ok := val.(int); ok {
		return int64(i)
	}
	return 0
}

// getTimeFromRecord reads a temporal value; datetime() comes back as time.Time
func getTimeFromRecord(record *neo4j.Record, key string) time.Time {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return time.Time{}
	}
	switch t := val.(type) {
	case time.Time:
		return t
	case dbtype.LocalDateTime:
		return t.Time()
	default:
		return time.Time{}
	}
}

func recordToEdge(record *neo4j.Record) simps.Edge {
	return simps.Edge{
		GuildID:   getInt64FromRecord(record, "guild_id"),
		UserID:    getInt64FromRecord(record, "user_id"),
		TargetID:  getInt64FromRecord(record, "target_id"),
		CreatedAt: getTimeFromRecord(record, "created_at"),
	}
}

// optionalID turns an absent filter into a Cypher null
func optionalID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}
