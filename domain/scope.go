package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ScopeType identifies which kind of schema a scope refers to.
type ScopeType string

const (
	ScopeTypeStream ScopeType = "STREAM"
	ScopeTypeSurvey ScopeType = "SURVEY"
)

// ParseScopeType translates a string into a ScopeType. The comparison is
// case-insensitive.
func ParseScopeType(value string) (ScopeType, error) {
	switch ScopeType(strings.ToUpper(value)) {
	case ScopeTypeStream:
		return ScopeTypeStream, nil
	case ScopeTypeSurvey:
		return ScopeTypeSurvey, nil
	default:
		return "", fmt.Errorf("unknown scope type %q", value)
	}
}

// Permission is the access level a scope grants on its schema.
type Permission string

const (
	PermissionRead   Permission = "READ"
	PermissionWrite  Permission = "WRITE"
	PermissionDelete Permission = "DELETE"
)

// permissionRank orders permissions by strength, weakest first.
var permissionRank = map[Permission]int{
	PermissionRead:   1,
	PermissionWrite:  2,
	PermissionDelete: 3,
}

// ParsePermission translates a string into a Permission. The comparison is
// case-insensitive.
func ParsePermission(value string) (Permission, error) {
	switch Permission(strings.ToUpper(value)) {
	case PermissionRead:
		return PermissionRead, nil
	case PermissionWrite:
		return PermissionWrite, nil
	case PermissionDelete:
		return PermissionDelete, nil
	default:
		return "", fmt.Errorf("unknown permission %q", value)
	}
}

// Scope bounds what a token may be used for: one schema, one version (or
// all versions), and one permission.
type Scope struct {
	Type          ScopeType  `bson:"type"                     json:"type"`
	SchemaID      string     `bson:"schema_id"                json:"schema_id"`
	SchemaVersion *int64     `bson:"schema_version,omitempty" json:"schema_version,omitempty"`
	Permission    Permission `bson:"permission"               json:"permission"`
}

// ParseScope de-constructs the serialized form of a scope, which is
// "type:schemaId[:version]:permission". A missing version means all
// versions.
func ParseScope(value string) (Scope, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 3 && len(parts) != 4 {
		return Scope{}, fmt.Errorf("scope %q must be of the form type:schemaId[:version]:permission", value)
	}

	scopeType, err := ParseScopeType(parts[0])
	if err != nil {
		return Scope{}, err
	}

	if parts[1] == "" {
		return Scope{}, fmt.Errorf("scope %q has an empty schema ID", value)
	}

	var version *int64
	if len(parts) == 4 {
		v, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return Scope{}, fmt.Errorf("scope %q has an invalid version: %w", value, err)
		}
		version = &v
	}

	permission, err := ParsePermission(parts[len(parts)-1])
	if err != nil {
		return Scope{}, err
	}

	return Scope{
		Type:          scopeType,
		SchemaID:      parts[1],
		SchemaVersion: version,
		Permission:    permission,
	}, nil
}

// ParseScopes parses each element of the given list. The resulting set is
// never empty; an empty input is an error.
func ParseScopes(values []string) ([]Scope, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("at least one scope is required")
	}

	scopes := make([]Scope, 0, len(values))
	for _, value := range values {
		scope, err := ParseScope(value)
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, scope)
	}
	return scopes, nil
}

// String serializes the scope as "type:schemaId[:version]:permission".
func (s Scope) String() string {
	var b strings.Builder
	b.WriteString(string(s.Type))
	b.WriteByte(':')
	b.WriteString(s.SchemaID)
	if s.SchemaVersion != nil {
		b.WriteByte(':')
		b.WriteString(strconv.FormatInt(*s.SchemaVersion, 10))
	}
	b.WriteByte(':')
	b.WriteString(string(s.Permission))
	return b.String()
}

// Covers reports whether this scope grants at least everything the other
// scope grants: same schema, a version that is equal or unset (all
// versions), and a permission that is equal or stronger.
func (s Scope) Covers(other Scope) bool {
	if s.Type != other.Type || s.SchemaID != other.SchemaID {
		return false
	}
	if s.SchemaVersion != nil {
		if other.SchemaVersion == nil || *s.SchemaVersion != *other.SchemaVersion {
			return false
		}
	}
	return permissionRank[s.Permission] >= permissionRank[other.Permission]
}

// ScopeStrings serializes a scope set for transport.
func ScopeStrings(scopes []Scope) []string {
	values := make([]string, len(scopes))
	for i, scope := range scopes {
		values[i] = scope.String()
	}
	return values
}
