package domain

import (
	"fmt"
	"strings"
)

type EntityKind string

const (
	KindUser  EntityKind = "user"
	KindGroup EntityKind = "group"
)

// OrganizationalEntity is a user or a group. Two entities are equal when kind and id match.
type OrganizationalEntity struct {
	Kind EntityKind `json:"kind" enum:"user,group"`
	ID   string     `json:"id"`
}

func User(id string) OrganizationalEntity  { return OrganizationalEntity{Kind: KindUser, ID: id} }
func Group(id string) OrganizationalEntity { return OrganizationalEntity{Kind: KindGroup, ID: id} }

func (e OrganizationalEntity) IsUser() bool { return e.Kind == KindUser }

func (e OrganizationalEntity) String() string {
	return string(e.Kind) + ":" + e.ID
}

// ParseEntity reads "user:id", "group:id" or a bare id (treated as a user).
func ParseEntity(s string) (OrganizationalEntity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return OrganizationalEntity{}, fmt.Errorf("entity is empty")
	}
	kind, id, found := strings.Cut(s, ":")
	if !found {
		return User(s), nil
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return OrganizationalEntity{}, fmt.Errorf("entity %q has no id", s)
	}
	switch EntityKind(strings.ToLower(kind)) {
	case KindUser:
		return User(id), nil
	case KindGroup:
		return Group(id), nil
	}
	return OrganizationalEntity{}, fmt.Errorf("entity %q has invalid kind %q", s, kind)
}

// EntityList is an ordered set of entities. Insertion order is kept.
type EntityList []OrganizationalEntity

func (l EntityList) Contains(e OrganizationalEntity) bool {
	for _, x := range l {
		if x == e {
			return true
		}
	}
	return false
}

// Add appends e unless it is already present.
func (l EntityList) Add(e OrganizationalEntity) EntityList {
	if l.Contains(e) {
		return l
	}
	return append(l, e)
}

// Remove returns a copy of l without e.
func (l EntityList) Remove(e OrganizationalEntity) EntityList {
	out := make(EntityList, 0, len(l))
	for _, x := range l {
		if x != e {
			out = append(out, x)
		}
	}
	return out
}

// Compact returns l without duplicates, keeping the first occurrence.
func (l EntityList) Compact() EntityList {
	var out EntityList
	for _, x := range l {
		out = out.Add(x)
	}
	return out
}

// Actor is the caller of an operation: a user id plus the groups the caller claims.
// Group membership is asserted by the caller and never resolved here.
type Actor struct {
	UserID   string   `json:"user_id"`
	GroupIDs []string `json:"group_ids,omitempty"`
}

func (a Actor) Entity() OrganizationalEntity { return User(a.UserID) }

// Matches reports whether e names the actor or one of its groups.
func (a Actor) Matches(e OrganizationalEntity) bool {
	switch e.Kind {
	case KindUser:
		return a.UserID != "" && e.ID == a.UserID
	case KindGroup:
		for _, g := range a.GroupIDs {
			if g == e.ID {
				return true
			}
		}
	}
	return false
}

// In reports whether any entity of l matches the actor.
func (a Actor) In(l EntityList) bool {
	for _, e := range l {
		if a.Matches(e) {
			return true
		}
	}
	return false
}
