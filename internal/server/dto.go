package server

import (
	"encoding/json"
	"fmt"
	"strings"

	"humantask/internal/domain"
	"humantask/internal/engine"
)

// Request payloads

type I18NTextRequest struct {
	Language string `json:"language" example:"en-UK"`
	Text     string `json:"text"`
}

type ContentRequest struct {
	Type       string `json:"type,omitempty" example:"text/plain"`
	AccessType string `json:"access_type,omitempty" enum:"Inline,Reference"`
	Data       []byte `json:"data,omitempty"`
}

// Entities are written as "user:<id>" or "group:<id>"; a bare id is a user.
type CreateTaskRequest struct {
	Priority               int               `json:"priority,omitempty"`
	Names                  []I18NTextRequest `json:"names,omitempty"`
	Subjects               []I18NTextRequest `json:"subjects,omitempty"`
	Descriptions           []I18NTextRequest `json:"descriptions,omitempty"`
	Skipable               *bool             `json:"skipable,omitempty"`
	CreatedBy              string            `json:"created_by,omitempty"`
	PotentialOwners        []string          `json:"potential_owners,omitempty" example:"[\"user:bobba\",\"group:crusaders\"]"`
	BusinessAdministrators []string          `json:"business_administrators,omitempty"`
	Recipients             []string          `json:"recipients,omitempty"`
	ExcludedOwners         []string          `json:"excluded_owners,omitempty"`
	TaskStakeholders       []string          `json:"task_stakeholders,omitempty"`
	Input                  *ContentRequest   `json:"input,omitempty"`
}

type OperationRequest struct {
	Target    string          `json:"target,omitempty" doc:"delegate and forward target"`
	Entities  []string        `json:"entities,omitempty" doc:"nominate targets"`
	Output    *ContentRequest `json:"output,omitempty"`
	Fault     *ContentRequest `json:"fault,omitempty"`
	FaultName string          `json:"fault_name,omitempty"`
}

type DevTokenRequest struct {
	UserID   string   `json:"user_id"`
	GroupIDs []string `json:"group_ids,omitempty"`
}

// Response payloads

type ContentRefResponse struct {
	ContentID  int64  `json:"content_id"`
	Type       string `json:"type,omitempty"`
	AccessType string `json:"access_type,omitempty"`
}

type TaskResponse struct {
	ID                     int64               `json:"id"`
	Version                int64               `json:"version"`
	Priority               int                 `json:"priority"`
	Status                 string              `json:"status"`
	PreviousStatus         *string             `json:"previous_status,omitempty"`
	ActualOwner            *string             `json:"actual_owner,omitempty"`
	CreatedBy              *string             `json:"created_by,omitempty"`
	Skipable               bool                `json:"skipable"`
	Names                  []I18NTextRequest   `json:"names"`
	Subjects               []I18NTextRequest   `json:"subjects"`
	Descriptions           []I18NTextRequest   `json:"descriptions"`
	Document               *ContentRefResponse `json:"document,omitempty"`
	Output                 *ContentRefResponse `json:"output,omitempty"`
	Fault                  *ContentRefResponse `json:"fault,omitempty"`
	FaultName              string              `json:"fault_name,omitempty"`
	CreatedOn              string              `json:"created_on" format:"date-time"`
	ActivationTime         *string             `json:"activation_time,omitempty" format:"date-time"`
	PotentialOwners        []string            `json:"potential_owners"`
	BusinessAdministrators []string            `json:"business_administrators"`
	Recipients             []string            `json:"recipients"`
	ExcludedOwners         []string            `json:"excluded_owners"`
	TaskStakeholders       []string            `json:"task_stakeholders"`
}

type ContentResponse struct {
	ID         int64  `json:"id"`
	Type       string `json:"type,omitempty"`
	AccessType string `json:"access_type"`
	Size       int64  `json:"size"`
	Data       []byte `json:"data"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type TaskSummaryResponse struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Subject     string  `json:"subject,omitempty"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status"`
	Priority    int     `json:"priority"`
	Skipable    bool    `json:"skipable"`
	ActualOwner *string `json:"actual_owner,omitempty"`
	CreatedBy   *string `json:"created_by,omitempty"`
	CreatedOn   string  `json:"created_on" format:"date-time"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	TS         string         `json:"ts" format:"date-time"`
	Payload    map[string]any `json:"payload"`
}

type WhoAmIResponse struct {
	UserID   string   `json:"user_id"`
	GroupIDs []string `json:"group_ids"`
	Source   string   `json:"source"`
}

type DevTokenResponse struct {
	Token string `json:"token"`
}

type taskSummaries struct {
	Items []TaskSummaryResponse `json:"items"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func (r CreateTaskRequest) task() (domain.Task, error) {
	t := domain.Task{
		Priority:     r.Priority,
		Names:        texts(r.Names),
		Subjects:     texts(r.Subjects),
		Descriptions: texts(r.Descriptions),
	}
	t.Skipable = r.Skipable == nil || *r.Skipable
	if strings.TrimSpace(r.CreatedBy) != "" {
		by, err := domain.ParseEntity(r.CreatedBy)
		if err != nil {
			return domain.Task{}, engine.ValidationError{Field: "created_by", Reason: err.Error()}
		}
		t.CreatedBy = &by
	}
	lists := []struct {
		field string
		in    []string
		out   *domain.EntityList
	}{
		{"potential_owners", r.PotentialOwners, &t.PotentialOwners},
		{"business_administrators", r.BusinessAdministrators, &t.BusinessAdministrators},
		{"recipients", r.Recipients, &t.Recipients},
		{"excluded_owners", r.ExcludedOwners, &t.ExcludedOwners},
		{"task_stakeholders", r.TaskStakeholders, &t.TaskStakeholders},
	}
	for _, l := range lists {
		parsed, err := parseEntities(l.field, l.in)
		if err != nil {
			return domain.Task{}, err
		}
		*l.out = parsed
	}
	return t, nil
}

func parseEntities(field string, in []string) (domain.EntityList, error) {
	var out domain.EntityList
	for _, s := range in {
		e, err := domain.ParseEntity(s)
		if err != nil {
			return nil, engine.ValidationError{Field: field, Reason: err.Error()}
		}
		out = out.Add(e)
	}
	return out, nil
}

func texts(in []I18NTextRequest) []domain.I18NText {
	out := make([]domain.I18NText, 0, len(in))
	for _, t := range in {
		out = append(out, domain.I18NText{Language: t.Language, Text: t.Text})
	}
	return out
}

func textResponses(in []domain.I18NText) []I18NTextRequest {
	out := make([]I18NTextRequest, 0, len(in))
	for _, t := range in {
		out = append(out, I18NTextRequest{Language: t.Language, Text: t.Text})
	}
	return out
}

func (c *ContentRequest) data() *domain.ContentData {
	if c == nil {
		return nil
	}
	return &domain.ContentData{Type: c.Type, AccessType: domain.AccessType(c.AccessType), Content: c.Data}
}

func refResponse(r domain.ContentRef) *ContentRefResponse {
	if !r.Set() {
		return nil
	}
	return &ContentRefResponse{ContentID: r.ContentID, Type: r.Type, AccessType: string(r.AccessType)}
}

func entityStrings(l domain.EntityList) []string {
	out := make([]string, 0, len(l))
	for _, e := range l {
		out = append(out, e.String())
	}
	return out
}

func ownerID(e *domain.OrganizationalEntity) *string {
	if e == nil {
		return nil
	}
	id := e.ID
	return &id
}

func taskResponse(t domain.Task) TaskResponse {
	resp := TaskResponse{
		ID:                     t.ID,
		Version:                t.Version,
		Priority:               t.Priority,
		Status:                 string(t.Status),
		ActualOwner:            ownerID(t.ActualOwner),
		CreatedBy:              ownerID(t.CreatedBy),
		Skipable:               t.Skipable,
		Names:                  textResponses(t.Names),
		Subjects:               textResponses(t.Subjects),
		Descriptions:           textResponses(t.Descriptions),
		Document:               refResponse(t.Document),
		Output:                 refResponse(t.Output),
		Fault:                  refResponse(t.Fault),
		FaultName:              t.FaultName,
		CreatedOn:              t.CreatedOn,
		PotentialOwners:        entityStrings(t.PotentialOwners),
		BusinessAdministrators: entityStrings(t.BusinessAdministrators),
		Recipients:             entityStrings(t.Recipients),
		ExcludedOwners:         entityStrings(t.ExcludedOwners),
		TaskStakeholders:       entityStrings(t.TaskStakeholders),
	}
	if t.PreviousStatus != nil {
		prev := string(*t.PreviousStatus)
		resp.PreviousStatus = &prev
	}
	if t.ActivationTime != "" {
		at := t.ActivationTime
		resp.ActivationTime = &at
	}
	return resp
}

func contentResponse(c domain.Content) ContentResponse {
	data := c.Data
	if data == nil {
		data = []byte{}
	}
	return ContentResponse{
		ID:         c.ID,
		Type:       c.Type,
		AccessType: string(c.AccessType),
		Size:       c.Size,
		Data:       data,
		CreatedAt:  c.CreatedAt,
	}
}

func summaryResponse(s domain.TaskSummary) TaskSummaryResponse {
	return TaskSummaryResponse{
		ID:          s.ID,
		Name:        s.Name,
		Subject:     s.Subject,
		Description: s.Description,
		Status:      string(s.Status),
		Priority:    s.Priority,
		Skipable:    s.Skipable,
		ActualOwner: s.ActualOwner,
		CreatedBy:   s.CreatedBy,
		CreatedOn:   s.CreatedOn,
	}
}

func eventResponse(e domain.Event) EventResponse {
	payload := map[string]any{}
	if e.Payload != "" {
		if err := json.Unmarshal([]byte(e.Payload), &payload); err != nil {
			payload = map[string]any{"raw": e.Payload}
		}
	}
	return EventResponse{
		ID:         e.ID,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		TS:         e.TS,
		Payload:    payload,
	}
}

func parseStatuses(in []string) ([]domain.Status, error) {
	var out []domain.Status
	for _, raw := range in {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			s := domain.Status(part)
			if !s.Valid() {
				return nil, engine.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", part)}
			}
			out = append(out, s)
		}
	}
	return out, nil
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
