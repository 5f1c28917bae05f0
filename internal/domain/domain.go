package domain

// Status is the lifecycle state of a task.
type Status string

const (
	StatusCreated    Status = "Created"
	StatusReady      Status = "Ready"
	StatusReserved   Status = "Reserved"
	StatusInProgress Status = "InProgress"
	StatusSuspended  Status = "Suspended"
	StatusCompleted  Status = "Completed"
	StatusFailed     Status = "Failed"
	StatusExited     Status = "Exited"
	StatusObsolete   Status = "Obsolete"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusExited, StatusObsolete:
		return true
	}
	return false
}

// Valid reports whether s names a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusReady, StatusReserved, StatusInProgress, StatusSuspended,
		StatusCompleted, StatusFailed, StatusExited, StatusObsolete:
		return true
	}
	return false
}

// ActiveStatuses are the statuses reported by assignment queries when no filter is given.
var ActiveStatuses = []Status{StatusCreated, StatusReady, StatusReserved, StatusInProgress, StatusSuspended}

type AccessType string

const (
	AccessInline    AccessType = "Inline"
	AccessReference AccessType = "Reference"
)

// NoContent marks an unset content reference.
const NoContent int64 = -1

type ContentRef struct {
	ContentID  int64      `json:"content_id"`
	Type       string     `json:"type,omitempty"`
	AccessType AccessType `json:"access_type,omitempty" enum:"Inline,Reference,"`
}

// EmptyRef returns a reference pointing at no content.
func EmptyRef() ContentRef {
	return ContentRef{ContentID: NoContent}
}

// Set reports whether the reference points at stored content.
func (r ContentRef) Set() bool {
	return r.ContentID != NoContent
}

type I18NText struct {
	Language string `json:"language"`
	Text     string `json:"text"`
}

type TaskData struct {
	Status         Status                `json:"status"`
	PreviousStatus *Status               `json:"previous_status,omitempty"`
	ActualOwner    *OrganizationalEntity `json:"actual_owner,omitempty"`
	CreatedBy      *OrganizationalEntity `json:"created_by,omitempty"`
	Skipable       bool                  `json:"skipable"`
	Document       ContentRef            `json:"document"`
	Output         ContentRef            `json:"output"`
	Fault          ContentRef            `json:"fault"`
	FaultName      string                `json:"fault_name,omitempty"`
	CreatedOn      string                `json:"created_on" format:"date-time"`
	ActivationTime string                `json:"activation_time,omitempty" format:"date-time"`
}

type PeopleAssignments struct {
	PotentialOwners        EntityList `json:"potential_owners"`
	BusinessAdministrators EntityList `json:"business_administrators"`
	Recipients             EntityList `json:"recipients"`
	ExcludedOwners         EntityList `json:"excluded_owners"`
	TaskStakeholders       EntityList `json:"task_stakeholders"`
}

type Task struct {
	ID                int64      `json:"id"`
	Version           int64      `json:"version"`
	Priority          int        `json:"priority"`
	Names             []I18NText `json:"names"`
	Subjects          []I18NText `json:"subjects,omitempty"`
	Descriptions      []I18NText `json:"descriptions,omitempty"`
	TaskData          `json:"task_data"`
	PeopleAssignments `json:"people_assignments"`
}

// Name returns the task name for the locale, falling back to the first name.
func (t Task) Name(locale string) string {
	return localized(t.Names, locale)
}

func localized(texts []I18NText, locale string) string {
	for _, txt := range texts {
		if txt.Language == locale {
			return txt.Text
		}
	}
	if len(texts) > 0 {
		return texts[0].Text
	}
	return ""
}

type Content struct {
	ID         int64      `json:"id"`
	Type       string     `json:"type,omitempty"`
	AccessType AccessType `json:"access_type"`
	Data       []byte     `json:"data"`
	Size       int64      `json:"size"`
	CreatedAt  string     `json:"created_at" format:"date-time"`
}

// ContentData is a payload supplied by a caller before it has been stored.
type ContentData struct {
	Type       string     `json:"type,omitempty"`
	AccessType AccessType `json:"access_type"`
	Content    []byte     `json:"content"`
}

type FaultData struct {
	ContentData
	FaultName string `json:"fault_name"`
}

type TaskSummary struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Subject     string  `json:"subject,omitempty"`
	Description string  `json:"description,omitempty"`
	Status      Status  `json:"status"`
	Priority    int     `json:"priority"`
	Skipable    bool    `json:"skipable"`
	ActualOwner *string `json:"actual_owner,omitempty"`
	CreatedBy   *string `json:"created_by,omitempty"`
	CreatedOn   string  `json:"created_on" format:"date-time"`
}

// Summarize builds the locale-resolved read model of t.
func Summarize(t Task, locale string) TaskSummary {
	s := TaskSummary{
		ID:          t.ID,
		Name:        localized(t.Names, locale),
		Subject:     localized(t.Subjects, locale),
		Description: localized(t.Descriptions, locale),
		Status:      t.Status,
		Priority:    t.Priority,
		Skipable:    t.Skipable,
		CreatedOn:   t.CreatedOn,
	}
	if t.ActualOwner != nil {
		id := t.ActualOwner.ID
		s.ActualOwner = &id
	}
	if t.CreatedBy != nil {
		id := t.CreatedBy.ID
		s.CreatedBy = &id
	}
	return s
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload"`
}

type APIKey struct {
	ID        string   `json:"id"`
	ActorID   string   `json:"actor_id"`
	GroupIDs  []string `json:"group_ids,omitempty"`
	Name      string   `json:"name,omitempty"`
	KeyHash   string   `json:"key_hash,omitempty"`
	CreatedAt string   `json:"created_at"`
}

// Clone returns a deep copy of t.
func (t Task) Clone() Task {
	c := t
	c.Names = append([]I18NText(nil), t.Names...)
	c.Subjects = append([]I18NText(nil), t.Subjects...)
	c.Descriptions = append([]I18NText(nil), t.Descriptions...)
	if t.PreviousStatus != nil {
		s := *t.PreviousStatus
		c.PreviousStatus = &s
	}
	if t.ActualOwner != nil {
		o := *t.ActualOwner
		c.ActualOwner = &o
	}
	if t.CreatedBy != nil {
		o := *t.CreatedBy
		c.CreatedBy = &o
	}
	c.PotentialOwners = append(EntityList(nil), t.PotentialOwners...)
	c.BusinessAdministrators = append(EntityList(nil), t.BusinessAdministrators...)
	c.Recipients = append(EntityList(nil), t.Recipients...)
	c.ExcludedOwners = append(EntityList(nil), t.ExcludedOwners...)
	c.TaskStakeholders = append(EntityList(nil), t.TaskStakeholders...)
	return c
}
