package models

import "time"

type NoteTag string

const (
	NoteTagWork      NoteTag = "work"
	NoteTagPersonal  NoteTag = "personal"
	NoteTagMeeting   NoteTag = "meeting"
	NoteTagShopping  NoteTag = "shopping"
	NoteTagIdeas     NoteTag = "ideas"
	NoteTagTravel    NoteTag = "travel"
	NoteTagFinance   NoteTag = "finance"
	NoteTagHealth    NoteTag = "health"
	NoteTagImportant NoteTag = "important"
	NoteTagTodo      NoteTag = "todo"
)

var noteTags = []NoteTag{
	NoteTagWork,
	NoteTagPersonal,
	NoteTagMeeting,
	NoteTagShopping,
	NoteTagIdeas,
	NoteTagTravel,
	NoteTagFinance,
	NoteTagHealth,
	NoteTagImportant,
	NoteTagTodo,
}

// NoteTags returns every tag in declaration order.
func NoteTags() []NoteTag {
	out := make([]NoteTag, len(noteTags))
	copy(out, noteTags)
	return out
}

func (t NoteTag) Valid() bool {
	for _, tag := range noteTags {
		if tag == t {
			return true
		}
	}
	return false
}

type Note struct {
	ID        string
	UserID    string
	Title     string
	Content   string
	IsDone    bool
	Tag       NoteTag
	CreatedAt time.Time
	UpdatedAt time.Time
}

type NoteSortField string

const (
	NoteSortID        NoteSortField = "id"
	NoteSortTitle     NoteSortField = "title"
	NoteSortCreatedAt NoteSortField = "createdAt"
	NoteSortUpdatedAt NoteSortField = "updatedAt"
)

func (f NoteSortField) Valid() bool {
	switch f {
	case NoteSortID, NoteSortTitle, NoteSortCreatedAt, NoteSortUpdatedAt:
		return true
	}
	return false
}

type SortOrder string

const (
	SortAsc  SortOrder = "ASC"
	SortDesc SortOrder = "DESC"
)

// NoteFilter narrows a note listing. Nil pointers mean "any".
type NoteFilter struct {
	Search    string
	Tag       *NoteTag
	IsDone    *bool
	SortBy    NoteSortField
	SortOrder SortOrder
	Limit     int
	Offset    int
}

// NotePatch carries the fields of a partial note update.
type NotePatch struct {
	Title   *string
	Content *string
	IsDone  *bool
	Tag     *NoteTag
}
