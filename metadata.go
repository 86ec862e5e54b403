package latis

import (
	"time"

	"github.com/google/uuid"
)

// Metadata is the sheet's identity and bookkeeping: a stable ID (useful
// to a persistence or CLI collaborator for addressing a specific sheet),
// a title and author, and creation/edit timestamps.
type Metadata struct {
	ID          uuid.UUID
	title       string
	author      string
	createdTime time.Time
	editedTime  time.Time
}

func newMetadata(clock Clock, title, author string) *Metadata {
	now := clock.Now()
	return &Metadata{
		ID:          uuid.New(),
		title:       title,
		author:      author,
		createdTime: now,
		editedTime:  now,
	}
}

func (m *Metadata) Title() string         { return m.title }
func (m *Metadata) Author() string        { return m.author }
func (m *Metadata) CreatedTime() time.Time { return m.createdTime }
func (m *Metadata) EditedTime() time.Time  { return m.editedTime }

// SetTitle updates the title and touches edited_time, matching the
// original's accessor shape where a metadata setter also bumps the
// edit timestamp.
func (m *Metadata) SetTitle(clock Clock, title string) {
	m.title = title
	m.editedTime = clock.Now()
}

func (m *Metadata) SetAuthor(clock Clock, author string) {
	m.author = author
	m.editedTime = clock.Now()
}
