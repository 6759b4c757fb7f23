package midilist

import (
	"github.com/beatfold/midiseq/internal/treestore"
)

// Selection tracks externally selected events by backing record. Lists
// detach removed events from their selection before destroying the
// wrapper, so a selection can never point at a dead event.
type Selection struct {
	records map[treestore.Handle]struct{}
}

func NewSelection() *Selection {
	return &Selection{records: map[treestore.Handle]struct{}{}}
}

func (s *Selection) Add(e TimedEvent)    { s.records[e.Record()] = struct{}{} }
func (s *Selection) Remove(e TimedEvent) { delete(s.records, e.Record()) }
func (s *Selection) Contains(e TimedEvent) bool {
	_, ok := s.records[e.Record()]
	return ok
}
func (s *Selection) Len() int { return len(s.records) }

func (s *Selection) removeRecord(rec treestore.Handle) {
	delete(s.records, rec)
}
