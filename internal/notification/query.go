package notification

import "time"

// Records returns a copy of every record, most recent first.
func (s *Store) Records() []Record {
	return s.filter(func(Record) bool { return true })
}

func (s *Store) Get(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.records[i], true
	}
	return Record{}, false
}

func (s *Store) ByCategory(c Category) []Record {
	return s.filter(func(r Record) bool { return r.Category == c })
}

// AtLeastPriority returns records whose priority is p or higher.
func (s *Store) AtLeastPriority(p Priority) []Record {
	return s.filter(func(r Record) bool { return r.Priority >= p })
}

func (s *Store) Unread() []Record {
	return s.filter(func(r Record) bool { return !r.Read })
}

// Recent returns records created within the last hours.
func (s *Store) Recent(hours int) []Record {
	cutoff := s.now().Add(-time.Duration(hours) * time.Hour)
	return s.filter(func(r Record) bool { return !r.CreatedAt.Before(cutoff) })
}

func (s *Store) filter(keep func(Record) bool) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
