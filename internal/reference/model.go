package reference

import (
	"fmt"
	"strings"
)

// Kind — тип источника.
type Kind string

const (
	KindCSV      Kind = "csv"
	KindJSON     Kind = "json"
	KindCommCare Kind = "commcare"
	KindONA      Kind = "ona"
	KindGSheet   Kind = "gsheet"
)

// Schedule — расписание автозагрузки.
type Schedule string

const (
	ScheduleDisabled Schedule = "disabled"
	ScheduleDaily    Schedule = "daily"
	ScheduleWeekly   Schedule = "weekly"
)

// Source описывает один источник данных ("read")
type Source struct {
	ID       string   `yaml:"id" json:"id"`
	Name     string   `yaml:"name" json:"name"`
	Kind     Kind     `yaml:"kind" json:"kind"`
	URL      string   `yaml:"url" json:"url"`
	Username string   `yaml:"username,omitempty" json:"username,omitempty"`
	Password string   `yaml:"password,omitempty" json:"-"`
	Token    string   `yaml:"token,omitempty" json:"-"`
	Schedule Schedule `yaml:"schedule,omitempty" json:"schedule"`
	// Таблица по умолчанию для автозагрузки
	Table string `yaml:"table,omitempty" json:"table,omitempty"`
	// Размер страницы для постраничных лент (CommCare)
	PageSize int `yaml:"page_size,omitempty" json:"page_size,omitempty"`
}

func (s *Source) normalize() error {
	s.Kind = Kind(strings.ToLower(strings.TrimSpace(string(s.Kind))))
	switch s.Kind {
	case KindCSV, KindJSON, KindCommCare, KindONA, KindGSheet:
	case "":
		s.Kind = KindJSON
	default:
		return fmt.Errorf("source %q: unknown kind %q", s.Name, s.Kind)
	}
	s.Schedule = Schedule(strings.ToLower(strings.TrimSpace(string(s.Schedule))))
	switch s.Schedule {
	case ScheduleDisabled, ScheduleDaily, ScheduleWeekly:
	case "":
		s.Schedule = ScheduleDisabled
	default:
		return fmt.Errorf("source %q: unknown schedule %q", s.Name, s.Schedule)
	}
	return nil
}
