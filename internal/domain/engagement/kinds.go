// Package engagement decides when a page should surface the engagement
// prompt. Four independent watchers (time, scroll, exit intent, page
// visits) request the prompt; a global gate backed by persisted prompt
// state decides whether the request is honoured.
package engagement

import (
	"encoding/json"
	"fmt"
)

// TriggerKind identifies what caused a prompt request.
type TriggerKind int

const (
	TriggerTime TriggerKind = iota + 1
	TriggerScroll
	TriggerExitIntent
	TriggerPageVisit
	TriggerManual
)

// WatcherKinds lists the kinds backed by a watcher. Manual is not one.
var WatcherKinds = []TriggerKind{TriggerTime, TriggerScroll, TriggerExitIntent, TriggerPageVisit}

var triggerNames = map[TriggerKind]string{
	TriggerTime:       "time",
	TriggerScroll:     "scroll",
	TriggerExitIntent: "exit-intent",
	TriggerPageVisit:  "page-visit",
	TriggerManual:     "manual",
}

func (k TriggerKind) String() string {
	if name, ok := triggerNames[k]; ok {
		return name
	}
	return fmt.Sprintf("TriggerKind(%d)", int(k))
}

// ParseTriggerKind is the inverse of String.
func ParseTriggerKind(s string) (TriggerKind, error) {
	for kind, name := range triggerNames {
		if name == s {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown trigger kind %q", s)
}

func (k TriggerKind) MarshalJSON() ([]byte, error) {
	name, ok := triggerNames[k]
	if !ok {
		return nil, fmt.Errorf("cannot marshal %s", k)
	}
	return json.Marshal(name)
}

func (k *TriggerKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTriggerKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// WatcherStatus is the per-page state of a single watcher.
type WatcherStatus int

const (
	// StatusDisarmed means the watcher was never armed on this page.
	StatusDisarmed WatcherStatus = iota
	StatusArmed
	StatusFired
)

func (s WatcherStatus) String() string {
	switch s {
	case StatusArmed:
		return "armed"
	case StatusFired:
		return "fired"
	default:
		return "disarmed"
	}
}

// Decision is the outcome of a prompt request.
type Decision int

const (
	Suppressed Decision = iota
	Fired
)

func (d Decision) String() string {
	if d == Fired {
		return "fires"
	}
	return "suppressed"
}

// PageCategory selects the time watcher's delay.
type PageCategory int

const (
	PageContent PageCategory = iota
	PageHome
	// PageContact never arms the time watcher.
	PageContact
)

func (c PageCategory) String() string {
	switch c {
	case PageHome:
		return "home"
	case PageContact:
		return "contact"
	default:
		return "content"
	}
}
