package tui

import (
	"fsconsole/internal/model"
	"fsconsole/internal/session"
	"fsconsole/internal/tagging"
)

type view int

const (
	viewTable view = iota
	viewDetail
	viewHelp
)

type modalKind int

const (
	modalNone modalKind = iota
	modalEditTag
	modalEditDescription
	modalFilterTag
	modalFilterName
	modalFilterLabels
	modalProject
)

func (k modalKind) title() string {
	switch k {
	case modalEditTag:
		return "Edit tag"
	case modalEditDescription:
		return "Edit description"
	case modalFilterTag:
		return "Tag filter"
	case modalFilterName:
		return "Name filter"
	case modalFilterLabels:
		return "Label filter"
	case modalProject:
		return "Project"
	default:
		return ""
	}
}

type fetchDoneMsg struct {
	kind model.Kind
	res  session.FetchResult
}

type tagsDoneMsg struct {
	kind    model.Kind
	project string
	tags    []string
	err     error
}

type expandDoneMsg struct {
	kind model.Kind
	res  session.ExpandResult
}

// tagDoneMsg reports a finished tag mutation. original is the item before the
// optimistic update.
type tagDoneMsg struct {
	kind     model.Kind
	original model.Item
	out      tagging.Outcome
	err      error
	// rejected is set when the edit failed its checks and no mutation was issued.
	rejected bool
}

type detailsDoneMsg struct {
	kind     model.Kind
	original model.Item
	out      tagging.DetailsOutcome
	err      error
}

type retryDoneMsg struct {
	err error
}
