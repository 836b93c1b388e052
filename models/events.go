package models

// ChangeReason classifies a local store mutation for subscribers.
type ChangeReason string

const (
	ChangeSave     ChangeReason = "save"
	ChangeDelete   ChangeReason = "delete"
	ChangeSync     ChangeReason = "sync"
	ChangePaginate ChangeReason = "paginate"
)

// ChangeEvent is published by the record store after a mutation commits.
type ChangeEvent struct {
	Reason ChangeReason
	IDs    []string
}
