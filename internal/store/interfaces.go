package store

import "github.com/cloudmirror/cloudmirror/models"

//go:generate mockgen -source=interfaces.go -destination=../mock/store_mock.go -package=mock

// ContextObserver receives context lifecycle events. WillSave runs before
// the commit transaction opens and may amend staged objects (e.g. assign
// record names to new inserts); DidSave runs after a successful commit with
// the transaction as recorded in history.
//
// Observers are invoked synchronously on the saving goroutine; long work
// belongs on the observer's own queue.
type ContextObserver interface {
	WillSave(c *Context)
	DidSave(c *Context, txn models.Transaction)
}
