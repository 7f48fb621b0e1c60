package errors

import "fmt"

var (
	ErrWorkerPanic     = fmt.Errorf("worker panic")
	ErrRoomNotFound    = fmt.Errorf("room not found")
	ErrEmptyBody       = fmt.Errorf("message body is empty")
	ErrInvalidRole     = fmt.Errorf("role must be human or ai")
	ErrRoleLocked      = fmt.Errorf("role is already bound for this identity")
	ErrNotPrimaryHuman = fmt.Errorf("only the primary human may do this")
)
