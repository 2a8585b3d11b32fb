package errors

import "fmt"

var (
	ErrRoomNotFound    = fmt.Errorf("room not found")
	ErrUserNotFound    = fmt.Errorf("user not found")
	ErrMessageNotFound = fmt.Errorf("message not found")
	ErrRoomCodeTaken   = fmt.Errorf("room code already taken")
	ErrEmptyContent    = fmt.Errorf("empty message content")
	ErrWorkerPanic     = fmt.Errorf("worker panic")
)
