package httpapi

import "github.com/kingdavid28/chatstatus/internal/session"

// Service exposes one Session over HTTP.
type Service struct {
	session *session.Session
}

func NewService(s *session.Session) *Service {
	return &Service{session: s}
}
