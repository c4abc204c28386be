package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// NewRouter wires all routes and middleware.
func NewRouter(s *Server, health *HealthHandler, log logrus.FieldLogger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log))

	r.Get("/", s.handleRoot)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Twilio posts the incoming-call webhook but GET is handy for checks.
	r.Get("/incoming-call", s.handleIncomingCall)
	r.Post("/incoming-call", s.handleIncomingCall)

	r.Get("/media-stream", s.handleMediaStream)

	r.Post("/make-call", s.handleMakeCall)
	r.Get("/call-status/{callSID}", s.handleCallStatus)
	r.Get("/call-transcript/{callSID}", s.handleCallTranscript)
	r.Get("/call-outcome/{callSID}", s.handleCallOutcome)

	return r
}
