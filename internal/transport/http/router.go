package http

import (
	"net/http"

	"github.com/evote-api/internal/application/auth"
	"github.com/evote-api/internal/application/election"
	"github.com/evote-api/internal/config"
	"github.com/evote-api/internal/domain"
	"github.com/evote-api/internal/transport/http/handler"
	appmiddleware "github.com/evote-api/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authMw := appmiddleware.Auth(deps.JWTProvider)

	// 5 requests/second, burst of 10 — applied to the credential and
	// biometric endpoints so code guessing and capture spam stay expensive.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	authSvc := auth.NewService(auth.ServiceDeps{
		Voters:            deps.VoterRepo,
		Sessions:          deps.SessionRepo,
		Blobs:             deps.Blobs,
		Challenges:        deps.Challenges,
		Matcher:           deps.Matcher,
		Signer:            deps.JWTProvider,
		FaceThreshold:     cfg.FaceThreshold,
		FacePendingTTL:    cfg.FacePendingTTL,
		AdminUsername:     cfg.AdminUsername,
		AdminPasswordHash: cfg.AdminPasswordHash,
	})
	electionSvc := election.NewService(election.ServiceDeps{
		Elections:  deps.ElectionRepo,
		Candidates: deps.CandidateRepo,
		Votes:      deps.VoteRepo,
	})

	healthH := handler.NewHealthHandler()
	authH := handler.NewAuthHandler(authSvc)
	electionH := handler.NewElectionHandler(electionSvc)
	voterH := handler.NewVoterHandler(authSvc)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.Post("/health-check/{action}", healthH.Ping)
		r.Get("/test", healthH.Test)
		r.Post("/test", healthH.Test)

		r.With(sensitiveRL.Limit).Post("/auth/register", authH.Register)
		r.With(sensitiveRL.Limit).Post("/auth/login", authH.Login)
		r.With(sensitiveRL.Limit).Post("/auth/confirm-otp", authH.ConfirmOTP)
		r.With(sensitiveRL.Limit).Post("/auth/confirm-face", authH.ConfirmFace)
		r.With(sensitiveRL.Limit).Post("/auth/admin/login", authH.AdminLogin)

		r.Get("/elections/results", electionH.Results)
		r.Get("/voters/{id}/portrait", voterH.Portrait)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)
			// A valid JWT is not enough: the session row it is bound to must
			// still be enabled, otherwise logout would be a client-side fiction.
			r.Use(appmiddleware.ActiveSession(deps.SessionRepo))

			r.Post("/auth/logout", authH.Logout)
			r.Get("/voters/me", voterH.Me)

			r.Get("/elections/active", electionH.Active)
			r.Post("/elections/{id}/votes", electionH.CastVote)
			r.Get("/elections/{id}/votes/me", electionH.MyVote)
			r.Get("/elections/{id}/tally", electionH.Tally)

			// Admin-only routes
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireRole(domain.RoleAdmin))

				r.Get("/elections", electionH.List)
				r.Post("/elections", electionH.Start)
				r.Post("/elections/{id}/close", electionH.Close)
				r.Post("/elections/candidates", electionH.AddCandidate)

				r.Get("/voters", voterH.List)
				r.Get("/voters/{id}", voterH.Get)
			})
		})
	})

	return r
}
