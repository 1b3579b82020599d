package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/gptkong/ip-quality-dashboard/internal/auth"
	"github.com/gptkong/ip-quality-dashboard/internal/config"
	"github.com/gptkong/ip-quality-dashboard/internal/database"
	"github.com/gptkong/ip-quality-dashboard/internal/handler"
	"github.com/gptkong/ip-quality-dashboard/internal/service"
	"github.com/gptkong/ip-quality-dashboard/web"
)

func Start(cfg *config.Config, log *zap.Logger, version string) error {
	db, err := database.Open(cfg.Database.DSN, web.MigrationsFS())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()

	sessionMgr, err := auth.NewSessionManager(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to init session manager: %w", err)
	}
	_ = db.PurgeExpiredSessions(ctx)

	var ldapClient *auth.LDAPClient
	if cfg.LDAP.Enabled {
		ldapClient = auth.NewLDAPClient(cfg.LDAP)
		log.Info("LDAP authentication enabled",
			zap.String("url", cfg.LDAP.URL),
			zap.Int("mapped_roles", len(cfg.LDAP.GroupMapping)),
		)
	}

	svc := service.New(db, log)

	serverH := handler.NewServerHandler(svc, db, log)
	unlockH := handler.NewUnlockHandler(svc, db, log)
	remarkH := handler.NewRemarkHandler(svc, sessionMgr, db, cfg.Auth.RemarkMaxLen, log)
	scriptH := handler.NewScriptHandler()
	authH := handler.NewAuthHandler(db, sessionMgr, ldapClient, db, log)
	adminH := handler.NewAdminHandler(db, sessionMgr, db, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(handler.AccessLog(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Route("/api", func(r chi.Router) {
		r.Get("/script", scriptH.Generate)

		r.Route("/servers", func(r chi.Router) {
			r.With(handler.RequireToken(cfg.Auth.APIToken)).Post("/", serverH.Submit)
			r.Get("/", serverH.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", serverH.Get)
				r.Get("/history", serverH.History)
				r.With(sessionMgr.RequireAdmin, sessionMgr.ValidateCSRF).Patch("/remark", remarkH.Update)
				r.With(handler.RequireToken(cfg.Auth.APIToken)).Post("/platform-unlock", unlockH.Submit)
				r.Get("/platform-unlock", unlockH.Get)
			})
		})

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authH.Login)
			r.Post("/logout", authH.Logout)
			r.Get("/me", authH.Me)
			r.Get("/setup", authH.SetupStatus)
			r.Post("/setup", authH.Setup)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(sessionMgr.RequireAdmin)
			r.Get("/users", adminH.ListUsers)
			r.With(sessionMgr.ValidateCSRF).Post("/users", adminH.CreateUser)
			r.With(sessionMgr.ValidateCSRF).Delete("/users/{username}", adminH.DeleteUser)
			r.Get("/audit", adminH.AuditLog)
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info("server starting", zap.String("addr", addr), zap.String("version", version))

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv.ListenAndServe()
}
