// CLAUDE:SUMMARY Entry point for the encart HTTP service — chi router, JWT sessions, rate-limited public serving.
package main

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/encart/audit"
	"github.com/hazyhaar/encart/auth"
	"github.com/hazyhaar/encart/dbopen"
	"github.com/hazyhaar/encart/encart"
	"github.com/hazyhaar/encart/idgen"
	"github.com/hazyhaar/encart/importer"
	"github.com/hazyhaar/encart/policy"
	"github.com/hazyhaar/encart/shield"
)

func main() {
	port := env("PORT", "8086")
	secretInput := os.Getenv("SESSION_SECRET")
	if secretInput == "" {
		slog.Error("SESSION_SECRET is required")
		os.Exit(1)
	}
	// Derive 32-byte JWT secret via SHA-256 (satisfies horosafe.MinSecretLen).
	secretHash := sha256.Sum256([]byte(secretInput))
	jwtSecret := secretHash[:]

	dbPath := env("DB_PATH", "db/encart.db")
	policyPath := env("POLICY_FILE", "")
	aiURL := env("AI_UPSTREAM_URL", "")
	logLevel := env("LOG_LEVEL", "info")

	// Logging.
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Admission policy (built-in defaults, optional YAML override).
	pol := policy.Default()
	if policyPath != "" {
		if err := pol.LoadYAML(policyPath); err != nil {
			slog.Error("load policy", "path", policyPath, "error", err)
			os.Exit(1)
		}
		slog.Info("policy loaded", "path", policyPath, "trusted_domains", len(pol.TrustedDomains))
	}

	// Database.
	db, err := dbopen.Open(dbPath, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("open db", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Admin action trail.
	auditLog, err := audit.New(db)
	if err != nil {
		slog.Error("audit log", "error", err)
		os.Exit(1)
	}
	defer auditLog.Close()

	// Encart service (applies schema).
	svc, err := encart.New(db, pol, logger, encart.WithAudit(auditLog))
	if err != nil {
		slog.Error("encart service", "error", err)
		os.Exit(1)
	}

	// Seed admin user if no admin exists.
	if err := seedAdmin(ctx, db); err != nil {
		slog.Error("seed admin", "error", err)
		os.Exit(1)
	}

	// Rate limiter backed by the same DB, with in-memory fallback.
	limiter := shield.NewLimiter(svc.Store())
	serveRule := shield.Rule{FunctionName: "encarts_serve", MaxRequests: 60, Window: time.Minute}
	refreshRule := shield.Rule{FunctionName: "feeds_refresh", MaxRequests: 30, Window: time.Minute}
	importRule := shield.Rule{FunctionName: "article_import", MaxRequests: 20, Window: time.Minute}
	aiRule := shield.Rule{FunctionName: "ai_generate", MaxRequests: 20, Window: time.Minute}
	limiter.StartCleanup(ctx, 5*time.Minute)

	// Maintenance mode, reloaded from site_settings.
	maint := shield.NewMaintenanceMode(db, "/health", "/api/auth")
	maint.StartReloader(ctx.Done(), 30*time.Second)

	// Article importer.
	imp := importer.New(logger)

	// User service.
	users := &userService{db: db}

	// Router.
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(pol) {
		r.Use(mw)
	}
	r.Use(maint.Middleware)
	r.Use(auth.Middleware(jwtSecret)) // Parse JWT on all routes (soft — doesn't enforce).

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	// Public serving endpoint — rate limited per client IP.
	r.Group(func(r chi.Router) {
		r.Use(limiter.Limit(serveRule))
		r.Get("/api/encarts/serve", func(w http.ResponseWriter, r *http.Request) {
			location := r.URL.Query().Get("location")
			bundle, err := svc.Serve(r.Context(), location)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, bundle)
		})
	})

	// Public auth endpoints (no session required).
	r.Post("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, 400, err)
			return
		}
		claims, err := users.authenticate(r.Context(), req.Email, req.Password)
		if err != nil {
			writeJSON(w, 401, map[string]string{"error": "identifiants invalides"})
			return
		}
		token, err := auth.GenerateToken(jwtSecret, claims, 24*time.Hour)
		if err != nil {
			writeInternalError(w, err)
			return
		}
		secure := r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
		auth.SetTokenCookie(w, token, secure)
		writeJSON(w, 200, map[string]string{"id": claims.UserID, "name": claims.Username, "role": claims.Role})
	})

	r.Post("/api/auth/logout", func(w http.ResponseWriter, _ *http.Request) {
		auth.ClearTokenCookie(w)
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	// All remaining API endpoints require a valid session.
	r.Group(func(r chi.Router) {
		r.Use(requireSession)

		r.Get("/api/auth/me", func(w http.ResponseWriter, r *http.Request) {
			c := auth.GetClaims(r.Context())
			writeJSON(w, 200, map[string]string{"id": c.UserID, "name": c.Username, "role": c.Role})
		})

		// Feeds (read for any session, mutation admin-only below).
		r.Get("/api/feeds", func(w http.ResponseWriter, r *http.Request) {
			feeds, err := svc.ListFeeds(r.Context())
			if err != nil {
				writeInternalError(w, err)
				return
			}
			writeJSON(w, 200, feeds)
		})

		r.Get("/api/feeds/{id}/items", func(w http.ResponseWriter, r *http.Request) {
			items, err := svc.ListFeedItems(r.Context(), chi.URLParam(r, "id"), queryInt(r, "limit", 50))
			if err != nil {
				writeInternalError(w, err)
				return
			}
			writeJSON(w, 200, items)
		})

		// Article import — rate limited.
		r.Group(func(r chi.Router) {
			r.Use(limiter.Limit(importRule))
			r.Post("/api/articles/import", func(w http.ResponseWriter, r *http.Request) {
				var req struct {
					URL string `json:"url"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					writeError(w, 400, err)
					return
				}
				article, err := imp.Import(r.Context(), req.URL)
				if err != nil {
					if errors.Is(err, importer.ErrNoContent) {
						writeJSON(w, 422, map[string]string{"error": "aucun contenu exploitable"})
						return
					}
					writeError(w, 400, err)
					return
				}
				writeJSON(w, 200, article)
			})
		})

		// AI generation — rate limited; 503 until an upstream is configured.
		r.Group(func(r chi.Router) {
			r.Use(limiter.Limit(aiRule))
			r.Post("/api/ai/generate", func(w http.ResponseWriter, r *http.Request) {
				if aiURL == "" {
					writeJSON(w, 503, map[string]string{"error": "generation IA non configuree"})
					return
				}
				proxyAIGenerate(w, r, aiURL)
			})
		})

		// Admin surface.
		r.Group(func(r chi.Router) {
			r.Use(requireAdmin)

			// Snippets.
			r.Route("/api/admin/snippets", func(r chi.Router) {
				r.Get("/", func(w http.ResponseWriter, r *http.Request) {
					list, err := svc.ListSnippets(r.Context())
					if err != nil {
						writeInternalError(w, err)
						return
					}
					writeJSON(w, 200, list)
				})

				r.Post("/", func(w http.ResponseWriter, r *http.Request) {
					var req snippetRequest
					if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
						writeError(w, 400, err)
						return
					}
					sn, err := svc.CreateSnippet(r.Context(), req.Name, req.Location, req.Code, req.active(), req.Priority)
					if err != nil {
						writeServiceError(w, err)
						return
					}
					writeJSON(w, 201, sn)
				})

				r.Post("/preview", func(w http.ResponseWriter, r *http.Request) {
					var req struct {
						Code string `json:"code"`
					}
					if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
						writeError(w, 400, err)
						return
					}
					writeJSON(w, 200, map[string]any{
						"bundle":   svc.Preview(req.Code),
						"warnings": svc.Advise(req.Code),
					})
				})

				r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
					sn, err := svc.GetSnippet(r.Context(), chi.URLParam(r, "id"))
					if err != nil {
						writeServiceError(w, err)
						return
					}
					writeJSON(w, 200, sn)
				})

				r.Put("/{id}", func(w http.ResponseWriter, r *http.Request) {
					var req snippetRequest
					if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
						writeError(w, 400, err)
						return
					}
					sn, err := svc.UpdateSnippet(r.Context(), chi.URLParam(r, "id"), req.Name, req.Location, req.Code, req.active(), req.Priority)
					if err != nil {
						writeServiceError(w, err)
						return
					}
					writeJSON(w, 200, sn)
				})

				r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
					if err := svc.DeleteSnippet(r.Context(), chi.URLParam(r, "id")); err != nil {
						writeServiceError(w, err)
						return
					}
					writeJSON(w, 200, map[string]string{"status": "deleted"})
				})
			})

			r.Get("/api/admin/locations", func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, 200, encart.Locations())
			})

			// Action trail.
			r.Get("/api/admin/audit", func(w http.ResponseWriter, r *http.Request) {
				limit := queryInt(r, "limit", 100)
				entries, err := auditLog.List(r.Context(), r.URL.Query().Get("entity"), limit)
				if err != nil {
					writeInternalError(w, err)
					return
				}
				writeJSON(w, 200, entries)
			})

			// Site settings.
			r.Route("/api/admin/settings", func(r chi.Router) {
				r.Get("/", func(w http.ResponseWriter, r *http.Request) {
					list, err := svc.ListSettings(r.Context())
					if err != nil {
						writeInternalError(w, err)
						return
					}
					writeJSON(w, 200, list)
				})

				r.Put("/{key}", func(w http.ResponseWriter, r *http.Request) {
					var req struct {
						Value string `json:"value"`
					}
					if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
						writeError(w, 400, err)
						return
					}
					key := chi.URLParam(r, "key")
					if err := svc.SetSetting(r.Context(), key, req.Value); err != nil {
						writeServiceError(w, err)
						return
					}
					writeJSON(w, 200, map[string]string{"key": key, "value": req.Value})
				})

				r.Delete("/{key}", func(w http.ResponseWriter, r *http.Request) {
					if err := svc.DeleteSetting(r.Context(), chi.URLParam(r, "key")); err != nil {
						writeServiceError(w, err)
						return
					}
					writeJSON(w, 200, map[string]string{"status": "deleted"})
				})
			})

			// Feed management.
			r.Post("/api/feeds", func(w http.ResponseWriter, r *http.Request) {
				var req struct {
					Name string `json:"name"`
					URL  string `json:"url"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					writeError(w, 400, err)
					return
				}
				f, err := svc.AddFeed(r.Context(), req.Name, req.URL)
				if err != nil {
					writeServiceError(w, err)
					return
				}
				writeJSON(w, 201, f)
			})

			r.Delete("/api/feeds/{id}", func(w http.ResponseWriter, r *http.Request) {
				if err := svc.DeleteFeed(r.Context(), chi.URLParam(r, "id")); err != nil {
					writeServiceError(w, err)
					return
				}
				writeJSON(w, 200, map[string]string{"status": "deleted"})
			})

			r.Group(func(r chi.Router) {
				r.Use(limiter.Limit(refreshRule))
				r.Post("/api/feeds/{id}/refresh", func(w http.ResponseWriter, r *http.Request) {
					count, err := svc.RefreshFeed(r.Context(), chi.URLParam(r, "id"))
					if err != nil {
						writeServiceError(w, err)
						return
					}
					writeJSON(w, 200, map[string]any{"status": "ok", "new_items": count})
				})
			})

			// User management.
			r.Route("/api/admin/users", func(r chi.Router) {
				r.Get("/", func(w http.ResponseWriter, r *http.Request) {
					list, err := users.listUsers(r.Context())
					if err != nil {
						writeInternalError(w, err)
						return
					}
					writeJSON(w, 200, list)
				})

				r.Post("/", func(w http.ResponseWriter, r *http.Request) {
					var req struct {
						Email    string `json:"email"`
						Name     string `json:"name"`
						Password string `json:"password"`
						Role     string `json:"role"`
					}
					if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
						writeError(w, 400, err)
						return
					}
					if req.Role == "" {
						req.Role = "publisher"
					}
					user, err := users.createUser(r.Context(), req.Email, req.Name, req.Password, req.Role)
					if err != nil {
						writeError(w, 400, err)
						return
					}
					writeJSON(w, 201, user)
				})

				r.Delete("/{userID}", func(w http.ResponseWriter, r *http.Request) {
					if err := users.deleteUser(r.Context(), chi.URLParam(r, "userID")); err != nil {
						writeInternalError(w, err)
						return
					}
					writeJSON(w, 200, map[string]string{"status": "deleted"})
				})
			})
		})
	})

	// HTTP server.
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

type snippetRequest struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Code     string `json:"code"`
	Active   *bool  `json:"active"`
	Priority int    `json:"priority"`
}

func (r snippetRequest) active() bool {
	if r.Active == nil {
		return true
	}
	return *r.Active
}

// --- Auth middleware ---

// requireSession returns 401 JSON if no valid JWT claims in context.
// auth.Middleware (applied globally) does the soft parsing.
func requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.GetClaims(r.Context()) == nil {
			writeJSON(w, 401, map[string]string{"error": "non authentifie"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := auth.GetClaims(r.Context())
		if c == nil || !c.IsAdmin() {
			writeJSON(w, 403, map[string]string{"error": "admin requis"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- User DB operations ---

func seedAdmin(ctx context.Context, db *sql.DB) error {
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role = 'admin' AND status = 'active'`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	password := env("ADMIN_PASSWORD", "admin123!!!")
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	id := idgen.New()
	_, err = db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, role, status, created_at) VALUES (?, ?, ?, ?, 'admin', 'active', ?)`,
		id, "admin", "admin", string(hash), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	slog.Info("admin user seeded", "email", "admin", "id", id)
	return nil
}

type userService struct {
	db *sql.DB
}

func (s *userService) authenticate(ctx context.Context, email, password string) (*auth.Claims, error) {
	var userID, name, role, hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, role, password_hash FROM users WHERE email = ? AND status = 'active'`, email).
		Scan(&userID, &name, &role, &hash)
	if err != nil {
		return nil, fmt.Errorf("user not found")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, fmt.Errorf("wrong password")
	}
	return &auth.Claims{
		UserID:   userID,
		Username: name,
		Role:     role,
		Email:    email,
	}, nil
}

func (s *userService) listUsers(ctx context.Context) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, email, role, status, created_at FROM users ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	users := []map[string]any{}
	for rows.Next() {
		var id, name, email, role, status string
		var createdAt int64
		if err := rows.Scan(&id, &name, &email, &role, &status, &createdAt); err != nil {
			return nil, err
		}
		users = append(users, map[string]any{
			"id": id, "name": name, "email": email,
			"role": role, "status": status, "created_at": createdAt,
		})
	}
	return users, rows.Err()
}

func (s *userService) createUser(ctx context.Context, email, name, password, role string) (map[string]string, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("email et mot de passe requis")
	}
	if role != "admin" && role != "publisher" {
		return nil, fmt.Errorf("role invalide: %s", role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	id := idgen.New()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, role, status, created_at) VALUES (?, ?, ?, ?, ?, 'active', ?)`,
		id, name, email, string(hash), role, time.Now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("creation utilisateur: %w", err)
	}
	return map[string]string{"id": id, "name": name, "email": email, "role": role}, nil
}

func (s *userService) deleteUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET status = 'deleted' WHERE id = ?`, userID)
	return err
}

// --- AI proxy ---

// proxyAIGenerate forwards the request body to the configured
// upstream and streams the response back verbatim.
func proxyAIGenerate(w http.ResponseWriter, r *http.Request, upstream string) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, upstream, r.Body)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		writeJSON(w, 502, map[string]string{"error": "generation IA indisponible"})
		return
	}
	defer resp.Body.Close()
	w.Header().Set("Content-Type", resp.Header.Get("Content-Type"))
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		slog.Error("ai proxy copy", "error", err)
	}
}

// --- Helpers ---

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// writeInternalError logs the raw detail and answers with a generic
// message. End users never see persistence or proxy internals.
func writeInternalError(w http.ResponseWriter, err error) {
	slog.Error("internal error", "error", err)
	writeJSON(w, 500, map[string]string{"error": "erreur interne"})
}

// writeServiceError maps service sentinel errors to HTTP codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, encart.ErrInvalidInput):
		writeError(w, 400, err)
	case errors.Is(err, encart.ErrNotFound):
		writeError(w, 404, err)
	case errors.Is(err, encart.ErrDuplicate):
		writeError(w, 409, err)
	default:
		writeInternalError(w, err)
	}
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
