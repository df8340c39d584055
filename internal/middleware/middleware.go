package middleware

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"waaku-golang/internal/config"
	"waaku-golang/internal/models"
	"waaku-golang/pkg/logger"
)

var rawKeyPattern = regexp.MustCompile(`^[a-f0-9]{32}$`)

// AuthError carrega o código estável devolvido em respostas 401.
type AuthError struct {
	Code    string
	Message string
}

// SecureHash devolve o hash SHA-512 hex de uma chave de API crua. O servidor
// só armazena o hash; o cliente envia a chave crua no header X-API-Key.
func SecureHash(rawKey string) string {
	sum := sha512.Sum512([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

// CheckAPIKey valida uma chave crua contra o hash configurado. A comparação
// dos hashes é em tempo constante.
func CheckAPIKey(provided, storedHash string) *AuthError {
	if provided == "" {
		return &AuthError{
			Code:    "MISSING_API_KEY",
			Message: "Header X-API-Key é obrigatório",
		}
	}
	if !rawKeyPattern.MatchString(provided) {
		return &AuthError{
			Code:    "INVALID_API_KEY_FORMAT",
			Message: "A chave de API deve ser um UUID4 sem traços (32 caracteres hex)",
		}
	}

	providedHash, err := hex.DecodeString(SecureHash(provided))
	if err != nil {
		return &AuthError{Code: "INVALID_API_KEY", Message: "Chave de API inválida"}
	}
	stored, err := hex.DecodeString(storedHash)
	if err != nil || len(stored) != len(providedHash) {
		return &AuthError{Code: "INVALID_API_KEY", Message: "Chave de API inválida"}
	}

	if subtle.ConstantTimeCompare(providedHash, stored) != 1 {
		return &AuthError{Code: "INVALID_API_KEY", Message: "Chave de API inválida"}
	}
	return nil
}

// GenerateAPIKey gera um par chave crua (cliente) / hash SHA-512 (env
// WAAKU_API_KEY do servidor).
func GenerateAPIKey() (raw, hash string) {
	raw = strings.ReplaceAll(uuid.NewString(), "-", "")
	return raw, SecureHash(raw)
}

// AuthMiddleware valida o header X-API-Key em todas as rotas /api/*.
func AuthMiddleware(cfg *config.Config, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if authErr := CheckAPIKey(r.Header.Get("X-API-Key"), cfg.Auth.APIKeyHash); authErr != nil {
				log.Warnf("Tentativa de acesso não autorizada de %s (%s)", r.RemoteAddr, authErr.Code)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(models.NewErrorResponse(
					authErr.Message,
					authErr.Code,
					nil,
				))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func RecoveryMiddleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Errorf("Panic recuperado: %v", err)

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(models.NewErrorResponse(
						"Erro interno do servidor",
						"INTERNAL_ERROR",
						nil,
					))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func LoggingMiddleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			duration := time.Since(start)
			log.Infof("%s %s %d %v", r.Method, r.URL.Path, rw.statusCode, duration)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func CORSMiddleware(cfg *config.Config) func(http.Handler) http.Handler {
	allowed := "*"
	if len(cfg.CORS.Origins) > 0 {
		allowed = strings.Join(cfg.CORS.Origins, ", ")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func ContentTypeMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			next.ServeHTTP(w, r)
		})
	}
}

const (
	rateLimitWindow = time.Minute
	rateLimitMax    = 100
)

type rateEntry struct {
	count     int
	resetTime time.Time
}

// RateLimiter aplica um limite simples por IP, em memória. Em produção com
// múltiplas réplicas um limitador compartilhado seria necessário.
type RateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*rateEntry
	lastSweep time.Time
	logger    *logger.Logger
}

func NewRateLimiter(log *logger.Logger) *RateLimiter {
	return &RateLimiter{
		clients:   make(map[string]*rateEntry),
		lastSweep: time.Now(),
		logger:    log,
	}
}

// sweepLocked descarta entradas cuja janela já venceu, no máximo uma vez por
// janela, para o mapa não crescer com IPs que nunca voltam.
func (rl *RateLimiter) sweepLocked(now time.Time) {
	if now.Sub(rl.lastSweep) < rateLimitWindow {
		return
	}
	for ip, entry := range rl.clients {
		if now.After(entry.resetTime) {
			delete(rl.clients, ip)
		}
	}
	rl.lastSweep = now
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			now := time.Now()

			rl.mu.Lock()
			rl.sweepLocked(now)
			entry, ok := rl.clients[ip]
			if !ok || now.After(entry.resetTime) {
				rl.clients[ip] = &rateEntry{count: 1, resetTime: now.Add(rateLimitWindow)}
				rl.mu.Unlock()
				next.ServeHTTP(w, r)
				return
			}

			if entry.count >= rateLimitMax {
				retryAfter := int(entry.resetTime.Sub(now).Seconds()) + 1
				rl.mu.Unlock()

				rl.logger.Warnf("Limite de requisições excedido para %s", ip)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(models.NewErrorResponse(
					"Muitas requisições. Tente novamente mais tarde.",
					"RATE_LIMIT_EXCEEDED",
					map[string]string{"retry_after": strconv.Itoa(retryAfter)},
				))
				return
			}

			entry.count++
			rl.mu.Unlock()
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
