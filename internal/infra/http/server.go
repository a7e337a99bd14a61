package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"seald/internal/config"
	"seald/internal/domain"
	"seald/internal/infra/authz"
	"seald/internal/infra/bytestore"
	"seald/internal/infra/db"
	"seald/internal/infra/digest"
	"seald/internal/infra/docmem"
	"seald/internal/infra/keys/soft"
	"seald/internal/infra/ledger/chainrpc"
	"seald/internal/infra/ledger/memledger"
	"seald/internal/infra/ratelimit"
	"seald/internal/infra/render"
	"seald/internal/usecase"

	"github.com/gin-gonic/gin"
)

type Server struct {
	cfg   config.Config
	store *db.Store
	r     *gin.Engine

	lifecycle *usecase.DocumentLifecycle
	verifier  *usecase.VerifyDocument
	demo      *usecase.TamperDemo
	shipments *usecase.ShipmentService
	audit     domain.AuditEventRepository

	authorizer  domain.Authorizer
	authInitErr error
	depInitErr  error

	rateLimiter       domain.RateLimiter
	rateLimitRequests int
	rateLimitWindow   time.Duration
}

func NewServer(cfg config.Config, store *db.Store) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{cfg: cfg, store: store, r: r}
	s.initDeps()
	s.routes()
	return s
}

type ServerDeps struct {
	Lifecycle   *usecase.DocumentLifecycle
	Verifier    *usecase.VerifyDocument
	Demo        *usecase.TamperDemo
	Shipments   *usecase.ShipmentService
	Audit       domain.AuditEventRepository
	Authorizer  domain.Authorizer
	RateLimiter domain.RateLimiter
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:        cfg,
		r:          r,
		lifecycle:  deps.Lifecycle,
		verifier:   deps.Verifier,
		demo:       deps.Demo,
		shipments:  deps.Shipments,
		audit:      deps.Audit,
		authorizer: deps.Authorizer,
	}
	s.initRateLimit(deps.RateLimiter)
	s.initAuthz()
	s.routes()
	return s
}

func (s *Server) initDeps() {
	renderer := render.NewRenderer()
	digests := digest.Engine{}

	var bytes usecase.ByteStore
	if s.cfg.UploadDir != "" {
		fileStore, err := bytestore.NewFileStore(s.cfg.UploadDir)
		if err != nil {
			s.failInit(fmt.Errorf("byte store: %w", err))
		} else {
			bytes = fileStore
		}
	}
	if bytes == nil {
		bytes = bytestore.NewMemoryStore()
	}

	// A configured ledger that fails to build must abort startup. Falling
	// back to memory here would anchor to process state and report
	// AUTHENTIC with nothing on chain.
	var ledger domain.LedgerClient
	if s.cfg.LedgerRPCURL != "" {
		signer, err := soft.NewSignerFromSeedHex(s.cfg.LedgerSignerSeedHex)
		if err != nil {
			s.failInit(fmt.Errorf("ledger signer: %w", err))
		} else if client, err := chainrpc.NewClient(
			s.cfg.LedgerRPCURL,
			s.cfg.LedgerContractAddress,
			s.cfg.LedgerChainID,
			signer,
			s.cfg.LedgerConfirmPoll(),
			nil,
		); err != nil {
			s.failInit(fmt.Errorf("ledger client: %w", err))
		} else {
			ledger = client
		}
	}
	if ledger == nil {
		ledger = memledger.New()
	}

	var (
		documents    domain.DocumentRepository
		shipmentRepo domain.ShipmentRepository
		auditRepo    domain.AuditEventRepository
	)
	if s.store != nil && s.store.DB != nil {
		documents = db.NewDocumentRepository(s.store.DB)
		shipmentRepo = db.NewShipmentRepository(s.store.DB)
		auditRepo = db.NewAuditEventRepository(s.store.DB)
	} else {
		mem := docmem.New()
		documents = mem
		shipmentRepo = mem.Shipments()
		auditRepo = mem
	}

	audit := &usecase.AuditEmitter{Events: auditRepo}
	s.lifecycle = &usecase.DocumentLifecycle{
		Documents:     documents,
		Shipments:     shipmentRepo,
		Ledger:        ledger,
		Renderer:      renderer,
		Bytes:         bytes,
		Digests:       digests,
		Audit:         audit,
		AllowReanchor: s.cfg.LedgerAllowReanchor,
		AnchorTimeout: s.cfg.LedgerTimeout(),
	}
	s.verifier = &usecase.VerifyDocument{
		Documents: documents,
		Bytes:     bytes,
		Ledger:    ledger,
		Digests:   digests,
	}
	s.demo = &usecase.TamperDemo{
		Documents: documents,
		Bytes:     bytes,
		Digests:   digests,
		Audit:     audit,
	}
	s.shipments = &usecase.ShipmentService{
		Shipments: shipmentRepo,
		Documents: documents,
		Ledger:    ledger,
		Audit:     audit,
	}
	s.audit = auditRepo

	s.initRateLimit(nil)
	s.initAuthz()
}

func (s *Server) failInit(err error) {
	if s.depInitErr == nil {
		s.depInitErr = err
	}
}

func (s *Server) initAuthz() {
	switch s.cfg.AuthMode {
	case "none", "key":
	default:
		s.authInitErr = errors.New("unsupported auth mode")
		return
	}
	if s.authorizer != nil {
		return
	}
	authorizer, err := authz.NewAuthorizerFromBundlePath(context.Background(), s.cfg.PolicyBundlePath)
	if err != nil {
		s.authInitErr = err
		return
	}
	s.authorizer = authorizer
}

func (s *Server) initRateLimit(override domain.RateLimiter) {
	if override != nil {
		s.rateLimiter = override
	}
	if s.rateLimiter == nil && s.cfg.RateLimitRequests > 0 {
		if s.cfg.RedisAddr != "" {
			if limiter, err := ratelimit.NewRedisLimiter(s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDB, nil); err == nil {
				s.rateLimiter = limiter
			}
		}
		if s.rateLimiter == nil {
			s.rateLimiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{})
		}
	}
	s.rateLimitRequests = s.cfg.RateLimitRequests
	if s.cfg.RateLimitWindowSeconds > 0 {
		s.rateLimitWindow = time.Duration(s.cfg.RateLimitWindowSeconds) * time.Second
	}
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		dbMode := "no-db"
		if s.store != nil && s.store.DB != nil {
			dbMode = "db"
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": dbMode})
	})

	v1 := s.r.Group("/v1")
	v1.Use(func(c *gin.Context) {
		if s.depInitErr != nil {
			writeErrorCode(c, http.StatusInternalServerError, "CONFIG_ERROR", "server dependencies failed to initialize")
			c.Abort()
		}
	})
	{
		v1.POST("/shipments", s.handleCreateShipment)
		v1.GET("/shipments", s.handleListShipments)
		v1.POST("/shipments/:id/dispatch", s.handleDispatchShipment)
		v1.POST("/shipments/:id/confirm", s.handleConfirmDelivery)

		v1.POST("/documents/:id/draft", s.handleDraftDocument)
		v1.POST("/documents/:id/approve", s.handleApproveDocument)
		v1.POST("/documents/:id/reject", s.handleRejectDocument)
		v1.POST("/documents/:id/reset", s.handleResetDocument)
		v1.GET("/documents/:id/verify", s.handleVerifyDocument)
		v1.POST("/documents/:id/verify", s.handleVerifyDocumentBytes)

		v1.POST("/demo/:id/tamper", s.handleTamperDemo)
		v1.POST("/demo/:id/restore", s.handleRestoreDemo)

		v1.GET("/audit", s.handleListAudit)
	}

	s.r.NoRoute(func(c *gin.Context) {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "no such route")
	})
}

func (s *Server) Run() error {
	if s.depInitErr != nil {
		return s.depInitErr
	}
	if s.authInitErr != nil {
		return s.authInitErr
	}
	return s.r.Run(s.cfg.HTTPAddr)
}
