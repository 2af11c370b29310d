package main

import (
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/phishguard/phishguard/pkg/certcheck"
	"github.com/phishguard/phishguard/pkg/config"
	"github.com/phishguard/phishguard/pkg/content"
	"github.com/phishguard/phishguard/pkg/detect"
	"github.com/phishguard/phishguard/pkg/history"
	"github.com/phishguard/phishguard/pkg/intel"
	"github.com/phishguard/phishguard/pkg/intercept"
	"github.com/phishguard/phishguard/pkg/lexical"
	"github.com/phishguard/phishguard/pkg/ml"
	"github.com/phishguard/phishguard/pkg/netinfra"
	"github.com/phishguard/phishguard/pkg/notify"
	"github.com/phishguard/phishguard/pkg/reputation"
)

// service bundles the detection components. Every external dependency is
// optional and the pipeline degrades gracefully when one is missing.
type service struct {
	cfg         *config.Config
	engine      *detect.Engine
	interceptor *intercept.Interceptor
	reputation  *reputation.Checker
	intel       *intel.Client
	store       *history.Store
	hub         *notify.Hub
	model       ml.Model
}

func newService(cfg *config.Config) *service {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	s := &service{cfg: cfg}

	// Scan history - optional, the pipeline works without persistence.
	store, err := history.Open(cfg.HistoryDBPath)
	if err != nil {
		log.Printf("○ scan history disabled (%v)", err)
	} else {
		s.store = store
		log.Printf("✓ scan history enabled (%s)", cfg.HistoryDBPath)
	}

	if s.store != nil {
		s.hub = notify.NewHub(s.store)
	} else {
		s.hub = notify.NewHub()
	}

	// Threat intelligence - optional, requires a backend URL.
	if cfg.IntelBaseURL != "" {
		var intelOpts []intel.Option
		if cfg.IntelAPIKey != "" {
			intelOpts = append(intelOpts, intel.WithAPIKey(cfg.IntelAPIKey))
		}
		s.intel = intel.NewClient(cfg.IntelBaseURL, intelOpts...)
		log.Printf("✓ threat intelligence enabled (%s)", cfg.IntelBaseURL)
	} else {
		log.Println("○ threat intelligence disabled (no backend URL)")
	}

	// Reputation cache, optionally persisted to redis.
	repOpts := []reputation.Option{
		reputation.WithTTL(cfg.ReputationTTL),
		reputation.WithMaxEntries(cfg.ReputationMaxLen),
	}
	if s.intel != nil {
		repOpts = append(repOpts, reputation.WithIntel(s.intel))
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		repOpts = append(repOpts, reputation.WithRedis(rdb))
		log.Printf("✓ reputation persistence enabled (redis %s)", cfg.RedisAddr)
	} else {
		log.Println("○ reputation persistence disabled (memory only)")
	}
	s.reputation = reputation.NewChecker(repOpts...)

	// ML classifier - optional, requires an ONNX model on disk.
	var scorer *ml.Scorer
	if cfg.ModelPath != "" {
		model, err := ml.LoadModel(cfg.ModelPath)
		if err != nil {
			log.Printf("○ ML classifier degraded to heuristic blend (%v)", err)
			scorer = ml.NewScorer(nil)
		} else {
			s.model = model
			scorer = ml.NewScorer(model)
			log.Printf("✓ ML classifier enabled (%s)", cfg.ModelPath)
		}
	} else {
		scorer = ml.NewScorer(nil)
		log.Println("○ ML classifier using heuristic blend (no model path)")
	}

	lex := lexical.NewScorer()
	engineOpts := []detect.Option{
		detect.WithReputation(s.reputation),
		detect.WithContent(content.NewScorer()),
		detect.WithML(scorer),
		detect.WithDeepAnalyzer(detect.NewInfraAnalyzer(netinfra.NewScorer(), certcheck.NewChecker())),
	}
	if s.intel != nil {
		engineOpts = append(engineOpts, detect.WithIntel(s.intel))
	}
	s.engine = detect.NewEngine(lex, engineOpts...)

	s.interceptor = intercept.New(lex, s.reputation, s.engine,
		intercept.WithPublisher(s.hub),
		intercept.WithCacheTTL(cfg.InterceptTTL),
		intercept.WithCacheCap(cfg.InterceptCap),
		intercept.WithScanPoolSize(cfg.ScanPoolSize),
	)

	return s
}

func (s *service) close() {
	s.interceptor.Wait()
	if s.model != nil {
		if err := s.model.Close(); err != nil {
			log.Printf("[shutdown] close model: %v", err)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("[shutdown] close history: %v", err)
		}
	}
}
