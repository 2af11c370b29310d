package main

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/robfig/cron/v3"

	"github.com/phishguard/phishguard/pkg/config"
	"github.com/phishguard/phishguard/pkg/urlnorm"
)

func runHTTPServer(cfg *config.Config) {
	cfg.MustValidate()
	svc := newService(cfg)
	defer svc.close()

	sched := startJobs(cfg, svc)
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName: "PhishGuard",
	})

	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "version": Version})
	})

	// Full pipeline scan of a single URL.
	app.Post("/scan", func(c fiber.Ctx) error {
		var req struct {
			URL string `json:"url"`
		}
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}
		if req.URL == "" {
			return c.Status(400).JSON(fiber.Map{"error": "url field is required"})
		}

		res := svc.engine.ScanURL(c.Context(), req.URL)
		res.Source = "api"
		svc.hub.Publish(res)
		return c.JSON(res)
	})

	// Fast domain-level scan: lexical quick, intel reputation, cached lists.
	app.Post("/scan/quick", func(c fiber.Ctx) error {
		var req struct {
			Domain string `json:"domain"`
		}
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}
		if req.Domain == "" {
			return c.Status(400).JSON(fiber.Map{"error": "domain field is required"})
		}

		res := svc.engine.QuickScan(c.Context(), req.Domain)
		res.Source = "api"
		return c.JSON(res)
	})

	// Report a confirmed threat upstream.
	app.Post("/report", func(c fiber.Ctx) error {
		var req struct {
			URL         string  `json:"url"`
			ThreatType  string  `json:"threat_type"`
			Confidence  float64 `json:"confidence"`
			Description string  `json:"description"`
		}
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}
		if req.URL == "" {
			return c.Status(400).JSON(fiber.Map{"error": "url field is required"})
		}
		if svc.intel == nil {
			return c.Status(503).JSON(fiber.Map{"error": "threat intelligence backend not configured"})
		}

		if err := svc.intel.ReportThreat(c.Context(), req.URL, req.ThreatType, req.Confidence, req.Description); err != nil {
			return c.Status(502).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"status": "reported"})
	})

	app.Post("/lists/blacklist", func(c fiber.Ctx) error {
		var req struct {
			Domain string `json:"domain"`
		}
		if err := c.Bind().Body(&req); err != nil || req.Domain == "" {
			return c.Status(400).JSON(fiber.Map{"error": "domain field is required"})
		}
		domain := urlnorm.Domain(req.Domain)
		svc.reputation.AddToBlacklist(domain)
		return c.JSON(fiber.Map{"status": "blacklisted", "domain": domain})
	})

	app.Post("/lists/whitelist", func(c fiber.Ctx) error {
		var req struct {
			Domain string `json:"domain"`
		}
		if err := c.Bind().Body(&req); err != nil || req.Domain == "" {
			return c.Status(400).JSON(fiber.Map{"error": "domain field is required"})
		}
		domain := urlnorm.Domain(req.Domain)
		svc.reputation.AddToWhitelist(domain)
		return c.JSON(fiber.Map{"status": "whitelisted", "domain": domain})
	})

	app.Get("/stats", func(c fiber.Ctx) error {
		stats := fiber.Map{
			"reputation": svc.reputation.CacheStats(),
			"intercept":  svc.interceptor.CacheStats(),
		}
		if svc.intel != nil {
			stats["intel_cache_size"] = svc.intel.CacheSize()
		}
		if svc.store != nil {
			summary, err := svc.store.Summarize(c.Context())
			if err != nil {
				log.Printf("[api] history summary: %v", err)
			} else {
				stats["history"] = summary
			}
		}
		published, dropped, subs := svc.hub.Stats()
		stats["notifications"] = fiber.Map{
			"published":   published,
			"dropped":     dropped,
			"subscribers": subs,
		}
		return c.JSON(stats)
	})

	app.Get("/history", func(c fiber.Ctx) error {
		if svc.store == nil {
			return c.Status(503).JSON(fiber.Map{"error": "scan history not configured"})
		}
		hours := queryInt(c, "hours", 24)
		limit := queryInt(c, "limit", 100)
		now := time.Now()

		records, err := svc.store.Range(c.Context(), now.Add(-time.Duration(hours)*time.Hour), now.Add(time.Minute), limit)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"records": records, "count": len(records)})
	})

	log.Printf("phishguard HTTP server starting on %s", cfg.ListenAddr)
	log.Printf("endpoints:")
	log.Printf("  GET  /health          - health check")
	log.Printf("  POST /scan            - full URL scan")
	log.Printf("  POST /scan/quick      - fast domain scan")
	log.Printf("  POST /report          - report a threat upstream")
	log.Printf("  POST /lists/blacklist - blacklist a domain")
	log.Printf("  POST /lists/whitelist - whitelist a domain")
	log.Printf("  GET  /stats           - cache and history statistics")
	log.Printf("  GET  /history         - recent scan records")

	if err := app.Listen(cfg.ListenAddr); err != nil {
		log.Fatal(err)
	}
}

// startJobs schedules the maintenance work: expired cache entries, history
// retention, and the feeds status poll.
func startJobs(cfg *config.Config, svc *service) *cron.Cron {
	sched := cron.New()

	mustSchedule(sched, cfg.CleanupSchedule, "cache cleanup", func() {
		removed := svc.reputation.Cleanup()
		if removed > 0 {
			log.Printf("[jobs] reputation cleanup removed %d expired entries", removed)
		}
	})

	if svc.store != nil {
		mustSchedule(sched, cfg.PurgeSchedule, "history retention", func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			cutoff := time.Now().Add(-cfg.HistoryMaxAge)
			n, err := svc.store.PurgeOlderThan(ctx, cutoff)
			if err != nil {
				log.Printf("[jobs] history purge: %v", err)
				return
			}
			if n > 0 {
				log.Printf("[jobs] purged %d scan records older than %s", n, cutoff.Format(time.RFC3339))
			}
		})
	}

	if svc.intel != nil {
		mustSchedule(sched, cfg.FeedsSchedule, "feeds status", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			status, err := svc.intel.FeedsStatus(ctx)
			if err != nil {
				log.Printf("[jobs] feeds status: %v", err)
				return
			}
			log.Printf("[jobs] intel feeds: %d/%d active (updated %s)",
				status.ActiveFeeds, status.TotalConfigured, status.LastUpdated)
		})
	}

	sched.Start()
	return sched
}

func mustSchedule(sched *cron.Cron, spec, name string, job func()) {
	if _, err := sched.AddFunc(spec, job); err != nil {
		log.Fatalf("[jobs] invalid %s schedule %q: %v", name, spec, err)
	}
}

func queryInt(c fiber.Ctx, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
