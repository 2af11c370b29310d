// Command phishguard runs the phishing detection service: an HTTP API over
// the layered scan pipeline, a packet tunnel that intercepts DNS and HTTP
// traffic inline, and one-shot CLI scans.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/phishguard/phishguard/pkg/config"
	"github.com/phishguard/phishguard/pkg/packet"
	"github.com/phishguard/phishguard/pkg/threat"
)

const Version = "0.1.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.NewDefaultConfig()
	if path := os.Getenv("PHISHGUARD_CONFIG"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			log.Fatalf("load config %s: %v", path, err)
		}
	}

	switch os.Args[1] {
	case "serve":
		if len(os.Args) > 2 {
			cfg.ListenAddr = os.Args[2]
			if !strings.Contains(cfg.ListenAddr, ":") {
				cfg.ListenAddr = ":" + cfg.ListenAddr
			}
		}
		runHTTPServer(cfg)
	case "scan":
		if len(os.Args) < 3 {
			fmt.Println("Usage: phishguard scan <url>")
			os.Exit(1)
		}
		runCLIScan(cfg, os.Args[2], false)
	case "quick":
		if len(os.Args) < 3 {
			fmt.Println("Usage: phishguard quick <domain>")
			os.Exit(1)
		}
		runCLIScan(cfg, os.Args[2], true)
	case "tunnel":
		device := ""
		if len(os.Args) > 2 {
			device = os.Args[2]
		}
		runTunnel(cfg, device)
	case "version":
		fmt.Printf("PhishGuard v%s\n", Version)
		fmt.Println("Phishing URL detection pipeline")
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("PhishGuard v%s - phishing URL detection\n\n", Version)
	fmt.Println("Usage:")
	fmt.Println("  phishguard serve [addr]     Start HTTP API server (default: :8080)")
	fmt.Println("  phishguard scan <url>       Run the full scan pipeline on one URL")
	fmt.Println("  phishguard quick <domain>   Run the fast domain-level scan")
	fmt.Println("  phishguard tunnel [path]    Intercept packets on a tun device or FIFO")
	fmt.Println("                              (default: stdin/stdout)")
	fmt.Println("  phishguard version          Show version")
	fmt.Println("")
	fmt.Println("Environment Variables:")
	fmt.Println("  PHISHGUARD_CONFIG          Path to YAML config file")
	fmt.Println("  PHISHGUARD_INTEL_URL       Threat intelligence backend URL")
	fmt.Println("  PHISHGUARD_REDIS_ADDR      Redis address for reputation persistence")
	fmt.Println("  PHISHGUARD_MODEL_PATH      Path to the ONNX classifier")
	fmt.Println("  PHISHGUARD_FAIL_CLOSED     Drop undecidable tunnel traffic (default: false)")
}

func runCLIScan(cfg *config.Config, target string, quick bool) {
	svc := newService(cfg)
	defer svc.close()

	ctx := context.Background()
	var result threat.ScanResult
	if quick {
		result = svc.engine.QuickScan(ctx, target)
	} else {
		result = svc.engine.ScanURL(ctx, target)
	}
	result.Source = "manual"
	svc.hub.Publish(result)

	output, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(output))

	if result.Malicious {
		os.Exit(2)
	}
}

// runTunnel pumps raw packets through the pipeline, dropping traffic whose
// extracted domain or URL it condemns. With a device path it reads and
// writes that file (a tun device or FIFO); without one it uses the process's
// standard streams.
func runTunnel(cfg *config.Config, device string) {
	cfg.MustValidate()
	svc := newService(cfg)
	defer svc.close()

	var rw io.ReadWriter = stdioTunnel{}
	if device != "" {
		f, err := os.OpenFile(device, os.O_RDWR, 0)
		if err != nil {
			log.Fatalf("open tunnel device %s: %v", device, err)
		}
		defer f.Close()
		rw = f
	}

	pump := packet.NewPump(rw, svc.engine, svc.interceptor,
		packet.WithMTU(cfg.TunnelMTU),
		packet.WithFailClosed(cfg.FailPolicy == config.FailClosed),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("tunnel started (fail policy: %s)", cfg.FailPolicy)
	if err := pump.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("tunnel: %v", err)
	}
	stats := pump.Stats()
	log.Printf("tunnel stopped: %d packets, %d forwarded, %d blocked",
		stats.Packets, stats.Forwarded, stats.Blocked)
}

// stdioTunnel adapts the process's standard streams to the pump.
type stdioTunnel struct{}

func (stdioTunnel) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioTunnel) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
