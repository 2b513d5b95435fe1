// Copyright 2026 The SafeGate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package main provides the entry point for the SafeGate server: the
// triage-and-routing gateway that sits between the coaching chat surface and
// the upstream text-generation providers.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/thrivecoach/safegate/internal/api"
	"github.com/thrivecoach/safegate/internal/buildinfo"
	"github.com/thrivecoach/safegate/internal/config"
	"github.com/thrivecoach/safegate/internal/gateway"
	"github.com/thrivecoach/safegate/internal/logging"
	"github.com/thrivecoach/safegate/internal/prompts"
	"github.com/thrivecoach/safegate/internal/provider"
	"github.com/thrivecoach/safegate/internal/router"
	"github.com/thrivecoach/safegate/internal/safety"
	"github.com/thrivecoach/safegate/internal/triage"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// init initializes the shared logger setup.
func init() {
	logging.Setup()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("safegate %s (commit %s, built %s)\n", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)
		return
	}

	// Credentials commonly live in a local .env during development.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithField("error", err).Warn("failed to load .env file")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err = logging.ConfigureOutput(cfg.LoggingToFile, cfg.LogsMaxTotalSizeMB); err != nil {
		log.Fatalf("configure logging: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}

	gw, err := buildGateway(cfg)
	if err != nil {
		log.Fatalf("build gateway: %v", err)
	}
	server := api.NewServer(gw)

	watcher, err := config.NewWatcher(*configPath, func(next *config.Config) {
		rebuilt, buildErr := buildGateway(next)
		if buildErr != nil {
			log.WithField("error", buildErr).Error("config reload produced an invalid pipeline, keeping previous one")
			return
		}
		server.SetGateway(rebuilt)
	})
	if err != nil {
		log.WithField("error", err).Warn("config hot reload disabled")
	} else {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		defer func() { _ = watcher.Close() }()
		watcher.Start(ctx)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	log.WithFields(log.Fields{
		"addr":    addr,
		"version": buildinfo.Version,
	}).Info("safegate server starting")
	if err = server.Run(addr); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}

// buildGateway assembles the full pipeline from a parsed configuration.
func buildGateway(cfg *config.Config) (*gateway.Gateway, error) {
	primary, err := buildAdapter(cfg, cfg.PrimaryProvider)
	if err != nil {
		return nil, err
	}

	genOpts := []router.Option{
		router.WithRetries(cfg.RequestRetry),
		router.WithBackoff(cfg.RetryBaseBackoff()),
		router.WithTimeout(cfg.GenerationTimeout()),
	}
	if cfg.FallbackProvider != "" {
		fallback, errFallback := buildAdapter(cfg, cfg.FallbackProvider)
		if errFallback != nil {
			return nil, errFallback
		}
		genOpts = append(genOpts, router.WithFallback(fallback))
	}
	genRouter := router.New(primary, genOpts...)

	classifierOpts := []triage.ClassifierOption{}
	if cfg.RemoteClassify {
		// The classification call gets the retry discipline but no fallback:
		// a failed classification degrades to the deterministic result.
		classifyRouter := router.New(primary,
			router.WithRetries(cfg.RequestRetry),
			router.WithBackoff(cfg.RetryBaseBackoff()),
			router.WithTimeout(cfg.ClassifyTimeout()),
		)
		classifierOpts = append(classifierOpts, triage.WithRemoteFallback(generateFunc(classifyRouter), cfg.ClassifyTimeout()))
	}
	classifier := triage.NewClassifier(classifierOpts...)

	ruleSet, err := safety.CompileRules(cfg.Safety.Rules)
	if err != nil {
		return nil, err
	}
	reviewerOpts := []safety.ReviewerOption{safety.WithRuleSet(ruleSet)}
	if cfg.Safety.RemoteJudge {
		// The judge gets retries but never a fallback provider: when it is
		// unreachable the reviewer fails closed.
		judgeRouter := router.New(primary,
			router.WithRetries(cfg.RequestRetry),
			router.WithBackoff(cfg.RetryBaseBackoff()),
			router.WithTimeout(cfg.JudgeTimeout()),
		)
		reviewerOpts = append(reviewerOpts, safety.WithJudge(safety.JudgeFunc(generateFunc(judgeRouter)), cfg.JudgeTimeout()))
	}
	reviewer := safety.NewReviewer(reviewerOpts...)

	builder := prompts.NewBuilder(cfg.MaxInputTokens)
	return gateway.New(classifier, genRouter, reviewer, builder, cfg.BudgetFor), nil
}

// buildAdapter constructs the provider adapter named in the config.
func buildAdapter(cfg *config.Config, name string) (provider.Adapter, error) {
	if name == "" {
		return nil, fmt.Errorf("no primary provider configured")
	}
	entry, ok := cfg.ProviderByName(name)
	if !ok {
		return nil, fmt.Errorf("provider %q not found in configuration", name)
	}
	apiKey := entry.ResolveAPIKey()
	switch entry.Type {
	case config.ProviderTypeAnthropic:
		return provider.NewAnthropicAdapter(entry.Name, entry.BaseURL, apiKey, entry.Model), nil
	default:
		return provider.NewOpenAIAdapter(entry.Name, entry.BaseURL, apiKey, entry.Model), nil
	}
}

// generateFunc adapts a router to the single-call shape the classifier and
// judge consume.
func generateFunc(r *router.Router) func(ctx context.Context, system, user string, maxTokens int) (string, error) {
	return func(ctx context.Context, system, user string, maxTokens int) (string, error) {
		result, err := r.Generate(ctx, provider.Request{
			System:    system,
			Turns:     []provider.Turn{{Role: "user", Content: user}},
			MaxTokens: maxTokens,
		})
		if err != nil {
			return "", err
		}
		return result.Text, nil
	}
}
