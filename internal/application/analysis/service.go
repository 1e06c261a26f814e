package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/doeshing/extscan-go/internal/domain"
	"github.com/doeshing/extscan-go/internal/ports"
)

// Service orchestrates one analysis end-to-end: load, scan, evaluate, aggregate, record.
type Service struct {
	Scanner    ports.SignatureScanner
	Parser     ports.ManifestParser
	Evaluator  ports.PermissionEvaluator
	Monitor    ports.BehaviorMonitor
	Aggregator ports.RiskAggregator
	History    ports.ReportRepository
	Cache      ports.ScanCache
	Advisor    ports.ReportAdvisor
	Logger     ports.Logger

	SourceOptions SourceOptions
	RetentionDays int
}

// Analyze runs the full pipeline. Only loading and manifest errors are fatal; history,
// cache and advisor failures are logged and the report is still returned.
func (s *Service) Analyze(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisResult, error) {
	if s.Scanner == nil || s.Evaluator == nil || s.Aggregator == nil || s.Logger == nil {
		return domain.AnalysisResult{}, errors.New("analysis.Service dependencies not satisfied")
	}

	src, err := s.source(req)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("load extension: %w", err)
	}
	extensionID := src.ID
	if req.ExtensionID != "" {
		extensionID = req.ExtensionID
	}

	var result domain.AnalysisResult

	perms := []string{}
	hosts := []string{}
	if src.Manifest != nil {
		if s.Parser == nil {
			return domain.AnalysisResult{}, errors.New("manifest present but no parser configured")
		}
		summary, err := s.Parser.Parse(src.Manifest)
		if err != nil {
			return domain.AnalysisResult{}, fmt.Errorf("parse manifest: %w", err)
		}
		result.Manifest = &summary
		perms, hosts = summary.Permissions, summary.HostPermissions
	} else {
		s.Logger.Warn("no manifest found; permissions not evaluated", map[string]interface{}{"extension": extensionID})
	}

	result.Scan, result.CacheHit = s.scan(src.Files, req.NoCache)
	result.Permissions = s.Evaluator.Evaluate(perms, hosts)
	if s.Monitor != nil {
		result.Snapshot = s.Monitor.GetBehavioralAnalysis()
	}

	result.Report = s.Aggregator.Aggregate(extensionID, result.Scan, result.Permissions, result.Snapshot)
	s.Logger.Info("analysis complete", map[string]interface{}{
		"extension": extensionID,
		"level":     result.Report.ThreatLevel,
		"score":     result.Report.AggregateScore,
		"cache_hit": result.CacheHit,
	})

	if req.Expect != nil {
		diag := s.Aggregator.Verify(result.Scan, result.Report, *req.Expect)
		result.Diagnostic = &diag
	}

	if req.SaveHistory {
		result.RecordID = s.record(extensionID, src.Root, result)
	}

	if req.Advise && s.Advisor != nil {
		opinion, err := s.Advisor.Review(ctx, result.Report, result.Scan)
		if err != nil {
			s.Logger.Warn("advisor review failed", map[string]interface{}{"error": err.Error()})
			result.AdvisorError = err.Error()
		} else {
			result.Opinion = &opinion
		}
	}

	return result, nil
}

func (s *Service) source(req domain.AnalysisRequest) (domain.ExtensionSource, error) {
	if req.Source != nil {
		return *req.Source, nil
	}
	if req.Path == "" {
		return domain.ExtensionSource{}, errors.New("no extension path given")
	}
	return LoadSource(req.Path, s.SourceOptions)
}

func (s *Service) scan(files []domain.SourceFile, noCache bool) (domain.ScanResult, bool) {
	if s.Cache == nil || noCache {
		return s.Scanner.Scan(files), false
	}

	key := s.Cache.Key(s.Scanner.Fingerprint(), files)
	entry, ok, err := s.Cache.Get(key)
	if err != nil {
		s.Logger.Warn("scan cache read failed", map[string]interface{}{"error": err.Error()})
	}
	if ok {
		return entry.Result, true
	}

	res := s.Scanner.Scan(files)
	if err := s.Cache.Set(domain.CacheEntry{Key: key, Result: res}); err != nil {
		s.Logger.Warn("scan cache write failed", map[string]interface{}{"error": err.Error()})
	}
	return res, false
}

func (s *Service) record(extensionID, source string, result domain.AnalysisResult) int64 {
	if s.History == nil {
		return 0
	}
	id, err := s.History.Save(domain.ReportRecord{
		Timestamp:    result.Report.GeneratedAt,
		ExtensionID:  extensionID,
		Source:       source,
		ThreatLevel:  result.Report.ThreatLevel,
		Score:        result.Report.AggregateScore,
		MatchCount:   result.Scan.TotalMatches(),
		WarningCount: len(result.Scan.Warnings),
		Report:       result.Report,
	})
	if err != nil {
		s.Logger.Warn("history save failed", map[string]interface{}{"error": err.Error()})
		return 0
	}
	if s.RetentionDays > 0 {
		if err := s.History.PruneOlderThan(s.RetentionDays); err != nil {
			s.Logger.Warn("history prune failed", map[string]interface{}{"error": err.Error()})
		}
	}
	return id
}
