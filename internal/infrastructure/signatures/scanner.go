package signatures

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/doeshing/extscan-go/internal/domain"
	"github.com/doeshing/extscan-go/internal/ports"
)

// Options tunes a Scanner. Zero values select the defaults from domain.
type Options struct {
	Workers             int
	MaxFileBytes        int64
	AcceptanceThreshold float64
}

// Scanner implements the SignatureScanner port.
type Scanner struct {
	categories []compiledCategory
	version     string
	fingerprint string
	threshold   float64
	workers    int
	maxBytes   int64
}

type fileScan struct {
	matches map[domain.Category][]domain.MatchResult
	warning *domain.ScanWarning
}

// NewScanner compiles the rule set. Malformed rules are returned as *RuleError.
func NewScanner(set domain.RuleSet, opts Options) (*Scanner, error) {
	compiled, err := compileRuleSet(set)
	if err != nil {
		return nil, err
	}
	threshold := set.AcceptanceThreshold
	if opts.AcceptanceThreshold > 0 {
		threshold = opts.AcceptanceThreshold
	}
	if threshold == 0 {
		threshold = domain.DefaultAcceptanceThreshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, &RuleError{Reason: fmt.Sprintf("acceptance threshold %.2f outside (0,1]", threshold)}
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = domain.DefaultScanWorkers
	}
	maxBytes := opts.MaxFileBytes
	if maxBytes <= 0 {
		maxBytes = domain.DefaultMaxFileBytes
	}
	return &Scanner{
		categories:  compiled,
		version:     set.Version,
		fingerprint: fingerprint(compiled, threshold),
		threshold:   threshold,
		workers:     workers,
		maxBytes:    maxBytes,
	}, nil
}

// fingerprint digests every compiled rule in category order together with the threshold,
// so an edited rule file changes it even when the version string does not.
func fingerprint(categories []compiledCategory, threshold float64) string {
	h := sha256.New()
	h.Write([]byte(strconv.FormatFloat(threshold, 'g', -1, 64)))
	for _, cc := range categories {
		h.Write([]byte{0})
		h.Write([]byte(cc.category))
		for _, cr := range cc.rules {
			fmt.Fprintf(h, "\x1f%s\x1f%s\x1f%s\x1f%d", cr.rule.ID, cr.rule.Kind, cr.rule.Signature, cr.rule.Weight)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// NewScannerFromFile loads rules from path (or the embedded defaults) and compiles them.
func NewScannerFromFile(path string, opts Options) (*Scanner, error) {
	set, err := LoadRuleSet(path)
	if err != nil {
		return nil, err
	}
	return NewScanner(set, opts)
}

// Scan matches every file independently and merges matches per category in input order.
func (s *Scanner) Scan(files []domain.SourceFile) domain.ScanResult {
	result := domain.ScanResult{
		Matches:             make(map[domain.Category][]domain.MatchResult),
		Coverage:            make(map[domain.Category]domain.Coverage),
		AcceptanceThreshold: s.threshold,
		RulesVersion:        s.version,
	}

	perFile := make([]fileScan, len(files))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < min(s.workers, len(files)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				perFile[i] = s.scanFile(files[i])
			}
		}()
	}
	for i := range files {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for _, fs := range perFile {
		if fs.warning != nil {
			result.Warnings = append(result.Warnings, *fs.warning)
			continue
		}
		result.FilesScanned++
		for _, cc := range s.categories {
			if matches := fs.matches[cc.category]; len(matches) > 0 {
				result.Matches[cc.category] = append(result.Matches[cc.category], matches...)
			}
		}
	}

	for _, cc := range s.categories {
		result.Coverage[cc.category] = s.coverage(cc, result.Matches[cc.category])
	}
	return result
}

// Rules returns the compiled rules in category order.
func (s *Scanner) Rules() []domain.PatternRule {
	var rules []domain.PatternRule
	for _, cc := range s.categories {
		for _, cr := range cc.rules {
			rules = append(rules, cr.rule)
		}
	}
	return rules
}

// Version returns the rule set version string.
func (s *Scanner) Version() string {
	return s.version
}

// Fingerprint identifies the compiled rule set and threshold. Scan results are cached under it.
func (s *Scanner) Fingerprint() string {
	return s.fingerprint
}

// AcceptanceThreshold returns the coverage ratio required for a category to count as covered.
func (s *Scanner) AcceptanceThreshold() float64 {
	return s.threshold
}

func (s *Scanner) scanFile(file domain.SourceFile) fileScan {
	if reason := undecodable(file.Content, s.maxBytes); reason != "" {
		return fileScan{warning: &domain.ScanWarning{File: file.Path, Reason: reason}}
	}
	text := string(bytes.TrimPrefix(file.Content, []byte("\xef\xbb\xbf")))

	out := fileScan{matches: make(map[domain.Category][]domain.MatchResult)}
	for _, cc := range s.categories {
		for _, cr := range cc.rules {
			locs := cr.re.FindAllStringIndex(text, -1)
			if len(locs) == 0 {
				continue
			}
			start, end := locs[0][0], locs[0][1]
			out.matches[cc.category] = append(out.matches[cc.category], domain.MatchResult{
				RuleID:      cr.rule.ID,
				Category:    cc.category,
				File:        file.Path,
				Line:        1 + strings.Count(text[:start], "\n"),
				Evidence:    snippet(text, start, end),
				Occurrences: len(locs),
				Weight:      cr.rule.Weight,
			})
		}
	}
	return out
}

func (s *Scanner) coverage(cc compiledCategory, matches []domain.MatchResult) domain.Coverage {
	matched := make(map[string]bool)
	for _, m := range matches {
		matched[m.RuleID] = true
	}
	cov := domain.Coverage{Matched: len(matched), Total: len(cc.rules)}
	if cov.Total > 0 {
		cov.Ratio = float64(cov.Matched) / float64(cov.Total)
		cov.Covered = cov.Ratio >= s.threshold
	}
	return cov
}

// undecodable returns a skip reason for content that cannot be scanned as text.
func undecodable(content []byte, maxBytes int64) string {
	switch {
	case int64(len(content)) > maxBytes:
		return fmt.Sprintf("file exceeds %d bytes", maxBytes)
	case bytes.IndexByte(content, 0) >= 0:
		return "binary content"
	case !utf8.Valid(content):
		return "not valid UTF-8"
	default:
		return ""
	}
}

// snippet returns the match with surrounding context, whitespace-collapsed and capped.
func snippet(text string, start, end int) string {
	from := start
	for n := 0; from > 0 && n < domain.EvidenceContextRunes; n++ {
		_, size := utf8.DecodeLastRuneInString(text[:from])
		from -= size
	}
	to := end
	for n := 0; to < len(text) && n < domain.EvidenceContextRunes; n++ {
		_, size := utf8.DecodeRuneInString(text[to:])
		to += size
	}
	s := strings.Join(strings.Fields(text[from:to]), " ")
	if utf8.RuneCountInString(s) > domain.MaxEvidenceRunes {
		s = string([]rune(s)[:domain.MaxEvidenceRunes])
	}
	return s
}

var _ ports.SignatureScanner = (*Scanner)(nil)
