// Package patterns provides a centralized pattern registry for URL threat
// detection. All regexes are compiled once at package init and shared across
// every scanning layer.
//
// Design principles:
// - COMPILE ONCE: All patterns compiled at init, not per-scan
// - DRY: Single source of truth for suspicious URL shapes
// - CATEGORIZED: Patterns organized by threat category for targeted sweeps
package patterns

import (
	"regexp"
	"sync"
)

// Category represents a URL threat pattern category
type Category string

const (
	CategoryObfuscation   Category = "obfuscation"   // hiding the real destination
	CategoryImpersonation Category = "impersonation" // brand look-alikes in the host
	CategoryHarvest       Category = "harvest"       // credential harvesting paths
	CategoryRedirect      Category = "redirect"      // open-redirect query shapes
	CategoryMalware       Category = "malware"       // direct payload downloads
)

// Pattern holds a compiled regex with metadata
type Pattern struct {
	Name        string         // Human-readable name for logging
	Regex       *regexp.Regexp // Compiled regex (never nil after init)
	Category    Category       // Threat category
	Severity    int            // Risk score contribution (0-100)
	Description string         // What this pattern detects
}

// Registry holds all compiled patterns, organized by category
type Registry struct {
	mu         sync.RWMutex
	byCategory map[Category][]*Pattern
	all        []*Pattern
}

// global singleton - initialized once at package load
var (
	globalRegistry *Registry
	initOnce       sync.Once
)

// Get returns the global pattern registry (singleton)
// Thread-safe and guaranteed to be initialized
func Get() *Registry {
	initOnce.Do(func() {
		globalRegistry = newRegistry()
	})
	return globalRegistry
}

// newRegistry creates and populates the pattern registry
func newRegistry() *Registry {
	r := &Registry{
		byCategory: make(map[Category][]*Pattern),
		all:        make([]*Pattern, 0, 64),
	}

	r.registerObfuscationPatterns()
	r.registerImpersonationPatterns()
	r.registerHarvestPatterns()
	r.registerRedirectPatterns()
	r.registerMalwarePatterns()

	return r
}

// register adds a pattern to the registry (internal use only)
func (r *Registry) register(name string, pattern string, category Category, severity int, description string) {
	compiled := regexp.MustCompile(pattern)
	p := &Pattern{
		Name:        name,
		Regex:       compiled,
		Category:    category,
		Severity:    severity,
		Description: description,
	}

	r.byCategory[category] = append(r.byCategory[category], p)
	r.all = append(r.all, p)
}

// GetByCategory returns all patterns for a specific category
// Returns empty slice if category not found (never nil)
func (r *Registry) GetByCategory(cat Category) []*Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if patterns, ok := r.byCategory[cat]; ok {
		return patterns
	}
	return []*Pattern{}
}

// GetMultipleCategories returns patterns from multiple categories
func (r *Registry) GetMultipleCategories(cats ...Category) []*Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*Pattern
	for _, cat := range cats {
		if patterns, ok := r.byCategory[cat]; ok {
			result = append(result, patterns...)
		}
	}
	return result
}

// MatchAny checks if text matches any pattern in the given categories
// Returns the first matching pattern or nil
// This is optimized for early exit on first match
func (r *Registry) MatchAny(text string, cats ...Category) *Pattern {
	patterns := r.GetMultipleCategories(cats...)
	for _, p := range patterns {
		if p.Regex.MatchString(text) {
			return p
		}
	}
	return nil
}

// MatchAll returns all patterns that match the text in given categories
// Use when you need to know ALL matches (for comprehensive scoring)
func (r *Registry) MatchAll(text string, cats ...Category) []*Pattern {
	patterns := r.GetMultipleCategories(cats...)
	var matches []*Pattern
	for _, p := range patterns {
		if p.Regex.MatchString(text) {
			matches = append(matches, p)
		}
	}
	return matches
}

// TotalPatterns returns the total count of registered patterns
func (r *Registry) TotalPatterns() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.all)
}

// CategoryCount returns the number of patterns in a category
func (r *Registry) CategoryCount(cat Category) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byCategory[cat])
}
